package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"classbook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CLASSBOOK_TEST_SECRET", "s3cr3t")

	yamlContent := `
database:
  path: "test.db"
admission:
  mode: hardened
  min_enrollment: 2
auth:
  jwt_secret: "${CLASSBOOK_TEST_SECRET}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Admission.Mode != models.AdmissionHardened {
		t.Errorf("expected admission mode hardened, got %s", cfg.Admission.Mode)
	}
	if cfg.Admission.MinEnrollment != 2 {
		t.Errorf("expected min_enrollment 2, got %d", cfg.Admission.MinEnrollment)
	}
	if cfg.Auth.JWTSecret != "s3cr3t" {
		t.Errorf("expected env expansion of jwt_secret, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Config{Database: DatabaseConfig{Path: "path"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.Postgres.DBName = "classbook"
			},
			wantErr: true,
		},
		{
			name: "postgres configured",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.Postgres.Host = "localhost"
				c.Database.Postgres.DBName = "classbook"
			},
			wantErr: false,
		},
		{name: "unknown admission mode", mutate: func(c *Config) { c.Admission.Mode = "optimistic" }, wantErr: true},
		{name: "negative min enrollment", mutate: func(c *Config) { c.Admission.MinEnrollment = -1 }, wantErr: true},
		{
			name: "production without session secret",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Auth.JWTSecret = "x"
			},
			wantErr: true,
		},
		{name: "admin without hash", mutate: func(c *Config) { c.Auth.AdminUsername = "admin" }, wantErr: true},
		{
			name: "grpc tls without files",
			mutate: func(c *Config) {
				c.GRPC.Enabled = true
				c.GRPC.TLS.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "smtp without host",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.SMTP.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "telegram without chat",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.Telegram.Enabled = true
				c.Notifications.Telegram.BotToken = "token"
			},
			wantErr: true,
		},
		{
			name: "sheets disabled notifications ignored",
			mutate: func(c *Config) {
				c.Notifications.Sheets.Enabled = true
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Admission.Mode != models.AdmissionFaithful {
		t.Errorf("expected default admission mode faithful, got %s", cfg.Admission.Mode)
	}
	if cfg.Admission.MinEnrollment != models.DefaultMinEnrollment {
		t.Errorf("expected default min enrollment %d, got %d", models.DefaultMinEnrollment, cfg.Admission.MinEnrollment)
	}
	if cfg.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.GRPC.Port)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.LoginWindow != 15*time.Minute {
		t.Errorf("expected default login window 15m, got %s", cfg.Auth.LoginWindow)
	}
	if cfg.Monitoring.PrometheusPort != 0 {
		t.Errorf("expected prometheus port untouched when disabled, got %d", cfg.Monitoring.PrometheusPort)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "classbook", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=classbook sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestApplyDefaults_GRPCRateLimit(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.GRPC.RateLimit != cfg.HTTP.RateLimit {
		t.Errorf("expected grpc rate limit to follow http, got %+v", cfg.GRPC.RateLimit)
	}

	cfg = Config{GRPC: GRPCConfig{RateLimit: RateLimitConfig{RPS: 1, Burst: 1}}}
	cfg.applyDefaults()
	if cfg.GRPC.RateLimit.RPS != 1 {
		t.Errorf("explicit grpc rate limit overwritten: %+v", cfg.GRPC.RateLimit)
	}
}
