package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"classbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Admission     AdmissionConfig    `yaml:"admission"`
	Redis         RedisConfig        `yaml:"redis"`
	HTTP          HTTPConfig         `yaml:"http"`
	GRPC          GRPCConfig         `yaml:"grpc"`
	Auth          AuthConfig         `yaml:"auth"`
	Notifications NotificationConfig `yaml:"notifications"`
	Exports       ExportConfig       `yaml:"exports"`
	Backup        BackupConfig       `yaml:"backup"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver       string         `yaml:"driver"`
	Path         string         `yaml:"path"`
	Postgres     PostgresConfig `yaml:"postgres"`
	MaxOpenConns int            `yaml:"max_open_conns"`
	SeedFile     string         `yaml:"seed_file"`
	SeedDefaults bool           `yaml:"seed_defaults"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MigrationTable string `yaml:"migration_table"`
}

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type AdmissionConfig struct {
	// Mode is "faithful" (read-then-insert) or "hardened" (locked conditional insert).
	Mode          string `yaml:"mode"`
	MinEnrollment int    `yaml:"min_enrollment"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type HTTPConfig struct {
	Enabled        bool            `yaml:"enabled"`
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type GRPCConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Port       int             `yaml:"port"`
	Reflection bool            `yaml:"reflection"`
	TLS        TLSConfig       `yaml:"tls"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type TLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type AuthConfig struct {
	SessionSecret     string        `yaml:"session_secret"`
	SessionMaxAge     int           `yaml:"session_max_age"`
	SecureCookies     bool          `yaml:"secure_cookies"`
	AdminUsername     string        `yaml:"admin_username"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	LoginMaxAttempts  int           `yaml:"login_max_attempts"`
	LoginWindow       time.Duration `yaml:"login_window"`
}

type NotificationConfig struct {
	Enabled    bool           `yaml:"enabled"`
	AdminEmail string         `yaml:"admin_email"`
	SMTP       SMTPConfig     `yaml:"smtp"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Sheets     SheetsConfig   `yaml:"sheets"`
	Worker     WorkerConfig   `yaml:"worker"`
}

type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type WorkerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ExportConfig struct {
	PassSecret string `yaml:"pass_secret"`
	Timezone   string `yaml:"timezone"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Admission.Mode {
	case models.AdmissionFaithful, models.AdmissionHardened:
	default:
		return fmt.Errorf("unknown admission mode %q", c.Admission.Mode)
	}
	if c.Admission.MinEnrollment < 0 {
		return errors.New("admission min_enrollment must not be negative")
	}

	if c.App.Environment == "production" {
		if len(c.Auth.SessionSecret) < 32 {
			return errors.New("auth session_secret must be at least 32 bytes in production")
		}
		if c.Auth.JWTSecret == "" {
			return errors.New("auth jwt_secret is required in production")
		}
	}
	if c.Auth.AdminUsername != "" && c.Auth.AdminPasswordHash == "" {
		return errors.New("auth admin_password_hash is required when admin_username is set")
	}

	if c.GRPC.Enabled && c.GRPC.TLS.Enabled && (c.GRPC.TLS.CertFile == "" || c.GRPC.TLS.KeyFile == "") {
		return errors.New("grpc tls requires cert_file and key_file")
	}

	return c.Notifications.validate()
}

func (n NotificationConfig) validate() error {
	if !n.Enabled {
		return nil
	}
	if n.SMTP.Enabled && n.SMTP.Host == "" {
		return errors.New("notifications smtp host is required")
	}
	if n.Telegram.Enabled && (n.Telegram.BotToken == "" || n.Telegram.ChatID == 0) {
		return errors.New("notifications telegram requires bot_token and chat_id")
	}
	if n.Sheets.Enabled && (n.Sheets.CredentialsFile == "" || n.Sheets.SpreadsheetID == "") {
		return errors.New("notifications sheets requires credentials_file and spreadsheet_id")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "classbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}

	if c.Admission.Mode == "" {
		c.Admission.Mode = models.AdmissionFaithful
	}
	if c.Admission.MinEnrollment == 0 {
		c.Admission.MinEnrollment = models.DefaultMinEnrollment
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RateLimit.RPS == 0 {
		c.HTTP.RateLimit.RPS = 10
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = 20
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 8081
	}
	if c.GRPC.RateLimit.RPS == 0 {
		c.GRPC.RateLimit = c.HTTP.RateLimit
	}

	if c.Auth.SessionMaxAge == 0 {
		c.Auth.SessionMaxAge = models.DefaultSessionMaxAge
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = models.DefaultTokenTTL * time.Second
	}
	if c.Auth.LoginMaxAttempts == 0 {
		c.Auth.LoginMaxAttempts = models.DefaultLoginMaxAttempts
	}
	if c.Auth.LoginWindow == 0 {
		c.Auth.LoginWindow = models.DefaultLoginWindow * time.Second
	}

	if c.Notifications.SMTP.Port == 0 {
		c.Notifications.SMTP.Port = 587
	}
	if c.Notifications.SMTP.From == "" {
		c.Notifications.SMTP.From = c.Notifications.SMTP.Username
	}
	if c.Notifications.Sheets.SheetName == "" {
		c.Notifications.Sheets.SheetName = "Prenotazioni"
	}
	if c.Notifications.Worker.PollInterval == 0 {
		c.Notifications.Worker.PollInterval = 2 * time.Second
	}
	if c.Notifications.Worker.BatchSize == 0 {
		c.Notifications.Worker.BatchSize = 20
	}

	if c.Exports.Timezone == "" {
		c.Exports.Timezone = "Europe/Rome"
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
