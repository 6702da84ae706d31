package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classbook/internal/config"
	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/export"
	"classbook/internal/models"
	"classbook/internal/repository"
	"classbook/internal/service"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword      = "password123"
	testAdminUser     = "admin"
	testAdminPassword = "admin-secret"
)

type testEnv struct {
	db   *database.DB
	deps Deps
	srv  *HTTPServer
}

type envOption func(*config.HTTPConfig, *Deps)

func withRateLimit(rps float64, burst int) envOption {
	return func(cfg *config.HTTPConfig, _ *Deps) {
		cfg.RateLimit = config.RateLimitConfig{RPS: rps, Burst: burst}
	}
}

func withOrigins(origins ...string) envOption {
	return func(cfg *config.HTTPConfig, _ *Deps) {
		cfg.AllowedOrigins = origins
	}
}

func withReady(fn func(ctx context.Context) error) envOption {
	return func(_ *config.HTTPConfig, d *Deps) {
		d.Ready = fn
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil, opts...)
}

// newTestEnvWithStore swaps the admission store when store is non-nil.
func newTestEnvWithStore(t *testing.T, store domain.AdmissionStore, opts ...envOption) *testEnv {
	t.Helper()

	db, err := database.NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	adminHash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	accounts := service.NewAccountService(db, repository.NewMemoryThrottleRepository(), nil, service.AccountSettings{
		AdminUsername:     testAdminUser,
		AdminPasswordHash: string(adminHash),
	}, nil)

	var admissionStore domain.AdmissionStore = db
	if store != nil {
		admissionStore = store
	}
	admission := service.NewAdmissionService(admissionStore, db, accounts, db, nil, models.AdmissionFaithful, 5, nil)
	classes := service.NewClassService(db, 5, nil)

	exporter, err := export.NewExporter(config.ExportConfig{PassSecret: "pass-secret"})
	require.NoError(t, err)

	deps := Deps{
		Admission: admission,
		Accounts:  accounts,
		Classes:   classes,
		Exporter:  exporter,
		Sessions:  NewSessionManager(config.AuthConfig{SessionSecret: "0123456789abcdef0123456789abcdef"}),
		Tokens:    NewTokenIssuer("jwt-secret", time.Hour),
	}
	cfg := config.HTTPConfig{}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	return &testEnv{db: db, deps: deps, srv: NewHTTPServer(cfg, deps, nil)}
}

func (e *testEnv) createAccount(t *testing.T, username, status string) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	a := &models.Account{
		FirstName:      "Mario",
		LastName:       "Rossi",
		Email:          username + "@example.com",
		Username:       username,
		PasswordHash:   string(hash),
		PrivacyConsent: true,
		Status:         status,
	}
	require.NoError(t, e.db.CreateAccount(context.Background(), a))
	return a
}

func (e *testEnv) createClass(t *testing.T, date, clock string, capacity int) *models.ClassSession {
	t.Helper()
	c := &models.ClassSession{Date: date, Time: clock, Capacity: capacity}
	require.NoError(t, e.db.CreateClass(context.Background(), c))
	return c
}

// client replays the cookies the server hands out.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
	bearer  string
	header  http.Header
}

func (e *testEnv) client(t *testing.T) *client {
	return &client{t: t, h: e.srv.Handler(), cookies: map[string]*http.Cookie{}, header: http.Header{}}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(c.t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) login(username string) {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/user/login", credentials{Username: username, Password: testPassword})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (c *client) loginAdmin() {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/admin/login", credentials{Username: testAdminUser, Password: testAdminPassword})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// brokenStore fails every admission transaction.
type brokenStore struct{}

func (brokenStore) WithAdmissionTx(context.Context, func(tx domain.AdmissionTx) error) error {
	return errors.New("disk I/O error")
}
