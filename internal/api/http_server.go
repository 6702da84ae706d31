package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"classbook/internal/config"
	"classbook/internal/export"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// FailedNotifications lists outbox messages that ran out of retries.
type FailedNotifications interface {
	FailedNotifications(ctx context.Context) ([]models.Notification, error)
}

// Deps are the collaborators shared by the HTTP and gRPC transports.
type Deps struct {
	Admission *service.AdmissionService
	Accounts  *service.AccountService
	Classes   *service.ClassService
	Exporter  *export.Exporter
	Sessions  *SessionManager
	Tokens    *TokenIssuer
	Outbox    FailedNotifications
	// Ready reports whether the store answers; nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the JSON API.
type HTTPServer struct {
	cfg     config.HTTPConfig
	deps    Deps
	router  *httprouter.Router
	limiter *rateLimiter
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.HTTPConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	s := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		router:  httprouter.New(),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     base,
	}
	s.routes()

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// recover → request id + access log → security headers → CORS → rate limit → router
	var handler http.Handler = s.router
	handler = rateLimitMiddleware(s.limiter, handler)
	handler = corsMiddleware(cfg.AllowedOrigins, handler)
	handler = securityHeaders(handler)
	handler = loggingMiddleware(s.log, handler)
	handler = recoverMiddleware(s.log, handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() {
	s.handle(http.MethodGet, "/healthz", s.handleHealthz)
	s.handle(http.MethodGet, "/readyz", s.handleReadyz)
	s.handle(http.MethodGet, "/classes", s.handleListClasses)

	s.handle(http.MethodPost, "/register", s.handleRegister)
	s.handle(http.MethodPost, "/user/login", s.handleUserLogin)
	s.handle(http.MethodPost, "/user/logout", s.handleUserLogout)
	s.handle(http.MethodPost, "/api/token", s.handleIssueToken)

	s.handle(http.MethodPost, "/book/:classID", s.requireUser(s.handleBook))
	s.handle(http.MethodDelete, "/book/:classID", s.requireUser(s.handleCancel))
	s.handle(http.MethodGet, "/me/bookings", s.requireUser(s.handleMyBookings))
	s.handle(http.MethodGet, "/me/bookings/:bookingID/pass.png", s.requireUser(s.handlePass))

	s.handle(http.MethodPost, "/admin/login", s.handleAdminLogin)
	s.handle(http.MethodPost, "/admin/logout", s.handleAdminLogout)
	s.handle(http.MethodGet, "/admin", s.requireAdmin(s.handleDashboard))
	s.handle(http.MethodPost, "/admin/classes", s.requireAdmin(s.handleCreateClass))
	s.handle(http.MethodPut, "/admin/classes/:id", s.requireAdmin(s.handleUpdateClass))
	s.handle(http.MethodDelete, "/admin/classes/:id", s.requireAdmin(s.handleDeleteClass))
	s.handle(http.MethodGet, "/admin/classes/:id/roster.xlsx", s.requireAdmin(s.handleRosterXLSX))
	s.handle(http.MethodGet, "/admin/classes/:id/roster.pdf", s.requireAdmin(s.handleRosterPDF))
	s.handle(http.MethodGet, "/admin/users", s.requireAdmin(s.handleListUsers))
	s.handle(http.MethodPost, "/admin/users/:id/approve", s.requireAdmin(s.handleApproveUser))
	s.handle(http.MethodPost, "/admin/users/:id/suspend", s.requireAdmin(s.handleSuspendUser))
	s.handle(http.MethodDelete, "/admin/users/:id", s.requireAdmin(s.handleDeleteUser))
	s.handle(http.MethodDelete, "/admin/bookings/:id", s.requireAdmin(s.handleDeleteBooking))
	s.handle(http.MethodPost, "/admin/passes/verify", s.requireAdmin(s.handleVerifyPass))
	s.handle(http.MethodGet, "/admin/notifications/failed", s.requireAdmin(s.handleFailedNotifications))
}

func (s *HTTPServer) handle(method, path string, h httprouter.Handle) {
	s.router.Handle(method, path, instrument(method+" "+path, h))
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requireUser admits requests from an active account, identified by the
// session cookie or by a bearer token.
func (s *HTTPServer) requireUser(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		accountID := s.deps.Sessions.AccountID(r)
		if raw := bearerToken(r.Header.Get("Authorization")); raw != "" {
			claims, err := s.deps.Tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Token non valido.")
				return
			}
			accountID = claims.AccountID
		}
		if accountID == 0 {
			writeError(w, http.StatusUnauthorized, "Devi effettuare il login per prenotare.")
			return
		}

		account, err := s.deps.Accounts.GetAccount(r.Context(), accountID)
		if err != nil {
			if isNotFound(err) {
				_ = s.deps.Sessions.LogoutAccount(w, r)
				writeError(w, http.StatusUnauthorized, "Devi effettuare il login per prenotare.")
				return
			}
			s.internalError(w, r, err)
			return
		}
		if !s.deps.Accounts.IsActive(account.Status) {
			writeError(w, http.StatusForbidden, "Il tuo account non è ancora attivo. Attendi l'approvazione dell'admin.")
			return
		}

		ctx := context.WithValue(r.Context(), ctxAccount, account)
		next(w, r.WithContext(ctx), ps)
	}
}

func (s *HTTPServer) requireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !s.deps.Sessions.IsAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Devi effettuare il login come admin.")
			return
		}
		next(w, r, ps)
	}
}

func accountFrom(ctx context.Context) *models.Account {
	a, _ := ctx.Value(ctxAccount).(*models.Account)
	return a
}

func (s *HTTPServer) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).
		Str("request_id", requestIDFrom(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "Errore interno, riprova più tardi.")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(ps httprouter.Params, name string) (int64, bool) {
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}
