package api

import (
	"net/http"

	"classbook/internal/config"
	"classbook/internal/models"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionName     = "classbook_session"
	sessionAccount  = "account_id"
	sessionAdmin    = "admin"
	sessionUsername = "username"
)

// SessionManager keeps the browser login state in a signed cookie.
type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(cfg config.AuthConfig) *SessionManager {
	key := []byte(cfg.SessionSecret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = models.DefaultSessionMaxAge
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// get never fails: a cookie that does not decode yields an empty session.
func (m *SessionManager) get(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, sessionName)
	return s
}

func (m *SessionManager) AccountID(r *http.Request) int64 {
	id, _ := m.get(r).Values[sessionAccount].(int64)
	return id
}

func (m *SessionManager) IsAdmin(r *http.Request) bool {
	admin, _ := m.get(r).Values[sessionAdmin].(bool)
	return admin
}

func (m *SessionManager) LoginAccount(w http.ResponseWriter, r *http.Request, account *models.Account) error {
	s := m.get(r)
	s.Values[sessionAccount] = account.ID
	s.Values[sessionUsername] = account.Username
	return s.Save(r, w)
}

func (m *SessionManager) LogoutAccount(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	delete(s.Values, sessionAccount)
	delete(s.Values, sessionUsername)
	return s.Save(r, w)
}

func (m *SessionManager) LoginAdmin(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	s.Values[sessionAdmin] = true
	return s.Save(r, w)
}

func (m *SessionManager) LogoutAdmin(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	delete(s.Values, sessionAdmin)
	return s.Save(r, w)
}
