package api

import (
	"errors"
	"net/http"
	"time"

	"classbook/internal/database"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/julienschmidt/httprouter"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newAccountView(a *models.Account) accountView {
	return accountView{
		ID:        a.ID,
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in service.RegistrationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return
	}

	account, err := s.deps.Accounts.Register(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrConsentRequired):
		writeError(w, http.StatusBadRequest, "Devi acconsentire al trattamento dei dati per proseguire.")
		return
	case errors.Is(err, service.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Username, email e password sono obbligatori.")
		return
	case errors.Is(err, service.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "La password deve contenere almeno 8 caratteri.")
		return
	case errors.Is(err, database.ErrAccountExists):
		writeError(w, http.StatusConflict, "Email o username già esistenti.")
		return
	default:
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Registrazione inviata! Attendi l'approvazione dell'admin.",
		"account": newAccountView(account),
	})
}

// authenticate maps login failures to status codes; ok is false when a
// response was already written.
func (s *HTTPServer) authenticate(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return nil, false
	}

	account, err := s.deps.Accounts.Authenticate(r.Context(), c.Username, c.Password)
	switch {
	case err == nil:
		return account, true
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Credenziali non valide.")
	case errors.Is(err, service.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "Account non attivo. Attendi l'approvazione dell'admin.")
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "Troppi tentativi di accesso, riprova più tardi.")
	default:
		s.internalError(w, r, err)
	}
	return nil, false
}

func (s *HTTPServer) handleUserLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.deps.Sessions.LoginAccount(w, r, account); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Benvenuto, " + account.FirstName + "!",
		"account": newAccountView(account),
	})
}

func (s *HTTPServer) handleUserLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.deps.Sessions.LogoutAccount(w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logout effettuato.")
}

func (s *HTTPServer) handleIssueToken(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	account, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	token, expires, err := s.deps.Tokens.Issue(account)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expires.UTC(),
	})
}
