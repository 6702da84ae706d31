package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"classbook/internal/database"
	"classbook/internal/export"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/julienschmidt/httprouter"
)

type classInput struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Capacity int    `json:"capacity"`
}

func (s *HTTPServer) handleAdminLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return
	}

	err := s.deps.Accounts.AuthenticateAdmin(r.Context(), c.Username, c.Password, clientIP(r))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "Troppi tentativi di accesso, riprova più tardi.")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Credenziali errate!")
		return
	default:
		s.internalError(w, r, err)
		return
	}

	if err := s.deps.Sessions.LoginAdmin(w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Login admin effettuato.")
}

func (s *HTTPServer) handleAdminLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.deps.Sessions.LogoutAdmin(w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logout admin effettuato.")
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rosters, err := s.deps.Classes.Dashboard(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classes":        rosters,
		"min_enrollment": s.deps.Admission.MinEnrollment(),
		"mode":           s.deps.Admission.Mode(),
	})
}

// classError writes the response for a failed class write.
func (s *HTTPServer) classError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "Data (YYYY-MM-DD) o ora (HH:MM) non valida.")
	case errors.Is(err, database.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "La capienza non può essere negativa.")
	case errors.Is(err, database.ErrClassNotFound):
		writeError(w, http.StatusNotFound, "Classe inesistente.")
	default:
		s.internalError(w, r, err)
	}
}

func (s *HTTPServer) handleCreateClass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in classInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return
	}
	class := &models.ClassSession{Date: in.Date, Time: in.Time, Capacity: in.Capacity}
	if err := s.deps.Classes.CreateClass(r.Context(), class); err != nil {
		s.classError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Lezione aggiunta con successo!",
		"class":   class,
	})
}

func (s *HTTPServer) handleUpdateClass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Classe inesistente.")
		return
	}
	var in classInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return
	}
	class := &models.ClassSession{ID: id, Date: in.Date, Time: in.Time, Capacity: in.Capacity}
	if err := s.deps.Classes.UpdateClass(r.Context(), class); err != nil {
		s.classError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Lezione modificata con successo!",
		"class":   class,
	})
}

func (s *HTTPServer) handleDeleteClass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Classe inesistente.")
		return
	}
	if err := s.deps.Classes.DeleteClass(r.Context(), id); err != nil {
		s.classError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Lezione eliminata con successo!")
}

type rosterWriter func(e *export.Exporter, buf *bytes.Buffer, class models.ClassSession, list []models.BookingDetail) error

func (s *HTTPServer) serveRoster(w http.ResponseWriter, r *http.Request, ps httprouter.Params, contentType, ext string, render rosterWriter) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Classe inesistente.")
		return
	}
	class, err := s.deps.Classes.GetClassSession(r.Context(), id)
	if err != nil {
		s.classError(w, r, err)
		return
	}
	list, err := s.deps.Admission.ListClassBookings(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := render(s.deps.Exporter, &buf, *class, list); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=classe-%s-%s.%s", class.Date, class.Time, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleRosterXLSX(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveRoster(w, r, ps, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx",
		func(e *export.Exporter, buf *bytes.Buffer, class models.ClassSession, list []models.BookingDetail) error {
			return e.RosterXLSX(buf, class, list)
		})
}

func (s *HTTPServer) handleRosterPDF(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveRoster(w, r, ps, "application/pdf", "pdf",
		func(e *export.Exporter, buf *bytes.Buffer, class models.ClassSession, list []models.BookingDetail) error {
			return e.RosterPDF(buf, class, list)
		})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	accounts, err := s.deps.Accounts.ListAccounts(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *HTTPServer) handleApproveUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.changeStatus(w, r, ps, s.deps.Accounts.Approve, "Utente approvato e notifica inviata via mail.")
}

func (s *HTTPServer) handleSuspendUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.changeStatus(w, r, ps, s.deps.Accounts.Suspend, "Utente sospeso.")
}

func (s *HTTPServer) changeStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params,
	apply func(ctx context.Context, id int64) (*models.Account, error), message string) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Utente inesistente.")
		return
	}
	account, err := apply(r.Context(), id)
	if errors.Is(err, database.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Utente inesistente.")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "user": newAccountView(account)})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Utente inesistente.")
		return
	}
	err := s.deps.Accounts.Delete(r.Context(), id)
	if errors.Is(err, database.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Utente inesistente.")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Utente eliminato (e prenotazioni rimosse).")
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := pathID(ps, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}
	err := s.deps.Admission.RemoveBooking(r.Context(), id)
	if errors.Is(err, database.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Prenotazione eliminata.")
}

func (s *HTTPServer) handleVerifyPass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in struct {
		Payload string `json:"payload"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Dati non validi.")
		return
	}

	claims, err := s.deps.Exporter.VerifyPass(in.Payload)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	booking, err := s.deps.Admission.GetBooking(r.Context(), claims.BookingID)
	if errors.Is(err, database.ErrBookingNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": "booking_removed"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	valid := booking.AccountID == claims.AccountID && booking.ClassID == claims.ClassID
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "booking": booking})
}

func (s *HTTPServer) handleFailedNotifications(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Outbox == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []models.Notification{}})
		return
	}
	list, err := s.deps.Outbox.FailedNotifications(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
