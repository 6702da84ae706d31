package api

import (
	"errors"
	"net/http"

	"classbook/internal/database"
	"classbook/internal/models"

	"github.com/julienschmidt/httprouter"
)

// outcomeStatus maps admission outcomes to HTTP status codes.
func outcomeStatus(o models.BookingOutcome) int {
	switch o {
	case models.OutcomeBooked:
		return http.StatusCreated
	case models.OutcomeAlreadyBooked, models.OutcomeClassFull:
		return http.StatusConflict
	case models.OutcomeClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account := accountFrom(r.Context())
	classID, ok := pathID(ps, "classID")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"outcome": models.OutcomeClassNotFound.String(),
			"message": models.OutcomeClassNotFound.Message(),
		})
		return
	}

	outcome, err := s.deps.Admission.AttemptBooking(r.Context(), account.ID, classID)
	if err != nil {
		s.log.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Int64("account_id", account.ID).
			Int64("class_id", classID).
			Msg("booking failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"outcome": models.OutcomeUnknown.String(),
			"message": models.OutcomeUnknown.Message(),
		})
		return
	}

	writeJSON(w, outcomeStatus(outcome), map[string]string{
		"outcome": outcome.String(),
		"message": outcome.Message(),
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account := accountFrom(r.Context())
	classID, ok := pathID(ps, "classID")
	if !ok {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}

	err := s.deps.Admission.CancelBooking(r.Context(), account.ID, classID)
	if errors.Is(err, database.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Prenotazione annullata.")
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	account := accountFrom(r.Context())
	list, err := s.deps.Admission.ListAccountBookings(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if list == nil {
		list = []models.BookingDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (s *HTTPServer) handlePass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account := accountFrom(r.Context())
	bookingID, ok := pathID(ps, "bookingID")
	if !ok {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}

	booking, err := s.deps.Admission.GetBooking(r.Context(), bookingID)
	if errors.Is(err, database.ErrBookingNotFound) || (err == nil && booking.AccountID != account.ID) {
		writeError(w, http.StatusNotFound, "Prenotazione inesistente.")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	png, err := s.deps.Exporter.PassPNG(*booking, 256)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
