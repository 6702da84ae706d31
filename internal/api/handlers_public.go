package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"classbook/internal/database"
	"classbook/internal/models"

	"github.com/julienschmidt/httprouter"
)

// classView is one row of the public class list.
type classView struct {
	ID        int64                  `json:"id"`
	Date      string                 `json:"date"`
	Time      string                 `json:"time"`
	Capacity  int                    `json:"capacity"`
	Booked    int                    `json:"booked"`
	Available int                    `json:"available"`
	Status    models.OccupancyStatus `json:"status"`
}

func (s *HTTPServer) newClassView(o models.ClassOccupancy) classView {
	return classView{
		ID:        o.Class.ID,
		Date:      o.Class.Date,
		Time:      o.Class.Time,
		Capacity:  o.Class.Capacity,
		Booked:    o.Booked,
		Available: o.Available(),
		Status:    models.OccupancyStatusFor(o.Booked, o.Class.Capacity, s.deps.Admission.MinEnrollment()),
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListClasses(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := s.deps.Admission.ListClassesWithOccupancy(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]classView, 0, len(list))
	for _, o := range list {
		out = append(out, s.newClassView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": out})
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrAccountNotFound) ||
		errors.Is(err, database.ErrClassNotFound) ||
		errors.Is(err, database.ErrBookingNotFound)
}
