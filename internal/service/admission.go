package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/metrics"
	"classbook/internal/models"

	"github.com/rs/zerolog"
)

// AdmissionService decides whether an account gets a seat in a class.
// Business outcomes are returned as models.BookingOutcome; the error return
// is reserved for infrastructure failures.
type AdmissionService struct {
	store         domain.AdmissionStore
	bookings      domain.BookingRepository
	accounts      domain.AccountDirectory
	classes       domain.ClassCatalog
	eventBus      domain.EventPublisher
	mode          string
	minEnrollment int
	logger        *zerolog.Logger
}

func NewAdmissionService(
	store domain.AdmissionStore,
	bookings domain.BookingRepository,
	accounts domain.AccountDirectory,
	classes domain.ClassCatalog,
	eventBus domain.EventPublisher,
	mode string,
	minEnrollment int,
	logger *zerolog.Logger,
) *AdmissionService {
	if mode == "" {
		mode = models.AdmissionFaithful
	}
	if minEnrollment < 0 {
		minEnrollment = models.DefaultMinEnrollment
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AdmissionService{
		store:         store,
		bookings:      bookings,
		accounts:      accounts,
		classes:       classes,
		eventBus:      eventBus,
		mode:          mode,
		minEnrollment: minEnrollment,
		logger:        logger,
	}
}

func (s *AdmissionService) Mode() string { return s.mode }

func (s *AdmissionService) MinEnrollment() int { return s.minEnrollment }

// AttemptBooking runs the admission decision in one store transaction.
func (s *AdmissionService) AttemptBooking(ctx context.Context, accountID, classID int64) (models.BookingOutcome, error) {
	started := time.Now()

	var (
		outcome models.BookingOutcome
		booking *models.Booking
	)
	err := s.store.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		var err error
		if s.mode == models.AdmissionHardened {
			outcome, booking, err = s.admitLocked(ctx, tx, accountID, classID)
		} else {
			outcome, booking, err = s.admitUnlocked(ctx, tx, accountID, classID)
		}
		return err
	})

	switch {
	case errors.Is(err, database.ErrClassNotFound):
		outcome, err = models.OutcomeClassNotFound, nil
	case errors.Is(err, database.ErrDuplicateBooking):
		outcome, err = models.OutcomeAlreadyBooked, nil
	}

	label := outcome.String()
	if err != nil {
		label = "error"
		outcome = models.OutcomeUnknown
	}
	metrics.ObserveAdmission(s.mode, label, time.Since(started))

	if err != nil {
		s.logger.Error().Err(err).
			Int64("account_id", accountID).
			Int64("class_id", classID).
			Str("mode", s.mode).
			Msg("admission failed")
		return models.OutcomeUnknown, fmt.Errorf("failed to attempt booking: %w", err)
	}

	s.logger.Info().
		Int64("account_id", accountID).
		Int64("class_id", classID).
		Str("mode", s.mode).
		Str("outcome", label).
		Msg("admission decided")

	if outcome == models.OutcomeBooked && booking != nil {
		s.publishBooking(ctx, events.EventBookingCreated, *booking, "")
	}
	return outcome, nil
}

// admitUnlocked reads capacity and count without a lock, then inserts.
// Two concurrent requests for the last seat can both pass the count check.
func (s *AdmissionService) admitUnlocked(ctx context.Context, tx domain.AdmissionTx, accountID, classID int64) (models.BookingOutcome, *models.Booking, error) {
	capacity, err := tx.ClassCapacity(ctx, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	count, err := tx.CountBookings(ctx, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	exists, err := tx.HasBooking(ctx, accountID, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	if exists {
		return models.OutcomeAlreadyBooked, nil, nil
	}
	if count >= capacity {
		return models.OutcomeClassFull, nil, nil
	}

	booking, err := tx.InsertBooking(ctx, accountID, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	return models.OutcomeBooked, booking, nil
}

// admitLocked holds the class lock for the whole decision and inserts only
// while a seat is free, so bookings never exceed capacity.
func (s *AdmissionService) admitLocked(ctx context.Context, tx domain.AdmissionTx, accountID, classID int64) (models.BookingOutcome, *models.Booking, error) {
	capacity, err := tx.LockClass(ctx, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	count, err := tx.CountBookings(ctx, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	exists, err := tx.HasBooking(ctx, accountID, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	if exists {
		return models.OutcomeAlreadyBooked, nil, nil
	}
	if count >= capacity {
		return models.OutcomeClassFull, nil, nil
	}

	booking, ok, err := tx.InsertBookingIfSeat(ctx, accountID, classID)
	if err != nil {
		return models.OutcomeUnknown, nil, err
	}
	if !ok {
		return models.OutcomeClassFull, nil, nil
	}
	return models.OutcomeBooked, booking, nil
}

// CancelBooking removes the caller's booking for a class.
func (s *AdmissionService) CancelBooking(ctx context.Context, accountID, classID int64) error {
	booking, err := s.bookings.DeleteAccountBooking(ctx, accountID, classID)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("account_id", accountID).Int64("class_id", classID).Msg("booking cancelled")
	s.publishBooking(ctx, events.EventBookingCancelled, *booking, "user")
	return nil
}

// RemoveBooking deletes any booking by id on behalf of an administrator.
func (s *AdmissionService) RemoveBooking(ctx context.Context, bookingID int64) error {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.bookings.DeleteBooking(ctx, bookingID); err != nil {
		return err
	}
	s.logger.Info().Int64("booking_id", bookingID).Msg("booking removed by admin")
	s.publishBooking(ctx, events.EventBookingCancelled, *booking, "admin")
	return nil
}

func (s *AdmissionService) ListClassesWithOccupancy(ctx context.Context) ([]models.ClassOccupancy, error) {
	return s.bookings.ListClassesWithOccupancy(ctx)
}

func (s *AdmissionService) GetClassOccupancy(ctx context.Context, classID int64) (*models.ClassOccupancy, error) {
	return s.bookings.GetClassOccupancy(ctx, classID)
}

// ClassOccupancyStatus classifies a class as piena, sotto_minimo or ok.
func (s *AdmissionService) ClassOccupancyStatus(ctx context.Context, classID int64) (models.OccupancyStatus, error) {
	occ, err := s.bookings.GetClassOccupancy(ctx, classID)
	if err != nil {
		return "", err
	}
	return models.OccupancyStatusFor(occ.Booked, occ.Class.Capacity, s.minEnrollment), nil
}

func (s *AdmissionService) ListAccountBookings(ctx context.Context, accountID int64) ([]models.BookingDetail, error) {
	return s.bookings.ListAccountBookings(ctx, accountID)
}

func (s *AdmissionService) GetBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.bookings.GetBooking(ctx, bookingID)
}

func (s *AdmissionService) ListClassBookings(ctx context.Context, classID int64) ([]models.BookingDetail, error) {
	return s.bookings.ListClassBookings(ctx, classID)
}

// publishBooking runs after commit. Lookup failures only thin the payload.
func (s *AdmissionService) publishBooking(ctx context.Context, eventType string, booking models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		AccountID: booking.AccountID,
		ClassID:   booking.ClassID,
		Mode:      s.mode,
		ChangedBy: changedBy,
		At:        time.Now(),
	}
	if s.accounts != nil {
		if account, err := s.accounts.GetAccount(ctx, booking.AccountID); err == nil {
			payload.Username = account.Username
			payload.FullName = account.FullName()
			payload.Email = account.Email
		}
	}
	if occ, err := s.bookings.GetClassOccupancy(ctx, booking.ClassID); err == nil {
		payload.ClassDate = occ.Class.Date
		payload.ClassTime = occ.Class.Time
		payload.Capacity = occ.Class.Capacity
		payload.Booked = occ.Booked
	} else if s.classes != nil {
		if class, err := s.classes.GetClassSession(ctx, booking.ClassID); err == nil {
			payload.ClassDate = class.Date
			payload.ClassTime = class.Time
			payload.Capacity = class.Capacity
		}
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
