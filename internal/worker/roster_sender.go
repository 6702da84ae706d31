package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"classbook/internal/events"
	"classbook/internal/models"
)

// RosterMirror is the external copy of the booking roster.
type RosterMirror interface {
	UpsertBooking(ctx context.Context, p events.BookingEventPayload) error
	DeleteBooking(ctx context.Context, bookingID int64) error
}

// RosterSender applies booking events to a RosterMirror.
type RosterSender struct {
	mirror RosterMirror
}

func NewRosterSender(mirror RosterMirror) *RosterSender {
	return &RosterSender{mirror: mirror}
}

func (s *RosterSender) Send(ctx context.Context, n models.Notification) error {
	var p events.BookingEventPayload
	if err := json.Unmarshal([]byte(n.Body), &p); err != nil {
		return Permanent(fmt.Errorf("decode booking payload: %w", err))
	}
	if p.BookingID == 0 {
		return Permanent(fmt.Errorf("booking id missing"))
	}

	switch n.EventType {
	case events.EventBookingCreated:
		return s.mirror.UpsertBooking(ctx, p)
	case events.EventBookingCancelled:
		return s.mirror.DeleteBooking(ctx, p.BookingID)
	default:
		return Permanent(fmt.Errorf("unknown roster event: %s", n.EventType))
	}
}
