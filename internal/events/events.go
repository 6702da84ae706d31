package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	EventAccountRegistered = "account_registered"
	EventAccountApproved   = "account_approved"
	EventAccountSuspended  = "account_suspended"
	EventBookingCreated    = "booking_created"
	EventBookingCancelled  = "booking_cancelled"
)

// AccountEventPayload is the account snapshot carried by account_* events.
type AccountEventPayload struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// BookingEventPayload is emitted only after the booking transaction has
// committed (or the row has been deleted).
type BookingEventPayload struct {
	BookingID int64     `json:"booking_id"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	ClassID   int64     `json:"class_id"`
	ClassDate string    `json:"class_date"`
	ClassTime string    `json:"class_time"`
	Booked    int       `json:"booked"`
	Capacity  int       `json:"capacity"`
	Mode      string    `json:"mode,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	At        time.Time `json:"at"`
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously on the
// publisher's goroutine, in subscription order.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to every subscriber. A failing handler does not
// stop the others; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes payload and publishes it. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
