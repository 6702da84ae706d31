package models

import "time"

type Booking struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	ClassID   int64     `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingDetail is a booking joined with its class and account.
type BookingDetail struct {
	Booking
	ClassDate string `json:"class_date"`
	ClassTime string `json:"class_time"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
}

// BookingOutcome is the business result of an admission attempt.
type BookingOutcome int

const (
	OutcomeUnknown BookingOutcome = iota
	OutcomeBooked
	OutcomeAlreadyBooked
	OutcomeClassFull
	OutcomeClassNotFound
)

func (o BookingOutcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeAlreadyBooked:
		return "already_booked"
	case OutcomeClassFull:
		return "class_full"
	case OutcomeClassNotFound:
		return "class_not_found"
	default:
		return "unknown"
	}
}

// Message returns the user-facing text shown for the outcome.
func (o BookingOutcome) Message() string {
	switch o {
	case OutcomeBooked:
		return "Prenotazione effettuata!"
	case OutcomeAlreadyBooked:
		return "Hai già una prenotazione per questa classe."
	case OutcomeClassFull:
		return "Classe piena!"
	case OutcomeClassNotFound:
		return "Classe inesistente."
	default:
		return "Errore durante la prenotazione."
	}
}
