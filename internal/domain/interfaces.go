package domain

import (
	"context"
	"time"

	"classbook/internal/models"
)

// AccountDirectory resolves identities and their approval state.
type AccountDirectory interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	IsActive(status string) bool
}

// ClassCatalog resolves class sessions and their capacity.
type ClassCatalog interface {
	GetClassSession(ctx context.Context, id int64) (*models.ClassSession, error)
}

// AdmissionStore runs fn inside a single store transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type AdmissionStore interface {
	WithAdmissionTx(ctx context.Context, fn func(tx AdmissionTx) error) error
}

// AdmissionTx is the set of statements an admission decision may issue.
type AdmissionTx interface {
	// ClassCapacity returns the capacity of a class without locking it.
	ClassCapacity(ctx context.Context, classID int64) (int, error)
	// LockClass returns the capacity and holds a write lock on the class
	// until the transaction ends.
	LockClass(ctx context.Context, classID int64) (int, error)
	CountBookings(ctx context.Context, classID int64) (int, error)
	HasBooking(ctx context.Context, accountID, classID int64) (bool, error)
	// InsertBooking inserts unconditionally; the unique index is the only guard.
	InsertBooking(ctx context.Context, accountID, classID int64) (*models.Booking, error)
	// InsertBookingIfSeat inserts only while the class has a free seat.
	// ok is false when the class was full at insert time.
	InsertBookingIfSeat(ctx context.Context, accountID, classID int64) (booking *models.Booking, ok bool, err error)
}

// BookingRepository covers the non-admission booking queries.
type BookingRepository interface {
	ListClassesWithOccupancy(ctx context.Context) ([]models.ClassOccupancy, error)
	GetClassOccupancy(ctx context.Context, classID int64) (*models.ClassOccupancy, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	DeleteAccountBooking(ctx context.Context, accountID, classID int64) (*models.Booking, error)
	ListAccountBookings(ctx context.Context, accountID int64) ([]models.BookingDetail, error)
	ListClassBookings(ctx context.Context, classID int64) ([]models.BookingDetail, error)
}

type ClassRepository interface {
	CreateClass(ctx context.Context, class *models.ClassSession) error
	UpdateClass(ctx context.Context, class *models.ClassSession) error
	DeleteClass(ctx context.Context, id int64) error
	GetClassSession(ctx context.Context, id int64) (*models.ClassSession, error)
	ListClassesWithOccupancy(ctx context.Context) ([]models.ClassOccupancy, error)
	ListBookedUsernames(ctx context.Context) (map[int64][]string, error)
	SeedClasses(ctx context.Context, classes []models.ClassSession) (int, error)
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	SetAccountStatus(ctx context.Context, id int64, status string) error
	DeleteAccount(ctx context.Context, id int64) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	ClaimNotification(ctx context.Context, id int64, leaseUntil time.Time) (bool, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetFailedNotifications(ctx context.Context) ([]models.Notification, error)
}

// ThrottleRepository counts attempts per key inside a fixed window.
type ThrottleRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationQueue accepts outbound messages for asynchronous delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n models.Notification) error
}
