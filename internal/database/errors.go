package database

import (
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrClassNotFound    = errors.New("class not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAccountExists    = errors.New("email or username already registered")
	ErrDuplicateBooking = errors.New("booking already exists for account and class")
	ErrInvalidCapacity  = errors.New("class capacity must not be negative")
	ErrInvalidStatus    = errors.New("invalid account status")
)

// IsUnavailable reports whether err means the store itself is gone
// (closed handle or dropped connection) rather than a failed statement.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	// database/sql не экспортирует ошибку закрытой базы
	return strings.Contains(err.Error(), "sql: database is closed")
}
