package models

import "time"

type Account struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	BirthDate      string    `json:"birth_date"`
	BirthPlace     string    `json:"birth_place"`
	Address        string    `json:"address"`
	City           string    `json:"city"`
	Municipality   string    `json:"municipality"`
	PostalCode     string    `json:"postal_code"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	PrivacyConsent bool      `json:"privacy_consent"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullName returns "First Last".
func (a *Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// IsActive reports whether status allows booking.
func IsActive(status string) bool {
	return status == AccountActive
}

// ValidAccountStatus reports whether status is one of the known states.
func ValidAccountStatus(status string) bool {
	switch status {
	case AccountPending, AccountActive, AccountSuspended:
		return true
	}
	return false
}
