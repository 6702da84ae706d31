package service

import "errors"

var (
	ErrConsentRequired    = errors.New("privacy consent is required")
	ErrMissingFields      = errors.New("username, email and password are required")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is not active")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrInvalidSchedule    = errors.New("class date must be YYYY-MM-DD and time HH:MM")
)
