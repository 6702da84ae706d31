package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationInput is the self-registration form.
type RegistrationInput struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	BirthDate      string `json:"birth_date"`
	BirthPlace     string `json:"birth_place"`
	Address        string `json:"address"`
	City           string `json:"city"`
	Municipality   string `json:"municipality"`
	PostalCode     string `json:"postal_code"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	PrivacyConsent bool   `json:"privacy_consent"`
}

type AccountSettings struct {
	LoginMaxAttempts  int
	LoginWindow       time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

type AccountService struct {
	repo     domain.AccountRepository
	throttle domain.ThrottleRepository
	eventBus domain.EventPublisher
	settings AccountSettings
	hashCost int
	logger   *zerolog.Logger
}

func NewAccountService(repo domain.AccountRepository, throttle domain.ThrottleRepository, eventBus domain.EventPublisher, settings AccountSettings, logger *zerolog.Logger) *AccountService {
	if settings.LoginMaxAttempts <= 0 {
		settings.LoginMaxAttempts = models.DefaultLoginMaxAttempts
	}
	if settings.LoginWindow <= 0 {
		settings.LoginWindow = models.DefaultLoginWindow * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AccountService{
		repo:     repo,
		throttle: throttle,
		eventBus: eventBus,
		settings: settings,
		hashCost: bcrypt.DefaultCost,
		logger:   logger,
	}
}

func (s *AccountService) Register(ctx context.Context, in RegistrationInput) (*models.Account, error) {
	if !in.PrivacyConsent {
		return nil, ErrConsentRequired
	}

	account := &models.Account{
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		BirthDate:      strings.TrimSpace(in.BirthDate),
		BirthPlace:     strings.TrimSpace(in.BirthPlace),
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		Municipality:   strings.TrimSpace(in.Municipality),
		PostalCode:     strings.TrimSpace(in.PostalCode),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:          strings.TrimSpace(in.Phone),
		Username:       strings.TrimSpace(in.Username),
		PrivacyConsent: true,
		Status:         models.AccountPending,
	}
	if account.Username == "" || account.Email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if len(in.Password) < models.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = string(hash)

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("account_id", account.ID).Str("username", account.Username).Msg("account registered")
	s.publish(events.EventAccountRegistered, account, "")
	return account, nil
}

// Authenticate checks user credentials. Only attivo accounts may log in.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	key := "login:" + strings.ToLower(username)

	if s.throttle != nil {
		allowed, err := s.throttle.CheckRateLimit(ctx, key, s.settings.LoginMaxAttempts, s.settings.LoginWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login throttle unavailable")
		} else if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	account, err := s.repo.GetAccountByUsername(ctx, username)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !s.IsActive(account.Status) {
		return nil, ErrAccountInactive
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, key); err != nil {
			s.logger.Warn().Err(err).Msg("failed to reset login throttle")
		}
	}
	return account, nil
}

// AuthenticateAdmin checks the configured administrator credential. Failed
// attempts are counted per submitted username and client address, so a
// stranger guessing from elsewhere cannot lock the real admin out.
func (s *AccountService) AuthenticateAdmin(ctx context.Context, username, password, client string) error {
	key := "admin-login:" + strings.ToLower(strings.TrimSpace(username)) + "@" + client
	if s.throttle != nil {
		allowed, err := s.throttle.CheckRateLimit(ctx, key, s.settings.LoginMaxAttempts, s.settings.LoginWindow)
		if err == nil && !allowed {
			return ErrTooManyAttempts
		}
	}
	if s.settings.AdminPasswordHash == "" || username != s.settings.AdminUsername {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(s.settings.AdminPasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	if s.throttle != nil {
		_ = s.throttle.Reset(ctx, key)
	}
	return nil
}

func (s *AccountService) Approve(ctx context.Context, id int64) (*models.Account, error) {
	return s.setStatus(ctx, id, models.AccountActive, events.EventAccountApproved)
}

func (s *AccountService) Suspend(ctx context.Context, id int64) (*models.Account, error) {
	return s.setStatus(ctx, id, models.AccountSuspended, events.EventAccountSuspended)
}

func (s *AccountService) setStatus(ctx context.Context, id int64, status, eventType string) (*models.Account, error) {
	if err := s.repo.SetAccountStatus(ctx, id, status); err != nil {
		return nil, err
	}
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("account_id", id).Str("status", status).Msg("account status changed")
	s.publish(eventType, account, "admin")
	return account, nil
}

// Delete removes the account together with its bookings.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("account_id", id).Msg("account deleted")
	return nil
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *AccountService) IsActive(status string) bool {
	return models.IsActive(status)
}

func (s *AccountService) publish(eventType string, account *models.Account, changedBy string) {
	if s.eventBus == nil {
		return
	}
	payload := events.AccountEventPayload{
		AccountID: account.ID,
		Username:  account.Username,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Email:     account.Email,
		Status:    account.Status,
		ChangedBy: changedBy,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("account_id", account.ID).Msg("publish event error")
	}
}
