package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classbook/internal/models"
)

const accountColumns = `id, first_name, last_name, birth_date, birth_place, address, city, municipality,
        postal_code, email, phone, username, password_hash, privacy_consent, status, created_at`

// CreateAccount inserts a self-registered account. A duplicate email or
// username yields ErrAccountExists.
func (db *DB) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.Status == "" {
		a.Status = models.AccountPending
	}
	if !models.ValidAccountStatus(a.Status) {
		return ErrInvalidStatus
	}

	now := time.Now().UTC()
	id, _, err := insertReturningID(ctx, db.DB, db.driver, `
        INSERT INTO accounts (first_name, last_name, birth_date, birth_place, address, city, municipality,
            postal_code, email, phone, username, password_hash, privacy_consent, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FirstName, a.LastName, a.BirthDate, a.BirthPlace, a.Address, a.City, a.Municipality,
		a.PostalCode, a.Email, a.Phone, a.Username, a.PasswordHash, a.PrivacyConsent, a.Status, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return db.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return db.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
}

func (db *DB) queryAccount(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	row := db.QueryRowContext(ctx, db.rebind(query), args...)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.BirthDate, &a.BirthPlace, &a.Address, &a.City,
		&a.Municipality, &a.PostalCode, &a.Email, &a.Phone, &a.Username, &a.PasswordHash,
		&a.PrivacyConsent, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts orders by status descending (sospeso, pending, attivo), then
// last and first name.
func (db *DB) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY status DESC, last_name ASC, first_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (db *DB) SetAccountStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidAccountStatus(status) {
		return ErrInvalidStatus
	}
	res, err := db.ExecContext(ctx, db.rebind(`UPDATE accounts SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	return expectAffected(res, ErrAccountNotFound)
}

// DeleteAccount removes the account; its bookings go with it (ON DELETE CASCADE).
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectAffected(res, ErrAccountNotFound)
}
