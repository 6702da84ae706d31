package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classbook/internal/models"
)

func (db *DB) CreateClass(ctx context.Context, class *models.ClassSession) error {
	if class.Capacity < 0 {
		return ErrInvalidCapacity
	}
	now := time.Now().UTC()
	id, _, err := insertReturningID(ctx, db.DB, db.driver,
		`INSERT INTO classes (class_date, class_time, capacity, created_at) VALUES (?, ?, ?, ?)`,
		class.Date, class.Time, class.Capacity, now)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInvalidCapacity
		}
		return fmt.Errorf("failed to create class: %w", err)
	}
	class.ID = id
	class.CreatedAt = now
	return nil
}

func (db *DB) UpdateClass(ctx context.Context, class *models.ClassSession) error {
	if class.Capacity < 0 {
		return ErrInvalidCapacity
	}
	res, err := db.ExecContext(ctx, db.rebind(`UPDATE classes SET class_date = ?, class_time = ?, capacity = ? WHERE id = ?`),
		class.Date, class.Time, class.Capacity, class.ID)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInvalidCapacity
		}
		return fmt.Errorf("failed to update class: %w", err)
	}
	return expectAffected(res, ErrClassNotFound)
}

// DeleteClass removes the class; its bookings go with it (ON DELETE CASCADE).
func (db *DB) DeleteClass(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.rebind(`DELETE FROM classes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete class: %w", err)
	}
	return expectAffected(res, ErrClassNotFound)
}

func (db *DB) GetClassSession(ctx context.Context, id int64) (*models.ClassSession, error) {
	var c models.ClassSession
	err := db.QueryRowContext(ctx, db.rebind(`SELECT id, class_date, class_time, capacity, created_at FROM classes WHERE id = ?`), id).
		Scan(&c.ID, &c.Date, &c.Time, &c.Capacity, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return &c, nil
}

// GetClassBySchedule finds a class by its date and time slot.
func (db *DB) GetClassBySchedule(ctx context.Context, date, clock string) (*models.ClassSession, error) {
	var c models.ClassSession
	err := db.QueryRowContext(ctx,
		db.rebind(`SELECT id, class_date, class_time, capacity, created_at FROM classes WHERE class_date = ? AND class_time = ? ORDER BY id LIMIT 1`),
		date, clock).Scan(&c.ID, &c.Date, &c.Time, &c.Capacity, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class by schedule: %w", err)
	}
	return &c, nil
}

// ListBookedUsernames maps class id to the usernames booked on it, in
// booking order.
func (db *DB) ListBookedUsernames(ctx context.Context) (map[int64][]string, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT b.class_id, a.username
        FROM bookings b
        JOIN accounts a ON a.id = b.account_id
        ORDER BY b.class_id ASC, b.created_at ASC, b.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked usernames: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]string)
	for rows.Next() {
		var classID int64
		var username string
		if err := rows.Scan(&classID, &username); err != nil {
			return nil, fmt.Errorf("failed to scan booked username: %w", err)
		}
		result[classID] = append(result[classID], username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booked usernames: %w", err)
	}
	return result, nil
}

// SeedClasses inserts classes only when the table is empty. It returns the
// number of rows inserted.
func (db *DB) SeedClasses(ctx context.Context, classes []models.ClassSession) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("failed to count classes: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for i := range classes {
		c := &classes[i]
		if c.Capacity < 0 {
			return 0, ErrInvalidCapacity
		}
		if _, err := tx.ExecContext(ctx,
			db.rebind(`INSERT INTO classes (class_date, class_time, capacity, created_at) VALUES (?, ?, ?, ?)`),
			c.Date, c.Time, c.Capacity, now); err != nil {
			return 0, fmt.Errorf("failed to seed class %s %s: %w", c.Date, c.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	db.logger.Info().Int("classes", len(classes)).Msg("class schedule seeded")
	return len(classes), nil
}
