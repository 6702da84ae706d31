package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classbook/internal/domain"
	"classbook/internal/models"
)

// admissionTx binds the admission statements to one *sql.Tx.
type admissionTx struct {
	tx     *sql.Tx
	driver string
}

// WithAdmissionTx runs fn in a transaction. Any error from fn, including a
// panic, rolls the transaction back so no booking row survives a failure.
func (db *DB) WithAdmissionTx(ctx context.Context, fn func(tx domain.AdmissionTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&admissionTx{tx: tx, driver: db.driver}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *admissionTx) q(query string) string { return rebind(t.driver, query) }

func (t *admissionTx) ClassCapacity(ctx context.Context, classID int64) (int, error) {
	var capacity int
	err := t.tx.QueryRowContext(ctx, t.q(`SELECT capacity FROM classes WHERE id = ?`), classID).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrClassNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get class capacity: %w", err)
	}
	return capacity, nil
}

// LockClass takes a row lock on PostgreSQL. SQLite has no row locks; a no-op
// write on the class row takes the database write lock instead, which
// serializes concurrent admissions until commit.
func (t *admissionTx) LockClass(ctx context.Context, classID int64) (int, error) {
	if t.driver == DriverPostgres {
		var capacity int
		err := t.tx.QueryRowContext(ctx, `SELECT capacity FROM classes WHERE id = $1 FOR UPDATE`, classID).Scan(&capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrClassNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to lock class: %w", err)
		}
		return capacity, nil
	}

	res, err := t.tx.ExecContext(ctx, `UPDATE classes SET capacity = capacity WHERE id = ?`, classID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock class: %w", err)
	}
	if err := expectAffected(res, ErrClassNotFound); err != nil {
		return 0, err
	}
	return t.ClassCapacity(ctx, classID)
}

func (t *admissionTx) CountBookings(ctx context.Context, classID int64) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, t.q(`SELECT COUNT(*) FROM bookings WHERE class_id = ?`), classID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (t *admissionTx) HasBooking(ctx context.Context, accountID, classID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		t.q(`SELECT 1 FROM bookings WHERE account_id = ? AND class_id = ?`), accountID, classID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing booking: %w", err)
	}
	return true, nil
}

func (t *admissionTx) InsertBooking(ctx context.Context, accountID, classID int64) (*models.Booking, error) {
	now := time.Now().UTC()
	id, _, err := insertReturningID(ctx, t.tx, t.driver,
		`INSERT INTO bookings (account_id, class_id, created_at) VALUES (?, ?, ?)`, accountID, classID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateBooking
		}
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	return &models.Booking{ID: id, AccountID: accountID, ClassID: classID, CreatedAt: now}, nil
}

func (t *admissionTx) InsertBookingIfSeat(ctx context.Context, accountID, classID int64) (*models.Booking, bool, error) {
	now := time.Now().UTC()
	selectList := `?, c.id, ?`
	if t.driver == DriverPostgres {
		selectList = `CAST(? AS BIGINT), c.id, CAST(? AS TIMESTAMPTZ)`
	}
	id, ok, err := insertReturningID(ctx, t.tx, t.driver, `
        INSERT INTO bookings (account_id, class_id, created_at)
        SELECT `+selectList+`
        FROM classes c
        WHERE c.id = ?
          AND (SELECT COUNT(*) FROM bookings b WHERE b.class_id = c.id) < c.capacity`,
		accountID, now, classID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrDuplicateBooking
		}
		return nil, false, fmt.Errorf("failed to insert booking: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &models.Booking{ID: id, AccountID: accountID, ClassID: classID, CreatedAt: now}, true, nil
}

// ListClassesWithOccupancy returns every class with its live booking count,
// ordered by date then time.
func (db *DB) ListClassesWithOccupancy(ctx context.Context) ([]models.ClassOccupancy, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT c.id, c.class_date, c.class_time, c.capacity, c.created_at, COUNT(b.id)
        FROM classes c
        LEFT JOIN bookings b ON b.class_id = c.id
        GROUP BY c.id, c.class_date, c.class_time, c.capacity, c.created_at
        ORDER BY c.class_date ASC, c.class_time ASC, c.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer rows.Close()

	var result []models.ClassOccupancy
	for rows.Next() {
		var o models.ClassOccupancy
		if err := rows.Scan(&o.Class.ID, &o.Class.Date, &o.Class.Time, &o.Class.Capacity, &o.Class.CreatedAt, &o.Booked); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classes: %w", err)
	}
	return result, nil
}

func (db *DB) GetClassOccupancy(ctx context.Context, classID int64) (*models.ClassOccupancy, error) {
	var o models.ClassOccupancy
	err := db.QueryRowContext(ctx, db.rebind(`
        SELECT c.id, c.class_date, c.class_time, c.capacity, c.created_at,
               (SELECT COUNT(*) FROM bookings b WHERE b.class_id = c.id)
        FROM classes c WHERE c.id = ?`), classID).
		Scan(&o.Class.ID, &o.Class.Date, &o.Class.Time, &o.Class.Capacity, &o.Class.CreatedAt, &o.Booked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class occupancy: %w", err)
	}
	return &o, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	err := db.QueryRowContext(ctx, db.rebind(`SELECT id, account_id, class_id, created_at FROM bookings WHERE id = ?`), id).
		Scan(&b.ID, &b.AccountID, &b.ClassID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.rebind(`DELETE FROM bookings WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return expectAffected(res, ErrBookingNotFound)
}

// DeleteAccountBooking removes the booking of accountID for classID and
// returns the removed row.
func (db *DB) DeleteAccountBooking(ctx context.Context, accountID, classID int64) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var b models.Booking
	err = tx.QueryRowContext(ctx,
		db.rebind(`SELECT id, account_id, class_id, created_at FROM bookings WHERE account_id = ? AND class_id = ?`),
		accountID, classID).Scan(&b.ID, &b.AccountID, &b.ClassID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM bookings WHERE id = ?`), b.ID); err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &b, nil
}

const bookingDetailSelect = `
        SELECT b.id, b.account_id, b.class_id, b.created_at,
               c.class_date, c.class_time,
               a.username, a.first_name, a.last_name, a.email
        FROM bookings b
        JOIN classes c ON c.id = b.class_id
        JOIN accounts a ON a.id = b.account_id`

func (db *DB) ListAccountBookings(ctx context.Context, accountID int64) ([]models.BookingDetail, error) {
	return db.queryBookingDetails(ctx,
		bookingDetailSelect+` WHERE b.account_id = ? ORDER BY c.class_date ASC, c.class_time ASC`, accountID)
}

func (db *DB) ListClassBookings(ctx context.Context, classID int64) ([]models.BookingDetail, error) {
	return db.queryBookingDetails(ctx,
		bookingDetailSelect+` WHERE b.class_id = ? ORDER BY b.created_at ASC, b.id ASC`, classID)
}

func (db *DB) queryBookingDetails(ctx context.Context, query string, args ...interface{}) ([]models.BookingDetail, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var result []models.BookingDetail
	for rows.Next() {
		var d models.BookingDetail
		var first, last string
		if err := rows.Scan(&d.ID, &d.AccountID, &d.ClassID, &d.CreatedAt,
			&d.ClassDate, &d.ClassTime, &d.Username, &first, &last, &d.Email); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		d.FullName = (&models.Account{FirstName: first, LastName: last}).FullName()
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return result, nil
}

// CountBookings returns the number of bookings for a class.
func (db *DB) CountBookings(ctx context.Context, classID int64) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, db.rebind(`SELECT COUNT(*) FROM bookings WHERE class_id = ?`), classID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}
