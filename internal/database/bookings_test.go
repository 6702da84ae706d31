package database

import (
	"context"
	"errors"
	"testing"

	"classbook/internal/domain"
	"classbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func book(t *testing.T, db *DB, accountID, classID int64) *models.Booking {
	t.Helper()
	var booking *models.Booking
	err := db.WithAdmissionTx(context.Background(), func(tx domain.AdmissionTx) error {
		var err error
		booking, err = tx.InsertBooking(context.Background(), accountID, classID)
		return err
	})
	require.NoError(t, err)
	return booking
}

func TestAdmissionTx_Reads(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := createClass(t, db, "2025-09-06", "19:00", 3)
	a := createAccount(t, db, "rossi", models.AccountActive)
	book(t, db, a.ID, c.ID)

	err := db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		capacity, err := tx.ClassCapacity(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, capacity)

		locked, err := tx.LockClass(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, locked)

		count, err := tx.CountBookings(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		has, err := tx.HasBooking(ctx, a.ID, c.ID)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = tx.HasBooking(ctx, a.ID+100, c.ID)
		require.NoError(t, err)
		assert.False(t, has)

		_, err = tx.ClassCapacity(ctx, 999)
		assert.ErrorIs(t, err, ErrClassNotFound)

		_, err = tx.LockClass(ctx, 999)
		assert.ErrorIs(t, err, ErrClassNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestAdmissionTx_InsertBookingDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := createClass(t, db, "2025-09-06", "19:00", 3)
	a := createAccount(t, db, "rossi", models.AccountActive)
	first := book(t, db, a.ID, c.ID)
	assert.NotZero(t, first.ID)

	err := db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		_, err := tx.InsertBooking(ctx, a.ID, c.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrDuplicateBooking)

	err = db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		_, _, err := tx.InsertBookingIfSeat(ctx, a.ID, c.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrDuplicateBooking)

	count, err := db.CountBookings(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdmissionTx_InsertBookingIfSeat(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := createClass(t, db, "2025-09-06", "19:00", 2)
	users := []*models.Account{
		createAccount(t, db, "a", models.AccountActive),
		createAccount(t, db, "b", models.AccountActive),
		createAccount(t, db, "c", models.AccountActive),
	}

	var results []bool
	for _, u := range users {
		err := db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
			booking, ok, err := tx.InsertBookingIfSeat(ctx, u.ID, c.ID)
			if err != nil {
				return err
			}
			if ok {
				assert.Equal(t, u.ID, booking.AccountID)
				assert.Equal(t, c.ID, booking.ClassID)
				assert.NotZero(t, booking.ID)
			} else {
				assert.Nil(t, booking)
			}
			results = append(results, ok)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []bool{true, true, false}, results)

	occ, err := db.GetClassOccupancy(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, occ.Booked)
	assert.Equal(t, 0, occ.Available())
}

func TestAdmissionTx_InsertBookingIfSeat_UnknownClass(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	a := createAccount(t, db, "rossi", models.AccountActive)

	err := db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		booking, ok, err := tx.InsertBookingIfSeat(ctx, a.ID, 42)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, booking)
		return err
	})
	require.NoError(t, err)
}

func TestWithAdmissionTx_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := createClass(t, db, "2025-09-06", "19:00", 3)
	a := createAccount(t, db, "rossi", models.AccountActive)

	boom := errors.New("boom")
	err := db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
		if _, err := tx.InsertBooking(ctx, a.ID, c.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := db.CountBookings(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestWithAdmissionTx_RollbackOnPanic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := createClass(t, db, "2025-09-06", "19:00", 3)
	a := createAccount(t, db, "rossi", models.AccountActive)

	assert.Panics(t, func() {
		_ = db.WithAdmissionTx(ctx, func(tx domain.AdmissionTx) error {
			_, _ = tx.InsertBooking(ctx, a.ID, c.ID)
			panic("boom")
		})
	})

	count, err := db.CountBookings(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListClassesWithOccupancy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	late := createClass(t, db, "2025-09-07", "19:00", 15)
	early := createClass(t, db, "2025-09-06", "19:00", 20)
	morning := createClass(t, db, "2025-09-07", "09:30", 10)
	a := createAccount(t, db, "rossi", models.AccountActive)
	b := createAccount(t, db, "bianchi", models.AccountActive)
	book(t, db, a.ID, late.ID)
	book(t, db, b.ID, late.ID)
	book(t, db, a.ID, early.ID)

	classes, err := db.ListClassesWithOccupancy(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 3)

	assert.Equal(t, early.ID, classes[0].Class.ID)
	assert.Equal(t, 1, classes[0].Booked)
	assert.Equal(t, morning.ID, classes[1].Class.ID)
	assert.Equal(t, 0, classes[1].Booked)
	assert.Equal(t, late.ID, classes[2].Class.ID)
	assert.Equal(t, 2, classes[2].Booked)
	assert.Equal(t, 13, classes[2].Available())

	names, err := db.ListBookedUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rossi", "bianchi"}, names[late.ID])
	assert.Equal(t, []string{"rossi"}, names[early.ID])
	assert.Empty(t, names[morning.ID])

	_, err = db.GetClassOccupancy(ctx, 999)
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestBookingLookupsAndDeletes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c1 := createClass(t, db, "2025-09-07", "19:00", 5)
	c2 := createClass(t, db, "2025-09-06", "19:00", 5)
	a := createAccount(t, db, "rossi", models.AccountActive)
	b := createAccount(t, db, "bianchi", models.AccountActive)

	b1 := book(t, db, a.ID, c1.ID)
	book(t, db, a.ID, c2.ID)
	book(t, db, b.ID, c1.ID)

	got, err := db.GetBooking(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.AccountID)
	assert.Equal(t, c1.ID, got.ClassID)

	mine, err := db.ListAccountBookings(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "2025-09-06", mine[0].ClassDate)
	assert.Equal(t, "2025-09-07", mine[1].ClassDate)
	assert.Equal(t, "rossi", mine[0].Username)
	assert.Equal(t, "Mario rossi", mine[0].FullName)

	roster, err := db.ListClassBookings(ctx, c1.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "rossi", roster[0].Username)
	assert.Equal(t, "bianchi", roster[1].Username)
	assert.Equal(t, "bianchi@example.com", roster[1].Email)

	removed, err := db.DeleteAccountBooking(ctx, a.ID, c2.ID)
	require.NoError(t, err)
	assert.Equal(t, c2.ID, removed.ClassID)
	_, err = db.DeleteAccountBooking(ctx, a.ID, c2.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	require.NoError(t, db.DeleteBooking(ctx, b1.ID))
	assert.ErrorIs(t, db.DeleteBooking(ctx, b1.ID), ErrBookingNotFound)
	_, err = db.GetBooking(ctx, b1.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	count, err := db.CountBookings(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
