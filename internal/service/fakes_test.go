package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/models"

	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory store with no transaction isolation: each
// statement sees the latest committed and uncommitted state. LockClass is
// the only thing that serializes admissions.
type memStore struct {
	mu       sync.Mutex
	classes  map[int64]models.ClassSession
	bookings map[int64]models.Booking
	nextID   int64

	classLocks map[int64]*sync.Mutex

	// afterCount runs after CountBookings returns inside a transaction.
	afterCount func()
	// failOn makes the named statement return errStore.
	failOn string
}

var errStore = errors.New("store unavailable")

func newMemStore(classes ...models.ClassSession) *memStore {
	s := &memStore{
		classes:    make(map[int64]models.ClassSession),
		bookings:   make(map[int64]models.Booking),
		classLocks: make(map[int64]*sync.Mutex),
	}
	for _, c := range classes {
		s.classes[c.ID] = c
		s.classLocks[c.ID] = &sync.Mutex{}
	}
	return s
}

func (s *memStore) bookingCount(classID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(classID)
}

func (s *memStore) countLocked(classID int64) int {
	n := 0
	for _, b := range s.bookings {
		if b.ClassID == classID {
			n++
		}
	}
	return n
}

func (s *memStore) WithAdmissionTx(_ context.Context, fn func(tx domain.AdmissionTx) error) error {
	if s.failOn == "begin" {
		return errStore
	}
	tx := &memTx{store: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			tx.release()
			panic(r)
		}
		tx.release()
	}()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if s.failOn == "commit" {
		tx.rollback()
		return errStore
	}
	return nil
}

type memTx struct {
	store    *memStore
	inserted []int64
	locked   []*sync.Mutex
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, id := range t.inserted {
		delete(t.store.bookings, id)
	}
	t.inserted = nil
}

func (t *memTx) release() {
	for _, l := range t.locked {
		l.Unlock()
	}
	t.locked = nil
}

func (t *memTx) ClassCapacity(_ context.Context, classID int64) (int, error) {
	if t.store.failOn == "capacity" {
		return 0, errStore
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.classes[classID]
	if !ok {
		return 0, database.ErrClassNotFound
	}
	return c.Capacity, nil
}

func (t *memTx) LockClass(ctx context.Context, classID int64) (int, error) {
	t.store.mu.Lock()
	l, ok := t.store.classLocks[classID]
	t.store.mu.Unlock()
	if !ok {
		return 0, database.ErrClassNotFound
	}
	l.Lock()
	t.locked = append(t.locked, l)
	return t.ClassCapacity(ctx, classID)
}

func (t *memTx) CountBookings(_ context.Context, classID int64) (int, error) {
	if t.store.failOn == "count" {
		return 0, errStore
	}
	n := t.store.bookingCount(classID)
	if t.store.afterCount != nil {
		t.store.afterCount()
	}
	return n, nil
}

func (t *memTx) HasBooking(_ context.Context, accountID, classID int64) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, b := range t.store.bookings {
		if b.AccountID == accountID && b.ClassID == classID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(_ context.Context, accountID, classID int64) (*models.Booking, error) {
	if t.store.failOn == "insert" {
		return nil, errStore
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.insertLocked(accountID, classID)
}

func (t *memTx) InsertBookingIfSeat(_ context.Context, accountID, classID int64) (*models.Booking, bool, error) {
	if t.store.failOn == "insert" {
		return nil, false, errStore
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.classes[classID]
	if !ok || t.store.countLocked(classID) >= c.Capacity {
		return nil, false, nil
	}
	b, err := t.insertLocked(accountID, classID)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (t *memTx) insertLocked(accountID, classID int64) (*models.Booking, error) {
	for _, b := range t.store.bookings {
		if b.AccountID == accountID && b.ClassID == classID {
			return nil, database.ErrDuplicateBooking
		}
	}
	t.store.nextID++
	b := models.Booking{ID: t.store.nextID, AccountID: accountID, ClassID: classID, CreatedAt: time.Now()}
	t.store.bookings[b.ID] = b
	t.inserted = append(t.inserted, b.ID)
	return &b, nil
}

// BookingRepository side of the fake.

func (s *memStore) ListClassesWithOccupancy(_ context.Context) ([]models.ClassOccupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClassOccupancy
	for _, c := range s.classes {
		out = append(out, models.ClassOccupancy{Class: c, Booked: s.countLocked(c.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Class, out[j].Class
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Time < b.Time
	})
	return out, nil
}

func (s *memStore) GetClassOccupancy(_ context.Context, classID int64) (*models.ClassOccupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return nil, database.ErrClassNotFound
	}
	return &models.ClassOccupancy{Class: c, Booked: s.countLocked(classID)}, nil
}

func (s *memStore) GetBooking(_ context.Context, id int64) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, database.ErrBookingNotFound
	}
	return &b, nil
}

func (s *memStore) DeleteBooking(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return database.ErrBookingNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *memStore) DeleteAccountBooking(_ context.Context, accountID, classID int64) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bookings {
		if b.AccountID == accountID && b.ClassID == classID {
			delete(s.bookings, id)
			return &b, nil
		}
	}
	return nil, database.ErrBookingNotFound
}

func (s *memStore) ListAccountBookings(_ context.Context, accountID int64) ([]models.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingDetail
	for _, b := range s.bookings {
		if b.AccountID == accountID {
			c := s.classes[b.ClassID]
			out = append(out, models.BookingDetail{Booking: b, ClassDate: c.Date, ClassTime: c.Time})
		}
	}
	return out, nil
}

func (s *memStore) ListClassBookings(_ context.Context, classID int64) ([]models.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BookingDetail
	for _, b := range s.bookings {
		if b.ClassID == classID {
			out = append(out, models.BookingDetail{Booking: b})
		}
	}
	return out, nil
}

// barrier releases waiters once n parties have arrived, or after timeout.
type barrier struct {
	mu      sync.Mutex
	n       int
	release chan struct{}
	timeout time.Duration
}

func newBarrier(n int, timeout time.Duration) *barrier {
	return &barrier{n: n, release: make(chan struct{}), timeout: timeout}
}

func (b *barrier) arrive() {
	b.mu.Lock()
	b.n--
	if b.n == 0 {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(b.timeout):
	}
}

// recordingBus captures published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) PublishJSON(eventType string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	args := m.Called(ctx, a)
	if args.Error(0) == nil {
		a.ID = 1
	}
	return args.Error(0)
}

func (m *mockAccountRepo) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *mockAccountRepo) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *mockAccountRepo) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *mockAccountRepo) SetAccountStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockAccountRepo) DeleteAccount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockThrottle struct {
	mock.Mock
}

func (m *mockThrottle) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockThrottle) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockClassRepo struct {
	mock.Mock
}

func (m *mockClassRepo) CreateClass(ctx context.Context, c *models.ClassSession) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockClassRepo) UpdateClass(ctx context.Context, c *models.ClassSession) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockClassRepo) DeleteClass(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockClassRepo) GetClassSession(ctx context.Context, id int64) (*models.ClassSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClassSession), args.Error(1)
}

func (m *mockClassRepo) ListClassesWithOccupancy(ctx context.Context) ([]models.ClassOccupancy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ClassOccupancy), args.Error(1)
}

func (m *mockClassRepo) ListBookedUsernames(ctx context.Context) (map[int64][]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64][]string), args.Error(1)
}

func (m *mockClassRepo) SeedClasses(ctx context.Context, classes []models.ClassSession) (int, error) {
	args := m.Called(ctx, classes)
	return args.Int(0), args.Error(1)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}
