package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

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

func TestFailoverThrottleRepository(t *testing.T) {
	primary := new(mockThrottle)
	fallback := new(mockThrottle)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverThrottleRepository(primary, fallback, &logger)
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "k", 5, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.Down())
	})

	t.Run("PrimaryFailsOverToFallback", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "k", 5, time.Minute).Return(false, errors.New("redis down")).Once()
		fallback.On("CheckRateLimit", ctx, "k", 5, time.Minute).Return(true, nil).Twice()

		allowed, err := repo.CheckRateLimit(ctx, "k", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.Down())

		// Primary is skipped while down.
		_, err = repo.CheckRateLimit(ctx, "k", 5, time.Minute)
		assert.NoError(t, err)
		primary.AssertNumberOfCalls(t, "CheckRateLimit", 2)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(recoveryInterval + time.Second)
		primary.On("Reset", ctx, "k").Return(nil).Once()
		fallback.On("Reset", ctx, "k").Return(nil).Once()

		assert.NoError(t, repo.Reset(ctx, "k"))
		assert.False(t, repo.Down())
	})

	t.Run("ResetFallsBack", func(t *testing.T) {
		primary.On("Reset", ctx, "x").Return(errors.New("redis down")).Once()
		fallback.On("Reset", ctx, "x").Return(nil).Once()

		assert.NoError(t, repo.Reset(ctx, "x"))
		assert.True(t, repo.Down())
	})

	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestFailoverThrottleRepository_RealBackends(t *testing.T) {
	logger := zerolog.Nop()
	broken := NewRedisThrottleRepository(nil)
	repo := NewFailoverThrottleRepository(broken, NewMemoryThrottleRepository(), &logger)
	ctx := context.Background()

	allowed, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = repo.CheckRateLimit(ctx, "k", 1, time.Minute)
	assert.NoError(t, err)
	assert.False(t, allowed)
}
