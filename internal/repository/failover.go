package repository

import (
	"context"
	"sync"
	"time"

	"classbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverThrottleRepository uses primary until it errors, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverThrottleRepository struct {
	primary  domain.ThrottleRepository
	fallback domain.ThrottleRepository
	logger   *zerolog.Logger

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverThrottleRepository(primary, fallback domain.ThrottleRepository, logger *zerolog.Logger) *FailoverThrottleRepository {
	return &FailoverThrottleRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverThrottleRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.down {
		return true
	}
	return r.now().Sub(r.lastCheck) > recoveryInterval
}

func (r *FailoverThrottleRepository) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.down {
		r.logger.Error().Err(err).Msg("primary throttle repository failed, falling back to memory")
	}
	r.down = true
	r.lastCheck = r.now()
}

func (r *FailoverThrottleRepository) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		r.logger.Info().Msg("primary throttle repository recovered")
	}
	r.down = false
}

// Down reports whether the fallback is currently in use.
func (r *FailoverThrottleRepository) Down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverThrottleRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverThrottleRepository) Reset(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Reset(ctx, key)
		if err == nil {
			r.markUp()
			return r.fallback.Reset(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.Reset(ctx, key)
}
