package worker

import (
	"time"

	"classbook/internal/config"
)

// RetryPolicy spaces out redelivery of a failed notification.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryPolicyFromConfig fills the unset fields with the worker defaults.
func RetryPolicyFromConfig(cfg config.WorkerConfig) RetryPolicy {
	p := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 5
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = time.Minute
	}
	if p.BackoffFactor == 0 {
		p.BackoffFactor = 2
	}
	return p
}

// Exhausted reports whether attempt (1-based) is the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is InitialDelay * BackoffFactor^(attempt-1), capped at MaxDelay.
// Zero fields fall back to one second and factor 2.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	base, factor := r.InitialDelay, r.BackoffFactor
	if base <= 0 {
		base = time.Second
	}
	if factor <= 0 {
		factor = 2
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if r.MaxDelay > 0 && delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}

	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}
