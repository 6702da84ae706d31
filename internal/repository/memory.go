package repository

import (
	"context"
	"sync"
	"time"
)

type throttleEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryThrottleRepository is the in-process fallback. Counters are lost on
// restart and are not shared between replicas.
type MemoryThrottleRepository struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	now     func() time.Time
}

func NewMemoryThrottleRepository() *MemoryThrottleRepository {
	return &MemoryThrottleRepository{
		entries: make(map[string]*throttleEntry),
		now:     time.Now,
	}
}

func (r *MemoryThrottleRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &throttleEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	// Чистим протухшие записи, чтобы карта не росла бесконечно
	if len(r.entries) > 1024 {
		for k, e := range r.entries {
			if now.After(e.expiresAt) {
				delete(r.entries, k)
			}
		}
	}
	return entry.count <= limit, nil
}

func (r *MemoryThrottleRepository) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}
