// Package ratelimit enforces per-provider API budgets shared by all
// discovery tasks targeting the same provider and region.
package ratelimit

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Budget is a rolling-window request budget for one provider:region key
type Budget struct {
	RequestsPerHour int
	Burst           int
}

// Store hands out the limiter state for a key. The in-memory store below is
// the default; a distributed implementation can be injected for
// multi-instance deployments without touching callers.
type Store interface {
	Limiter(key string, limit rate.Limit, burst int) *rate.Limiter
}

// MemoryStore keeps per-key limiters in a mutex-guarded map
type MemoryStore struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewMemoryStore creates an in-memory limiter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{limiters: make(map[string]*rate.Limiter)}
}

// Limiter returns the limiter for key, creating it on first use
func (s *MemoryStore) Limiter(key string, limit rate.Limit, burst int) *rate.Limiter {
	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(limit, burst)
	s.limiters[key] = l
	return l
}

// Limiter gates outbound provider calls. Acquire never blocks; denied
// callers back off and retry or skip the call.
type Limiter struct {
	store         Store
	defaultBudget Budget
	budgets       map[string]Budget

	allowed int64
	denied  int64
}

// New creates a rate limiter with per-key budget overrides. Keys are
// "provider" or "provider:region"; the most specific budget wins.
func New(store Store, defaultBudget Budget, budgets map[string]Budget) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if defaultBudget.RequestsPerHour <= 0 {
		defaultBudget.RequestsPerHour = 3600
	}
	if defaultBudget.Burst <= 0 {
		defaultBudget.Burst = 10
	}
	return &Limiter{
		store:         store,
		defaultBudget: defaultBudget,
		budgets:       budgets,
	}
}

// Acquire reports whether one request against key fits the budget right now
func (l *Limiter) Acquire(key string) bool {
	b := l.budget(key)
	limiter := l.store.Limiter(key, perHour(b.RequestsPerHour), b.Burst)

	ok := limiter.Allow()
	if ok {
		atomic.AddInt64(&l.allowed, 1)
	} else {
		atomic.AddInt64(&l.denied, 1)
	}
	return ok
}

// Stats returns the allowed/denied counters
func (l *Limiter) Stats() (allowed, denied int64) {
	return atomic.LoadInt64(&l.allowed), atomic.LoadInt64(&l.denied)
}

func (l *Limiter) budget(key string) Budget {
	if b, ok := l.budgets[key]; ok {
		return b
	}
	// provider:region falls back to the provider-wide budget
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			if b, ok := l.budgets[key[:i]]; ok {
				return b
			}
			break
		}
	}
	return l.defaultBudget
}

func perHour(n int) rate.Limit {
	return rate.Limit(float64(n) / 3600.0)
}
