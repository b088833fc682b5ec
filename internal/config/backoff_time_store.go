package config

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	BASE_BACKOFF   = 1 * time.Second
	MAX_BACKOFF    = 2 * time.Minute
	BACKOFF_FACTOR = 2.0
	JITTER_FACTOR  = 0.5
)

type backoffData struct {
	BackoffDelay time.Duration
	NextRetryAt  time.Time
}

// BackoffStore remembers, per snapshot source, when a failing source may be polled again.
type BackoffStore struct {
	mu       sync.RWMutex
	backoffs map[string]backoffData
}

func NewBackoffStore() *BackoffStore {
	return &BackoffStore{
		backoffs: make(map[string]backoffData),
	}
}

func (s *BackoffStore) NextRetryAt(source string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if backoff, exists := s.backoffs[source]; exists {
		return backoff.NextRetryAt.UTC(), true
	}
	return time.Time{}, false
}

// ShouldSkip reports whether source is still backing off at now.
func (s *BackoffStore) ShouldSkip(source string, now time.Time) bool {
	next, ok := s.NextRetryAt(source)
	return ok && now.Before(next)
}

// UpdateBackoff records a failure and doubles the delay, up to MAX_BACKOFF.
func (s *BackoffStore) UpdateBackoff(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if backoff, exists := s.backoffs[source]; exists {
		backoff.BackoffDelay = calculateNewBackoffDelay(backoff.BackoffDelay)
		backoff.NextRetryAt = calculateNextRetryAt(backoff.BackoffDelay)
		s.backoffs[source] = backoff
	} else {
		s.backoffs[source] = backoffData{
			BackoffDelay: BASE_BACKOFF,
			NextRetryAt:  calculateNextRetryAt(BASE_BACKOFF),
		}
	}
}

func (s *BackoffStore) ResetBackoff(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.backoffs, source)
}

func calculateNextRetryAt(backoff time.Duration) time.Time {
	return time.Now().Add(withJitter(backoff)).UTC()
}

func withJitter(backoff time.Duration) time.Duration {
	jitter := time.Duration(rand.Float64() * float64(backoff) * JITTER_FACTOR)
	backoff += jitter
	if backoff > MAX_BACKOFF {
		backoff = MAX_BACKOFF
	}
	return backoff
}

func calculateNewBackoffDelay(backoffDelay time.Duration) time.Duration {
	backoffDelay *= BACKOFF_FACTOR
	if backoffDelay >= MAX_BACKOFF {
		backoffDelay = MAX_BACKOFF
	}
	return backoffDelay
}
