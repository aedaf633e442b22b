package core

// save_limiter.go bounds how many saves run at once across all sessions.
//
// A save issues its statements one at a time, so a single save holds at most
// one executor connection. The limiter keeps many concurrent sessions from
// exhausting the executor's pool. When all slots are taken a save waits up
// to maxWait before failing with ErrTooManySaves.
//
// A second save of the same session is rejected outright by the session
// (ErrSaveInProgress); the limiter only arbitrates between sessions.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManySaves is returned when all save slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManySaves = errors.New("too many concurrent saves, please try again later")

// DefaultMaxConcurrentSaves is the default limit for parallel saves.
const DefaultMaxConcurrentSaves = 8

// DefaultMaxSaveWait is how long to wait for a slot before rejecting.
const DefaultMaxSaveWait = 10 * time.Second

// SaveLimiter controls concurrent save processing using a semaphore.
type SaveLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewSaveLimiter creates a limiter that allows at most maxConcurrent
// simultaneous saves.
func NewSaveLimiter(maxConcurrent int, maxWait time.Duration) *SaveLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSaves
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxSaveWait
	}
	return &SaveLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a save slot.
// The caller MUST call Release() when the save completes (use defer).
func (l *SaveLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManySaves
	}
}

// Release releases a previously acquired slot.
func (l *SaveLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of saves in progress.
func (l *SaveLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until all active saves complete or ctx is done.
// Used on shutdown so that no save is cut off between statements.
func (l *SaveLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveLimiterStatus is a snapshot of the limiter's state.
type SaveLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *SaveLimiter) Status() SaveLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return SaveLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
