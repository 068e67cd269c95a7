package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidLimit indicates a limit with a non-positive ceiling or window.
var ErrInvalidLimit = errors.New("invalid rate limit")

// Limit is a fixed-window ceiling: at most MaxRequests admissions per
// WindowSeconds.
type Limit struct {
	MaxRequests   int
	WindowSeconds int
}

// Valid reports whether the limit has a positive ceiling and window.
func (l Limit) Valid() bool {
	return l.MaxRequests > 0 && l.WindowSeconds > 0
}

func (l Limit) window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

// quota tracks one client's current window.
type quota struct {
	count       int
	windowStart time.Time
}

// Status is a point-in-time view of one client's rate-limit state,
// reported by system_stats.
type Status struct {
	ClientID    string `json:"client_id"`
	MaxRequests int    `json:"max_requests"`
	Window      int    `json:"window_seconds"`
	Used        int    `json:"used"`
}

// Repository persists per-client limit overrides. May be nil, in which
// case overrides live only in memory.
type Repository interface {
	SaveLimit(ctx context.Context, clientID string, limit Limit) error
	LoadLimits(ctx context.Context) (map[string]Limit, error)
}

// Limiter is a fixed-window admission controller shared by all sessions.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Admissions and
//     reconfigurations for the same client serialise on one mutex, so a
//     client never observes more admissions than its ceiling within a
//     window.
type Limiter struct {
	mu        sync.Mutex
	def       Limit
	overrides map[string]Limit
	quotas    map[string]*quota
	repo      Repository

	// now is injectable for tests.
	now func() time.Time
}

// New creates a limiter with the given process-wide default. repo may be
// nil for memory-only operation.
func New(def Limit, repo Repository) (*Limiter, error) {
	if !def.Valid() {
		return nil, fmt.Errorf("%w: default %d/%ds", ErrInvalidLimit, def.MaxRequests, def.WindowSeconds)
	}
	return &Limiter{
		def:       def,
		overrides: make(map[string]Limit),
		quotas:    make(map[string]*quota),
		repo:      repo,
		now:       time.Now,
	}, nil
}

// Restore loads persisted per-client overrides from the repository.
// Call once at startup, before serving traffic.
func (l *Limiter) Restore(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	limits, err := l.repo.LoadLimits(ctx)
	if err != nil {
		return fmt.Errorf("restore rate limits: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for clientID, limit := range limits {
		if limit.Valid() {
			l.overrides[clientID] = limit
		}
	}
	return nil
}

// Admit decides whether the client may proceed. It counts the request
// against the client's current window when admitted; throttled requests
// are not counted.
func (l *Limiter) Admit(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanupLocked(now)

	limit := l.limitForLocked(clientID)
	q, ok := l.quotas[clientID]
	if !ok || now.Sub(q.windowStart) >= limit.window() {
		l.quotas[clientID] = &quota{count: 1, windowStart: now}
		return true
	}

	if q.count >= limit.MaxRequests {
		return false
	}
	q.count++
	return true
}

// Configure upserts the client's limit. The new ceiling applies to
// requests admitted after the call; the client's in-flight window is not
// retroactively recomputed. Persisted before the in-memory override is
// applied, so a storage failure leaves the old limit in force.
func (l *Limiter) Configure(ctx context.Context, clientID string, limit Limit) error {
	if clientID == "" {
		return fmt.Errorf("%w: empty client ID", ErrInvalidLimit)
	}
	if !limit.Valid() {
		return fmt.Errorf("%w: %d/%ds", ErrInvalidLimit, limit.MaxRequests, limit.WindowSeconds)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.SaveLimit(ctx, clientID, limit); err != nil {
			return fmt.Errorf("persist rate limit for %s: %w", clientID, err)
		}
	}
	l.overrides[clientID] = limit
	return nil
}

// LimitFor returns the effective limit for a client.
func (l *Limiter) LimitFor(clientID string) Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitForLocked(clientID)
}

// Snapshot returns the current state of every client with an active
// window or an explicit override.
func (l *Limiter) Snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(l.now())

	seen := make(map[string]bool, len(l.quotas)+len(l.overrides))
	statuses := make([]Status, 0, len(l.quotas)+len(l.overrides))

	appendStatus := func(clientID string) {
		if seen[clientID] {
			return
		}
		seen[clientID] = true
		limit := l.limitForLocked(clientID)
		used := 0
		if q, ok := l.quotas[clientID]; ok {
			used = q.count
		}
		statuses = append(statuses, Status{
			ClientID:    clientID,
			MaxRequests: limit.MaxRequests,
			Window:      limit.WindowSeconds,
			Used:        used,
		})
	}

	for clientID := range l.quotas {
		appendStatus(clientID)
	}
	for clientID := range l.overrides {
		appendStatus(clientID)
	}
	return statuses
}

// limitForLocked resolves the effective limit. Caller holds l.mu.
func (l *Limiter) limitForLocked(clientID string) Limit {
	if limit, ok := l.overrides[clientID]; ok {
		return limit
	}
	return l.def
}

// cleanupLocked drops quotas whose window has fully elapsed, so idle
// clients do not accumulate. Caller holds l.mu.
func (l *Limiter) cleanupLocked(now time.Time) {
	for clientID, q := range l.quotas {
		if now.Sub(q.windowStart) >= l.limitForLocked(clientID).window() {
			delete(l.quotas, clientID)
		}
	}
}
