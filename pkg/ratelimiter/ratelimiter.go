package ratelimiter

import (
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of a fixed-window check for a single key.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// ResetInSeconds returns the whole seconds until the window resets, at least 0.
func (d Decision) ResetInSeconds() int {
	s := int(time.Until(d.ResetAt).Seconds())
	if s < 0 {
		return 0
	}
	return s
}

// window tracks request count and reset time for one key
type window struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Limiter implements fixed-window rate limiting with in-memory tracking.
// Once a window's ResetAt has passed the entry is discarded entirely; there
// is no partial decay.
type Limiter struct {
	windows map[string]*window
	mutex   sync.Mutex
	limit   int
	size    time.Duration
}

// New creates a new Limiter with the specified request cap and window size
func New(limit int, size time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
	}
}

// Limit returns the configured request cap per window
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow checks whether the key may make a request right now and counts it.
// The Nth request within a window is the last one allowed; the N+1th is
// denied without incrementing further.
func (l *Limiter) Allow(key string) Decision {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()

	w, exists := l.windows[key]
	if !exists || now.After(w.ResetAt) {
		w = &window{Count: 1, ResetAt: now.Add(l.size)}
		l.windows[key] = w
		return Decision{Allowed: true, Remaining: l.remaining(w.Count), ResetAt: w.ResetAt}
	}

	if w.Count >= l.limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.ResetAt}
	}

	w.Count++
	return Decision{Allowed: true, Remaining: l.remaining(w.Count), ResetAt: w.ResetAt}
}

// Peek reports the current window for a key without counting a request
func (l *Limiter) Peek(key string) Decision {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()

	w, exists := l.windows[key]
	if !exists || now.After(w.ResetAt) {
		return Decision{Allowed: true, Remaining: l.limit, ResetAt: now.Add(l.size)}
	}

	return Decision{
		Allowed:   w.Count < l.limit,
		Remaining: l.remaining(w.Count),
		ResetAt:   w.ResetAt,
	}
}

func (l *Limiter) remaining(count int) int {
	r := l.limit - count
	if r < 0 {
		return 0
	}
	return r
}

// Sweep removes expired windows to bound memory and returns how many were
// removed. Correctness does not depend on it; Allow treats expired entries
// as absent.
func (l *Limiter) Sweep() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.ResetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of live window entries
func (l *Limiter) Size() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.windows)
}

// Registry holds one independently configured Limiter per protected action.
// Separate Limiter instances keep counters isolated even when two actions
// are checked with the same identifier string.
type Registry struct {
	limiters map[string]*Limiter
	mutex    sync.RWMutex
}

// NewRegistry creates an empty limiter registry
func NewRegistry() *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
	}
}

// Register adds a limiter for the named action, replacing any existing one
func (r *Registry) Register(action string, limit int, window time.Duration) *Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	l := New(limit, window)
	r.limiters[action] = l
	return l
}

// Get returns the limiter for an action
func (r *Registry) Get(action string) (*Limiter, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	l, ok := r.limiters[action]
	return l, ok
}

// Allow checks the named action's limiter for the given identifier
func (r *Registry) Allow(action, identifier string) (Decision, error) {
	l, ok := r.Get(action)
	if !ok {
		return Decision{}, fmt.Errorf("unknown rate limit action: %s", action)
	}
	return l.Allow(identifier), nil
}

// SweepAll sweeps every registered limiter and returns the total removed
func (r *Registry) SweepAll() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	total := 0
	for _, l := range r.limiters {
		total += l.Sweep()
	}
	return total
}
