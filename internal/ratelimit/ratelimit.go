// Package ratelimit provides token bucket limiters for the daemon's HTTP
// API. Idle per-client buckets are pruned lazily, so there is no
// background goroutine to stop.
package ratelimit

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrLimited is returned by Wait when no token became available in time.
var ErrLimited = errors.New("ratelimit: limit exceeded")

// Limiter is a token bucket. It starts full.
type Limiter struct {
	clock clockwork.Clock

	mu           sync.Mutex
	rate         float64 // tokens per second
	burst        int
	tokens       float64
	lastRefill   time.Time
	blockedUntil time.Time
}

// New returns a limiter allowing rate operations per second with bursts of
// up to burst. A nil clock means the wall clock.
func New(rate float64, burst int, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{
		clock:      clock,
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: clock.Now(),
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Before(l.blockedUntil) {
		return false
	}
	l.refillLocked(now)
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Delay returns how long until the next token is available.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Before(l.blockedUntil) {
		return l.blockedUntil.Sub(now)
	}
	l.refillLocked(now)
	if l.tokens >= 1 || l.rate <= 0 {
		return 0
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Wait blocks until a token is taken or timeout passes.
func (l *Limiter) Wait(timeout time.Duration) error {
	deadline := l.clock.Now().Add(timeout)
	for {
		if l.Allow() {
			return nil
		}
		wait := min(max(l.Delay(), time.Millisecond), 100*time.Millisecond)
		if l.clock.Now().Add(wait).After(deadline) {
			return ErrLimited
		}
		l.clock.Sleep(wait)
	}
}

// Block rejects everything for d.
func (l *Limiter) Block(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockedUntil = l.clock.Now().Add(d)
}

// Reset refills the bucket and lifts any block.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = float64(l.burst)
	l.lastRefill = l.clock.Now()
	l.blockedUntil = time.Time{}
}

func (l *Limiter) refillLocked(now time.Time) {
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.lastRefill = now
}

func (l *Limiter) idleSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRefill
}

// Keyed holds one Limiter per key, typically a client address.
type Keyed struct {
	clock   clockwork.Clock
	rate    float64
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	limiters  map[string]*Limiter
	lastPrune time.Time
}

// NewKeyed returns a per-key limiter. Buckets unused for idleTTL are
// dropped on a later call.
func NewKeyed(rate float64, burst int, idleTTL time.Duration, clock clockwork.Clock) *Keyed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Keyed{
		clock:     clock,
		rate:      rate,
		burst:     burst,
		idleTTL:   idleTTL,
		limiters:  make(map[string]*Limiter),
		lastPrune: clock.Now(),
	}
}

// Allow takes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).Allow()
}

// Block rejects key for d.
func (k *Keyed) Block(key string, d time.Duration) {
	k.get(key).Block(d)
}

// Delay returns how long key must wait for its next token.
func (k *Keyed) Delay(key string) time.Duration {
	return k.get(key).Delay()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *Keyed) get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clock.Now()
	if k.idleTTL > 0 && now.Sub(k.lastPrune) >= k.idleTTL {
		for name, l := range k.limiters {
			if now.Sub(l.idleSince()) > k.idleTTL {
				delete(k.limiters, name)
			}
		}
		k.lastPrune = now
	}

	l, ok := k.limiters[key]
	if !ok {
		l = New(k.rate, k.burst, k.clock)
		k.limiters[key] = l
	}
	return l
}

// Middleware rejects requests over the client's limit with 429 and a
// Retry-After header. Clients are keyed by remote host.
func (k *Keyed) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r)
		if !k.Allow(key) {
			secs := int(k.Delay(key).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey returns the host part of the request's remote address.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
