package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(2, 3, clock)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "burst token %d", i)
	}
	assert.False(t, l.Allow())
	assert.Equal(t, 500*time.Millisecond, l.Delay())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow())
	}
	assert.False(t, l.Allow(), "refill is capped at burst")
}

func TestLimiterBlockAndReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(10, 10, clock)

	l.Block(time.Minute)
	assert.False(t, l.Allow())
	assert.Equal(t, time.Minute, l.Delay())

	l.Reset()
	assert.True(t, l.Allow())
}

func TestLimiterWaitTimesOut(t *testing.T) {
	l := New(0.001, 1, nil)
	require.True(t, l.Allow())

	start := time.Now()
	err := l.Wait(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrLimited)
	assert.Less(t, time.Since(start), time.Second)
}

func TestKeyedSeparatesClientsAndPrunes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := NewKeyed(1, 1, time.Minute, clock)

	assert.True(t, k.Allow("10.0.0.1"))
	assert.False(t, k.Allow("10.0.0.1"))
	assert.True(t, k.Allow("10.0.0.2"))
	assert.Equal(t, 2, k.Len())

	clock.Advance(2 * time.Minute)
	assert.True(t, k.Allow("10.0.0.3"))
	assert.Equal(t, 1, k.Len(), "idle buckets are dropped")
}

func TestMiddleware(t *testing.T) {
	clock := clockwork.NewFakeClock()
	k := NewKeyed(1, 2, time.Minute, clock)
	h := k.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/deeds", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:5000").Code)
	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:5001").Code)

	rec := do("192.0.2.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("192.0.2.9:5000").Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientKey(req))
}
