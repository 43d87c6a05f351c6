package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolphind/internal/dolphin"
	"dolphind/internal/store"
)

func healthy(context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

type statsFunc func(ctx context.Context) (dolphin.Stats, error)

func (f statsFunc) Stats(ctx context.Context) (dolphin.Stats, error) { return f(ctx) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestOverallStatus(t *testing.T) {
	c := NewChecker(clockwork.NewFakeClock())
	c.RegisterFunc("store", true, healthy)
	c.RegisterFunc("notify", false, healthy)

	assert.Equal(t, StatusUnknown, c.OverallStatus(), "critical checks have not run")

	c.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.OverallStatus())

	c.RegisterFunc("notify", false, unhealthy)
	c.Check(context.Background())
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RegisterFunc("store", true, unhealthy)
	c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker(nil)
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("boom", false, func(context.Context) CheckResult { panic("bad probe") })

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["boom"].Status)
	assert.Equal(t, "bad probe", results["boom"].Error)

	stored := c.Results()
	assert.Equal(t, results["boom"].Error, stored["boom"].Error)
}

func TestCheckComponent(t *testing.T) {
	c := NewChecker(nil)
	c.RegisterFunc("store", true, healthy)

	res, ok := c.CheckComponent(context.Background(), "store")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, res.Status)

	_, ok = c.CheckComponent(context.Background(), "missing")
	assert.False(t, ok)
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker(nil)
	c.RegisterFunc("store", true, healthy)
	h := c.ReadinessHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.RegisterFunc("store", true, unhealthy)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandlerFull(t *testing.T) {
	c := NewChecker(nil)
	c.SetReady(true)
	c.RegisterFunc("store", true, healthy)

	mux := http.NewServeMux()
	c.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?full=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.True(t, resp.Ready)
	assert.Contains(t, resp.Components, "store")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	resp = Response{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Components)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreCheck(t *testing.T) {
	res := StoreCheck(store.NewMemoryStore())(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	res = StoreCheck(pingFunc(func(context.Context) error { return errors.New("database is locked") }))(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "database is locked", res.Error)
}

func TestDolphinCheck(t *testing.T) {
	tests := []struct {
		name   string
		stats  dolphin.Stats
		err    error
		status Status
	}{
		{"ok", dolphin.Stats{Icounter: 10, Level: 1}, nil, StatusHealthy},
		{"level up", dolphin.Stats{Icounter: dolphin.Level2Threshold, LevelUpPending: true}, nil, StatusDegraded},
		{"mood", dolphin.Stats{Butthurt: dolphin.ButthurtMax}, nil, StatusDegraded},
		{"stopped", dolphin.Stats{}, dolphin.ErrStopped, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := DolphinCheck(statsFunc(func(context.Context) (dolphin.Stats, error) {
				return tt.stats, tt.err
			}))
			assert.Equal(t, tt.status, check(context.Background()).Status)
		})
	}
}
