package dolphin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	data  StoreData
	saved bool
	saves int
	err   error
}

func (f *fakeStore) Load(ctx context.Context) (StoreData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.saved {
		return StoreData{}, ErrNoState
	}
	return f.data, nil
}

func (f *fakeStore) Save(ctx context.Context, data StoreData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data = data
	f.saved = true
	f.saves++
	return nil
}

func (f *fakeStore) snapshot() (StoreData, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.saves
}

func (f *fakeStore) saveCount() int {
	_, n := f.snapshot()
	return n
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakePublisher) Publish(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics)
}

var noon = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	d     *Dolphin
	clock *clockwork.FakeClock
	store *fakeStore
	pub   *fakePublisher
	stop  context.CancelFunc
}

func newHarness(t *testing.T, at time.Time, cfg Config, store *fakeStore) *harness {
	t.Helper()
	if store == nil {
		store = &fakeStore{}
	}
	cfg.Location = time.UTC
	h := &harness{
		clock: clockwork.NewFakeClockAt(at),
		store: store,
		pub:   &fakePublisher{},
	}
	h.d = New(h.store, h.pub, cfg, WithClock(h.clock))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go h.d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.d.Done()
	})
	// Block until Run has loaded state and armed its timers.
	_, err := h.d.Stats(context.Background())
	require.NoError(t, err)
}

func (h *harness) stats(t *testing.T) Stats {
	t.Helper()
	s, err := h.d.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func TestDeedsSumIntoStats(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.d.Deed(ctx, DeedSubGhzSave))
	require.NoError(t, h.d.Deed(ctx, DeedRfidRead))
	require.NoError(t, h.d.Deed(ctx, DeedIrSend))

	s := h.stats(t)
	assert.Equal(t, uint32(6), s.Icounter)
	assert.Equal(t, uint8(1), s.Level)
	assert.Equal(t, uint64(noon.Unix()), s.Timestamp)
	assert.Equal(t, 3, h.pub.count())
}

func TestRunRestoresSavedState(t *testing.T) {
	store := &fakeStore{saved: true, data: StoreData{Icounter: 1000, Butthurt: 2}}
	h := newHarness(t, noon, DefaultConfig(), store)
	h.start(t)

	s := h.stats(t)
	assert.Equal(t, uint32(1000), s.Icounter)
	assert.Equal(t, uint32(2), s.Butthurt)
	assert.Equal(t, uint8(2), s.Level)
	assert.Equal(t, 0, store.saveCount())
}

func TestFlushOnlyWritesDirtyState(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)
	ctx := context.Background()

	require.NoError(t, h.d.Flush(ctx))
	assert.Equal(t, 0, h.store.saveCount())

	require.NoError(t, h.d.Deed(ctx, DeedNfcRead))
	require.NoError(t, h.d.Flush(ctx))
	assert.Equal(t, 1, h.store.saveCount())

	require.NoError(t, h.d.Flush(ctx))
	assert.Equal(t, 1, h.store.saveCount())

	data, _ := h.store.snapshot()
	assert.Equal(t, uint32(1), data.Icounter)
}

func TestFlushRetriesAfterFailedSave(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)
	ctx := context.Background()

	h.store.mu.Lock()
	h.store.err = errors.New("disk full")
	h.store.mu.Unlock()

	require.NoError(t, h.d.Deed(ctx, DeedNfcRead))
	require.NoError(t, h.d.Flush(ctx))
	assert.Equal(t, 0, h.store.saveCount())

	h.store.mu.Lock()
	h.store.err = nil
	h.store.mu.Unlock()

	require.NoError(t, h.d.Flush(ctx))
	assert.Equal(t, 1, h.store.saveCount())
}

func TestFlushIsDebouncedAfterDeeds(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.d.Deed(ctx, DeedSubGhzReceiverInfo))
		h.stats(t)
		h.clock.Advance(500 * time.Millisecond)
	}
	last := noon.Add(time.Second)

	expires, active := h.d.flushTimer.ExpiresAt()
	require.True(t, active)
	assert.Equal(t, last.Add(30*time.Second), expires)

	h.clock.Advance(29 * time.Second)
	h.stats(t)
	assert.Equal(t, 0, h.store.saveCount())

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return h.store.saveCount() == 1 }, time.Second, 5*time.Millisecond)

	data, _ := h.store.snapshot()
	assert.Equal(t, uint32(3), data.Icounter)
}

func TestButthurtGrowsWithoutDeeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ButthurtPeriod = time.Hour
	h := newHarness(t, noon, cfg, nil)
	h.start(t)

	h.clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return h.stats(t).Butthurt == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.store.saveCount() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return h.stats(t).Butthurt == 2 }, time.Second, 5*time.Millisecond)
}

func TestDeedRestartsButthurtTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ButthurtPeriod = time.Hour
	h := newHarness(t, noon, cfg, nil)
	h.start(t)

	h.clock.Advance(30 * time.Minute)
	require.NoError(t, h.d.Deed(context.Background(), DeedIrSend))
	h.stats(t)

	expires, active := h.d.butthurtTimer.ExpiresAt()
	require.True(t, active)
	assert.Equal(t, noon.Add(90*time.Minute), expires)

	h.clock.Advance(45 * time.Minute)
	assert.Equal(t, uint32(0), h.stats(t).Butthurt)
}

func TestClearLimitsReschedulesToBoundary(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{"before boundary", time.Date(2024, 1, 10, 4, 0, 0, 0, time.UTC), time.Hour},
		{"after boundary", time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC), 23 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{saved: true, data: StoreData{
				IcounterDailyLimit: [AppCount]uint8{AppSubGhz: 20},
				Butthurt:           4,
				Icounter:           50,
			}}
			h := newHarness(t, tt.at, DefaultConfig(), store)
			h.d.load(context.Background())

			h.d.dispatch(context.Background(), clearLimitsEvent{})

			expires, active := h.d.clearLimitsTimer.ExpiresAt()
			require.True(t, active)
			assert.Equal(t, tt.at.Add(tt.want), expires)

			data, saves := store.snapshot()
			assert.Equal(t, 1, saves)
			assert.Equal(t, [AppCount]uint8{}, data.IcounterDailyLimit)
			assert.Equal(t, uint32(0), data.Butthurt)
			assert.Equal(t, uint32(50), data.Icounter)
			h.d.clearLimitsTimer.Stop()
		})
	}
}

func TestClearLimitsFiresAtBoundary(t *testing.T) {
	store := &fakeStore{saved: true, data: StoreData{
		IcounterDailyLimit: [AppCount]uint8{AppSubGhz: 20},
	}}
	at := time.Date(2024, 1, 10, 4, 59, 0, 0, time.UTC)
	h := newHarness(t, at, DefaultConfig(), store)
	h.start(t)

	// Limit reached: no experience.
	require.NoError(t, h.d.Deed(context.Background(), DeedSubGhzSave))
	assert.Equal(t, uint32(0), h.stats(t).Icounter)

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		data, _ := store.snapshot()
		return data.IcounterDailyLimit[AppSubGhz] == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.d.Deed(context.Background(), DeedSubGhzSave))
	assert.Equal(t, uint32(3), h.stats(t).Icounter)

	expires, active := h.d.clearLimitsTimer.ExpiresAt()
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC), expires)
}

func TestHousekeepingRealignsClearLimits(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	defer h.d.clearLimitsTimer.Stop()

	h.d.clearLimitsTimer.ChangePeriod(2 * time.Hour)
	h.d.updateClearLimitsSchedule()
	expires, _ := h.d.clearLimitsTimer.ExpiresAt()
	assert.Equal(t, time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC), expires)

	// Due within the tolerance: left alone.
	h.d.clearLimitsTimer.ChangePeriod(5 * time.Minute)
	h.d.updateClearLimitsSchedule()
	expires, _ = h.d.clearLimitsTimer.ExpiresAt()
	assert.Equal(t, noon.Add(5*time.Minute), expires)
}

func TestRunHousekeepingRealignsClearLimits(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, noon, cfg, nil)
	h.start(t)

	nextClear := time.Date(2024, 1, 11, 5, 0, 0, 0, time.UTC)
	realigned := func() bool {
		expires, active := h.d.clearLimitsTimer.ExpiresAt()
		return active && expires.Equal(nextClear)
	}
	require.True(t, realigned())

	// Knock the clear off schedule, as a wall clock change would.
	h.d.clearLimitsTimer.ChangePeriod(20 * time.Hour)
	require.False(t, realigned())

	// The queue stays empty, so only the housekeeping wait can fix it. Run
	// may re-arm that wait just after our first advance, hence the retry.
	for i := 0; i < 3 && !realigned(); i++ {
		h.clock.Advance(cfg.HousekeepingInterval)
		for deadline := time.Now().Add(200 * time.Millisecond); !realigned() && time.Now().Before(deadline); {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.True(t, realigned())
	assert.Zero(t, h.store.saveCount())
}

func TestUpgradeLevel(t *testing.T) {
	store := &fakeStore{saved: true, data: StoreData{Icounter: Level2Threshold}}
	h := newHarness(t, noon, DefaultConfig(), store)
	h.start(t)

	require.True(t, h.stats(t).LevelUpPending)
	require.NoError(t, h.d.UpgradeLevel(context.Background()))

	s := h.stats(t)
	assert.Equal(t, uint8(2), s.Level)
	assert.False(t, s.LevelUpPending)
	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, 1, h.pub.count())
}

func TestShutdownFlushesDirtyState(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)

	require.NoError(t, h.d.Deed(context.Background(), DeedU2fAuthorized))
	h.stop()
	<-h.d.Done()

	data, saves := h.store.snapshot()
	assert.Equal(t, 1, saves)
	assert.Equal(t, uint32(3), data.Icounter)
}

func TestStoppedActorRejectsEvents(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)
	h.start(t)
	h.stop()
	<-h.d.Done()

	ctx := context.Background()
	assert.ErrorIs(t, h.d.Deed(ctx, DeedNfcRead), ErrStopped)
	_, err := h.d.Stats(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, h.d.Flush(ctx), ErrStopped)
	assert.ErrorIs(t, h.d.Run(ctx), ErrAlreadyRunning)
}

func TestDeedBlocksWhenQueueFull(t *testing.T) {
	h := newHarness(t, noon, DefaultConfig(), nil)

	for i := 0; i < DefaultConfig().QueueSize; i++ {
		require.NoError(t, h.d.Deed(context.Background(), DeedNfcRead))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.d.Deed(ctx, DeedNfcRead), context.DeadlineExceeded)
}

func TestNewPanicsOnNilCollaborators(t *testing.T) {
	assert.Panics(t, func() { New(nil, &fakePublisher{}, DefaultConfig()) })
	assert.Panics(t, func() { New(&fakeStore{}, nil, DefaultConfig()) })
}

func TestNextClearLimitsDelay(t *testing.T) {
	day := func(h, m, s int) time.Time { return time.Date(2024, 3, 1, h, m, s, 0, time.UTC) }
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{day(4, 0, 0), time.Hour},
		{day(6, 0, 0), 23 * time.Hour},
		{day(5, 0, 0), 24 * time.Hour},
		{day(4, 59, 30), 30 * time.Second},
		{day(0, 0, 0), 5 * time.Hour},
		{day(23, 30, 0), 5*time.Hour + 30*time.Minute},
	}
	for _, tt := range tests {
		got := NextClearLimitsDelay(tt.now, 5)
		assert.Equal(t, tt.want, got, "now=%s", tt.now.Format(time.TimeOnly))
		assert.Positive(t, got)
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	clock := clockwork.NewFakeClockAt(noon)
	fired := make(chan struct{}, 1)
	tm := newTimer(clock, "test", time.Minute, false, func() { fired <- struct{}{} })

	tm.Reset()
	tm.Stop()
	clock.Advance(2 * time.Minute)

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(20 * time.Millisecond):
	}
	_, active := tm.ExpiresAt()
	assert.False(t, active)
}

func TestPeriodicTimerReloads(t *testing.T) {
	clock := clockwork.NewFakeClockAt(noon)
	fired := make(chan struct{}, 4)
	tm := newTimer(clock, "test", time.Minute, true, func() { fired <- struct{}{} })
	defer tm.Stop()

	tm.Reset()
	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("tick %d did not fire", i)
		}
	}
	expires, active := tm.ExpiresAt()
	assert.True(t, active)
	assert.Equal(t, noon.Add(3*time.Minute), expires)
}
