// Package dolphin maintains the device's gamified usage statistics.
//
// A single goroutine (Run) owns the progression state. Callers talk to it
// through a bounded queue: Deed is fire-and-forget, Stats, Flush and
// UpgradeLevel block until the actor has applied them. Three timers feed
// housekeeping events into the same queue, so every mutation is totally
// ordered with user actions:
//   - mood decay: periodic, restarted by every deed, raises the mood penalty
//   - flush debounce: one-shot, restarted by every deed, persists the state
//   - clear limits: fires at the daily boundary, resets daily allowances
package dolphin

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"dolphind/internal/metrics"
)

// TopicStatsUpdated is published after every applied deed.
const TopicStatsUpdated = "dolphin.stats.updated"

// PubsubEvent is the payload published on TopicStatsUpdated.
type PubsubEvent int

const (
	// PubsubEventUpdate signals that the stats changed.
	PubsubEventUpdate PubsubEvent = iota
)

var (
	// ErrStopped is returned when the actor is not running anymore.
	ErrStopped = errors.New("dolphin: stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("dolphin: already running")

	// ErrNoState is returned by Persistence.Load when nothing was saved yet.
	ErrNoState = errors.New("dolphin: no saved state")
)

// Persistence loads and saves the progression record. Save is atomic from
// the actor's point of view.
type Persistence interface {
	Load(ctx context.Context) (StoreData, error)
	Save(ctx context.Context, data StoreData) error
}

// Publisher broadcasts change notifications without blocking.
type Publisher interface {
	Publish(topic string, payload any)
}

// Config holds the actor's queue size and timer schedule.
type Config struct {
	// QueueSize bounds the inbound queue; producers block when it is full.
	QueueSize int

	// ButthurtPeriod is the mood decay interval.
	ButthurtPeriod time.Duration

	// FlushDelay is the debounce window for persistence after a deed.
	FlushDelay time.Duration

	// ClearLimitsPeriod is the cadence of the daily clear once aligned.
	ClearLimitsPeriod time.Duration

	// ClearLimitsHour is the local hour at which daily limits reset.
	ClearLimitsHour int

	// HousekeepingInterval bounds the queue wait; on timeout the clear
	// schedule is checked against the wall clock.
	HousekeepingInterval time.Duration

	// Location is the time zone used for the daily boundary.
	Location *time.Location
}

// DefaultConfig returns the firmware schedule: 8 queued events, mood decay
// every 48 hours, 30 second flush debounce, daily clear at 05:00.
func DefaultConfig() Config {
	return Config{
		QueueSize:            8,
		ButthurtPeriod:       48 * time.Hour,
		FlushDelay:           30 * time.Second,
		ClearLimitsPeriod:    24 * time.Hour,
		ClearLimitsHour:      5,
		HousekeepingInterval: time.Hour,
		Location:             time.Local,
	}
}

// clearLimitsTolerance is how close the armed clear may be to now before
// the housekeeping check leaves it alone.
const clearLimitsTolerance = 6 * time.Minute

// Option configures a Dolphin.
type Option func(*Dolphin)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(d *Dolphin) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dolphin) { d.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.DolphinMetrics) Option {
	return func(d *Dolphin) { d.metrics = m }
}

// Dolphin is the stats actor. Create it with New and start it with Run.
type Dolphin struct {
	cfg     Config
	store   Persistence
	pub     Publisher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.DolphinMetrics

	state *State
	queue chan event
	done  chan struct{}

	started atomic.Bool

	butthurtTimer    *timer
	flushTimer       *timer
	clearLimitsTimer *timer
}

// New creates the actor. store and pub are required; a nil value is a
// programming error and panics.
func New(store Persistence, pub Publisher, cfg Config, opts ...Option) *Dolphin {
	if store == nil {
		panic("dolphin: nil persistence")
	}
	if pub == nil {
		panic("dolphin: nil publisher")
	}

	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ButthurtPeriod <= 0 {
		cfg.ButthurtPeriod = def.ButthurtPeriod
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = def.FlushDelay
	}
	if cfg.ClearLimitsPeriod <= 0 {
		cfg.ClearLimitsPeriod = def.ClearLimitsPeriod
	}
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = def.HousekeepingInterval
	}
	if cfg.ClearLimitsHour < 0 || cfg.ClearLimitsHour > 23 {
		cfg.ClearLimitsHour = def.ClearLimitsHour
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}

	d := &Dolphin{
		cfg:    cfg,
		store:  store,
		pub:    pub,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		queue:  make(chan event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "dolphin"))
	d.state = NewState(d.clock.Now)

	d.butthurtTimer = newTimer(d.clock, "butthurt", cfg.ButthurtPeriod, true, func() {
		d.sendFromTimer(increaseButthurtEvent{})
	})
	d.flushTimer = newTimer(d.clock, "flush", cfg.FlushDelay, false, func() {
		d.sendFromTimer(flushEvent{})
	})
	d.clearLimitsTimer = newTimer(d.clock, "clear_limits", cfg.ClearLimitsPeriod, true, func() {
		d.clearLimitsTimer.ChangePeriod(d.cfg.ClearLimitsPeriod)
		d.sendFromTimer(clearLimitsEvent{})
	})

	return d
}

// Deed submits a deed and returns once it is queued. It blocks only while
// the queue is full.
func (d *Dolphin) Deed(ctx context.Context, deed Deed) error {
	return d.send(ctx, deedEvent{deed: deed})
}

// Stats returns a snapshot that reflects every event queued before this call.
func (d *Dolphin) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := d.send(ctx, statsEvent{reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-d.done:
		select {
		case s := <-reply:
			return s, nil
		default:
			return Stats{}, ErrStopped
		}
	}
}

// Flush persists the state and waits until the write is done.
func (d *Dolphin) Flush(ctx context.Context) error {
	done := make(chan struct{}, 1)
	if err := d.send(ctx, flushEvent{done: done}); err != nil {
		return err
	}
	return d.wait(ctx, done)
}

// UpgradeLevel grants the point of experience that completes a pending
// level up, then persists.
func (d *Dolphin) UpgradeLevel(ctx context.Context) error {
	done := make(chan struct{}, 1)
	if err := d.send(ctx, upgradeLevelEvent{done: done}); err != nil {
		return err
	}
	return d.wait(ctx, done)
}

// Done is closed when Run returns.
func (d *Dolphin) Done() <-chan struct{} {
	return d.done
}

// Run owns the state until ctx is cancelled. Dirty state is flushed before
// it returns.
func (d *Dolphin) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)

	d.load(ctx)

	d.butthurtTimer.Reset()
	d.updateClearLimitsSchedule()

	housekeeping := d.clock.NewTimer(d.cfg.HousekeepingInterval)
	defer func() {
		housekeeping.Stop()
		d.butthurtTimer.Stop()
		d.flushTimer.Stop()
		d.clearLimitsTimer.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			d.save(context.WithoutCancel(ctx))
			d.logger.Info("stopped")
			return nil

		case ev := <-d.queue:
			d.dispatch(ctx, ev)
			housekeeping.Reset(d.cfg.HousekeepingInterval)

		case <-housekeeping.Chan():
			// Once an hour, catch clock changes made while the timer was armed.
			d.updateClearLimitsSchedule()
			housekeeping.Reset(d.cfg.HousekeepingInterval)
		}
	}
}

func (d *Dolphin) load(ctx context.Context) {
	data, err := d.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoState):
		d.logger.Info("no saved state, starting fresh")
	case err != nil:
		d.logger.Warn("load state failed, starting fresh", "error", err)
	default:
		d.state.Restore(data)
		d.logger.Info("state loaded", "icounter", data.Icounter, "butthurt", data.Butthurt)
	}
	s := d.state.Stats()
	d.metrics.SetStats(s.Icounter, s.Butthurt, s.Level)
}

func (d *Dolphin) dispatch(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case deedEvent:
		granted := d.state.OnDeed(ev.deed)
		d.logger.Debug("deed", "deed", ev.deed.String(), "granted", granted)
		d.pub.Publish(TopicStatsUpdated, PubsubEventUpdate)
		d.butthurtTimer.Reset()
		d.flushTimer.Reset()

	case statsEvent:
		ev.reply <- d.state.Stats()

	case flushEvent:
		d.logger.Info("flush stats")
		d.save(ctx)
		release(ev.done)

	case clearLimitsEvent:
		d.logger.Info("clear limits")
		d.state.ClearLimits()
		d.save(ctx)
		delay := NextClearLimitsDelay(d.clock.Now().In(d.cfg.Location), d.cfg.ClearLimitsHour)
		d.clearLimitsTimer.ChangePeriod(delay)
		d.logger.Debug("clear limits rescheduled", "in", delay)

	case increaseButthurtEvent:
		d.logger.Info("increase butthurt")
		d.state.Butthurted()
		d.save(ctx)

	case upgradeLevelEvent:
		d.logger.Info("upgrade level")
		d.state.IncreaseLevel()
		d.save(ctx)
		d.pub.Publish(TopicStatsUpdated, PubsubEventUpdate)
		release(ev.done)
	}

	s := d.state.Stats()
	d.metrics.ObserveEvent(ev.kind().String())
	d.metrics.SetQueueDepth(len(d.queue))
	d.metrics.SetStats(s.Icounter, s.Butthurt, s.Level)
}

// drain applies events that were queued before shutdown so their callers
// are released instead of timing out.
func (d *Dolphin) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dolphin) save(ctx context.Context) {
	if !d.state.Dirty() {
		return
	}
	start := d.clock.Now()
	err := d.store.Save(ctx, d.state.Data())
	d.metrics.ObserveSave(d.clock.Since(start), err)
	if err != nil {
		d.logger.Error("save state failed", "error", err)
		return
	}
	d.state.MarkClean()
}

// updateClearLimitsSchedule re-aligns the clear timer to the next daily
// boundary unless it is already due within clearLimitsTolerance.
func (d *Dolphin) updateClearLimitsSchedule() {
	now := d.clock.Now()
	if expiresAt, active := d.clearLimitsTimer.ExpiresAt(); active && expiresAt.Sub(now) <= clearLimitsTolerance {
		return
	}
	delay := NextClearLimitsDelay(now.In(d.cfg.Location), d.cfg.ClearLimitsHour)
	d.clearLimitsTimer.ChangePeriod(delay)
}

func (d *Dolphin) send(ctx context.Context, ev event) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}
	select {
	case d.queue <- ev:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dolphin) sendFromTimer(ev event) {
	if err := d.send(context.Background(), ev); err != nil {
		d.logger.Debug("timer event dropped", "kind", ev.kind().String(), "error", err)
	}
}

func (d *Dolphin) wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

func release(done chan<- struct{}) {
	if done != nil {
		done <- struct{}{}
	}
}
