// Package radio provides a simulated sub-GHz transceiver that replays
// recorded captures. It implements subghz.Radio and subghz.Receiver.
package radio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"dolphind/internal/subghz"
)

// noiseFloor is the RSSI reported when no capture is pending on the tuned
// frequency.
const noiseFloor float32 = -110

// ErrNotReady is returned by Receive before Begin.
var ErrNotReady = errors.New("radio: begin not called")

type mode uint8

const (
	modeOff mode = iota
	modeIdle
	modeRx
	modeSleep
)

// Stats counts what the replay did.
type Stats struct {
	Delivered int
	Missed    int
	Resets    int
}

// Sim replays captures to whoever is registered through SetRxCallback.
// A capture is delivered only while the radio is receiving on its
// frequency (or on any frequency when the capture names none).
type Sim struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	captures  []Capture
	next      int
	mode      mode
	preset    subghz.Preset
	frequency uint32
	cb        func(subghz.Decoder)
	stats     Stats
}

// Option configures a Sim.
type Option func(*Sim)

// WithClock replaces the wall clock used for capture delays.
func WithClock(c clockwork.Clock) Option {
	return func(s *Sim) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sim) { s.logger = l }
}

// NewSim returns a powered-off simulator loaded with captures.
func NewSim(captures []Capture, opts ...Option) *Sim {
	s := &Sim{
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		captures: captures,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "radio"))
	return s
}

func (s *Sim) Begin(preset subghz.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preset = preset
	s.mode = modeIdle
	return nil
}

func (s *Sim) Receive(frequency uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modeOff {
		return 0, ErrNotReady
	}
	s.frequency = frequency
	s.mode = modeRx
	return frequency, nil
}

func (s *Sim) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == modeRx {
		s.mode = modeIdle
	}
}

func (s *Sim) Sleep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = modeSleep
}

// RSSI reports the strength of the next pending capture when it is on the
// tuned frequency, otherwise the noise floor.
func (s *Sim) RSSI() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != modeRx || s.next >= len(s.captures) {
		return noiseFloor
	}
	c := s.captures[s.next]
	if !s.onFrequencyLocked(c) || c.RSSI == 0 {
		return noiseFloor
	}
	return c.RSSI
}

func (s *Sim) SetRxCallback(cb func(subghz.Decoder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Resets++
}

// Stats returns the replay counters.
func (s *Sim) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run replays every capture, honouring each capture's delay. It returns
// nil once the file is exhausted, or the context error.
func (s *Sim) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.next >= len(s.captures) {
			s.mu.Unlock()
			return nil
		}
		c := s.captures[s.next]
		s.mu.Unlock()

		if d := c.Delay(); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(d):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		s.deliver(c)
	}
}

func (s *Sim) deliver(c Capture) {
	s.mu.Lock()
	s.next++
	cb := s.cb
	ok := cb != nil && s.mode == modeRx && s.onFrequencyLocked(c)
	if ok {
		s.stats.Delivered++
	} else {
		s.stats.Missed++
	}
	freq := s.frequency
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("capture missed", "protocol", c.Protocol, "frequency", c.Frequency, "tuned", freq)
		return
	}
	dec, err := c.decode()
	if err != nil {
		// ReadCaptures already rejected undecodable keys.
		s.logger.Warn("capture dropped", "error", err)
		return
	}
	cb(dec)
}

func (s *Sim) onFrequencyLocked(c Capture) bool {
	return c.Frequency == 0 || c.Frequency == s.frequency
}
