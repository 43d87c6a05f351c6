package subghz

import (
	"fmt"
	"strings"
	"time"
)

// DefaultHistoryCapacity is the number of captures a session can hold.
const DefaultHistoryCapacity = 50

// DefaultDuplicateWindow is how long a repeated key is suppressed.
const DefaultDuplicateWindow = 500 * time.Millisecond

// Duplicate policy names accepted by NewDuplicatePolicy.
const (
	PolicyLast   = "last"
	PolicyWindow = "window"
)

const historyFullText = "Memory is FULL"

// Fingerprint identifies a capture for duplicate suppression.
type Fingerprint struct {
	Protocol string
	Key      uint64
	Bits     uint8
}

// DuplicatePolicy decides whether a capture repeats a recent one. Seen
// records the capture either way, so a suppressed repeat keeps the
// suppression window open.
type DuplicatePolicy interface {
	Seen(fp Fingerprint, now time.Time) (duplicate bool)
	Reset()
}

// NewDuplicatePolicy builds a policy by name. size only applies to
// PolicyWindow.
func NewDuplicatePolicy(name string, window time.Duration, size int) (DuplicatePolicy, error) {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	switch strings.ToLower(name) {
	case PolicyLast, "":
		return &lastPolicy{window: window}, nil
	case PolicyWindow:
		if size <= 0 {
			size = 8
		}
		return &windowPolicy{window: window, size: size}, nil
	default:
		return nil, fmt.Errorf("unknown duplicate policy: %q", name)
	}
}

// lastPolicy compares against the most recent capture only.
type lastPolicy struct {
	window time.Duration
	last   Fingerprint
	at     time.Time
	seen   bool
}

func (p *lastPolicy) Seen(fp Fingerprint, now time.Time) bool {
	dup := p.seen && fp == p.last && now.Sub(p.at) < p.window
	p.last, p.at, p.seen = fp, now, true
	return dup
}

func (p *lastPolicy) Reset() {
	*p = lastPolicy{window: p.window}
}

type seenAt struct {
	fp Fingerprint
	at time.Time
}

// windowPolicy compares against the last size distinct captures.
type windowPolicy struct {
	window time.Duration
	size   int
	recent []seenAt
}

func (p *windowPolicy) Seen(fp Fingerprint, now time.Time) bool {
	for i := range p.recent {
		if p.recent[i].fp != fp {
			continue
		}
		dup := now.Sub(p.recent[i].at) < p.window
		p.recent[i].at = now
		return dup
	}
	if len(p.recent) == p.size {
		p.recent = p.recent[1:]
	}
	p.recent = append(p.recent, seenAt{fp: fp, at: now})
	return false
}

func (p *windowPolicy) Reset() {
	p.recent = p.recent[:0]
}

// HistoryEntry is one accepted capture. Its index never changes until Reset.
type HistoryEntry struct {
	Protocol   string
	Type       ProtocolType
	Key        uint64
	Bits       uint8
	Frequency  uint32
	Preset     Preset
	MenuText   string
	ReceivedAt time.Time
}

// History is the bounded capture list of a receive session. It is not safe
// for concurrent use.
type History struct {
	capacity int
	entries  []HistoryEntry
	policy   DuplicatePolicy
	now      func() time.Time
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryClock replaces time.Now.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *History) { h.now = now }
}

// WithDuplicatePolicy replaces the default last-capture policy.
func WithDuplicatePolicy(p DuplicatePolicy) HistoryOption {
	return func(h *History) { h.policy = p }
}

// NewHistory returns an empty history holding at most capacity entries.
func NewHistory(capacity int, opts ...HistoryOption) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	h := &History{
		capacity: capacity,
		entries:  make([]HistoryEntry, 0, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.policy == nil {
		h.policy = &lastPolicy{window: DefaultDuplicateWindow}
	}
	return h
}

// Add appends the decoded capture. It returns false when the history is
// full or the capture repeats a recent one.
func (h *History) Add(dec Decoder, frequency uint32, preset Preset) bool {
	if len(h.entries) >= h.capacity {
		return false
	}

	now := h.now()
	fp := Fingerprint{Protocol: dec.Protocol(), Key: dec.Key(), Bits: dec.Bits()}
	if h.policy.Seen(fp, now) {
		return false
	}

	h.entries = append(h.entries, HistoryEntry{
		Protocol:   fp.Protocol,
		Type:       dec.Type(),
		Key:        fp.Key,
		Bits:       fp.Bits,
		Frequency:  frequency,
		Preset:     preset,
		MenuText:   menuText(dec),
		ReceivedAt: now,
	})
	return true
}

func menuText(dec Decoder) string {
	if mt, ok := dec.(MenuTexter); ok {
		if s := mt.MenuText(); s != "" {
			return s
		}
	}
	return fmt.Sprintf("%s %X", dec.Protocol(), dec.Key())
}

// SpaceLeftText returns the "used/capacity" indicator, or the full-memory
// message with full set once no slot is left.
func (h *History) SpaceLeftText() (text string, full bool) {
	if len(h.entries) >= h.capacity {
		return historyFullText, true
	}
	return fmt.Sprintf("%02d/%02d", len(h.entries), h.capacity), false
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Capacity returns the maximum number of entries.
func (h *History) Capacity() int { return h.capacity }

// Remaining returns the number of free slots.
func (h *History) Remaining() int { return h.capacity - len(h.entries) }

// MenuText returns the menu line of entry i. i must be below Len.
func (h *History) MenuText(i int) string { return h.entries[i].MenuText }

// ProtocolType returns the protocol type of entry i. i must be below Len.
func (h *History) ProtocolType(i int) ProtocolType { return h.entries[i].Type }

// Entry returns a copy of entry i. i must be below Len.
func (h *History) Entry(i int) HistoryEntry { return h.entries[i] }

// Entries returns a copy of all entries.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset drops every entry and the duplicate state.
func (h *History) Reset() {
	h.entries = h.entries[:0]
	h.policy.Reset()
}
