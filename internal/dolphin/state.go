package dolphin

import (
	"math"
	"time"
)

// Level thresholds. Experience at or below a threshold belongs to the lower level.
const (
	Level2Threshold = 735
	Level3Threshold = 2940

	// ButthurtMax caps the mood penalty.
	ButthurtMax = 14
)

// StoreData is the persisted progression record. Every field has a fixed
// size so persistence backends can encode it with encoding/binary.
type StoreData struct {
	IcounterDailyLimit [AppCount]uint8
	Flags              uint32
	Icounter           uint32
	Butthurt           uint32
	Timestamp          uint64
}

// Stats is a point-in-time copy of the progression state.
type Stats struct {
	Icounter       uint32 `json:"icounter"`
	Butthurt       uint32 `json:"butthurt"`
	Timestamp      uint64 `json:"timestamp"`
	Level          uint8  `json:"level"`
	LevelUpPending bool   `json:"level_up_pending"`
}

// Level returns the level for the given experience. It never decreases as
// experience grows.
func Level(icounter uint32) uint8 {
	switch {
	case icounter <= Level2Threshold:
		return 1
	case icounter <= Level3Threshold:
		return 2
	default:
		return 3
	}
}

// XPToLevelUp returns the experience still needed to reach the next level
// threshold. Zero means a level up is pending.
func XPToLevelUp(icounter uint32) uint32 {
	var threshold uint32
	switch {
	case icounter <= Level2Threshold:
		threshold = Level2Threshold
	case icounter <= Level3Threshold:
		threshold = Level3Threshold
	default:
		threshold = math.MaxUint32
	}
	return threshold - icounter
}

// XPAboveLastLevelUp returns the experience gathered since the last level threshold.
func XPAboveLastLevelUp(icounter uint32) uint32 {
	switch {
	case icounter <= Level2Threshold:
		return icounter
	case icounter <= Level3Threshold:
		return icounter - (Level2Threshold + 1)
	default:
		return icounter - (Level3Threshold + 1)
	}
}

// State owns StoreData and the bookkeeping rules around it. It is not safe
// for concurrent use; the Dolphin actor is its only writer.
type State struct {
	data  StoreData
	dirty bool
	now   func() time.Time
}

// NewState returns an empty state stamped with now.
func NewState(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{now: now}
}

// Restore replaces the state with persisted data and marks it clean.
func (s *State) Restore(data StoreData) {
	s.data = data
	s.dirty = false
}

// Data returns a copy of the persisted record.
func (s *State) Data() StoreData {
	return s.data
}

// Dirty reports whether the state changed since the last save.
func (s *State) Dirty() bool {
	return s.dirty
}

// MarkClean records a successful save.
func (s *State) MarkClean() {
	s.dirty = false
}

// OnDeed applies a deed and returns the experience actually granted. The
// grant is limited by the app's daily allowance and by the next level
// threshold; a pending level up blocks further experience until
// IncreaseLevel is applied.
func (s *State) OnDeed(deed Deed) uint32 {
	app := deed.App()
	var granted uint32
	if app < AppCount {
		used := uint32(s.data.IcounterDailyLimit[app])
		if limit := app.Limit(); used < limit {
			granted = min(deed.Weight(), limit-used)
		}
		granted = min(granted, XPToLevelUp(s.data.Icounter))
		s.data.Icounter += granted
		s.data.IcounterDailyLimit[app] += uint8(granted)
	}

	s.touch()
	return granted
}

// Butthurted increases the mood penalty by one, up to ButthurtMax.
func (s *State) Butthurted() {
	if s.data.Butthurt < ButthurtMax {
		s.data.Butthurt++
		s.touch()
	}
}

// IncreaseLevel grants the single point of experience that crosses a
// pending level threshold.
func (s *State) IncreaseLevel() {
	s.data.Icounter++
	s.dirty = true
}

// ClearLimits resets the per-app daily allowances and the mood penalty.
func (s *State) ClearLimits() {
	for i := range s.data.IcounterDailyLimit {
		s.data.IcounterDailyLimit[i] = 0
	}
	s.data.Butthurt = 0
	s.dirty = true
}

// Stats returns a snapshot of the current state.
func (s *State) Stats() Stats {
	return Stats{
		Icounter:       s.data.Icounter,
		Butthurt:       s.data.Butthurt,
		Timestamp:      s.data.Timestamp,
		Level:          Level(s.data.Icounter),
		LevelUpPending: XPToLevelUp(s.data.Icounter) == 0,
	}
}

func (s *State) touch() {
	s.data.Timestamp = uint64(s.now().Unix())
	s.dirty = true
}
