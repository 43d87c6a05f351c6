package dolphin

// EventKind names an actor event for logs and metrics.
type EventKind uint8

const (
	EventDeed EventKind = iota
	EventStats
	EventFlush
	EventClearLimits
	EventIncreaseButthurt
	EventUpgradeLevel
)

func (k EventKind) String() string {
	switch k {
	case EventDeed:
		return "deed"
	case EventStats:
		return "stats"
	case EventFlush:
		return "flush"
	case EventClearLimits:
		return "clear_limits"
	case EventIncreaseButthurt:
		return "increase_butthurt"
	case EventUpgradeLevel:
		return "upgrade_level"
	default:
		return "unknown"
	}
}

// event is the closed set of messages the actor consumes. Synchronous
// variants carry a reply channel with capacity one that the actor writes
// exactly once, after every state read for that event.
type event interface {
	kind() EventKind
}

type deedEvent struct {
	deed Deed
}

type statsEvent struct {
	reply chan<- Stats
}

// flushEvent has a nil done channel when the flush timer sent it.
type flushEvent struct {
	done chan<- struct{}
}

type clearLimitsEvent struct{}

type increaseButthurtEvent struct{}

type upgradeLevelEvent struct {
	done chan<- struct{}
}

func (deedEvent) kind() EventKind             { return EventDeed }
func (statsEvent) kind() EventKind            { return EventStats }
func (flushEvent) kind() EventKind            { return EventFlush }
func (clearLimitsEvent) kind() EventKind      { return EventClearLimits }
func (increaseButthurtEvent) kind() EventKind { return EventIncreaseButthurt }
func (upgradeLevelEvent) kind() EventKind     { return EventUpgradeLevel }
