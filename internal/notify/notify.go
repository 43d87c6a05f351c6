// Package notify turns receiver cues and progression messages into desktop
// notifications. DBus talks to org.freedesktop.Notifications on the session
// bus; Log writes the same messages to a logger when no bus is available.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"dolphind/internal/subghz"
)

// Backend names accepted by Open.
const (
	BackendDBus = "dbus"
	BackendLog  = "log"
	BackendNone = "none"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"

	appName = "dolphind"
	// expireMillis is how long a popup stays up.
	expireMillis int32 = 3000
)

// Notifier is a subghz.Notifier that can also post free-form messages.
type Notifier interface {
	subghz.Notifier
	Message(summary, body string) error
	Close() error
}

var (
	_ Notifier = (*DBus)(nil)
	_ Notifier = (*Log)(nil)
)

// Open returns the notifier named by kind. A dbus notifier that cannot reach
// the session bus falls back to Log.
func Open(kind string, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(kind) {
	case BackendDBus, "":
		n, err := NewDBus(logger)
		if err != nil {
			logger.Warn("desktop notifications unavailable, using log", "error", err)
			return NewLog(logger), nil
		}
		return n, nil
	case BackendLog:
		return NewLog(logger), nil
	case BackendNone:
		return NewLog(slog.New(slog.DiscardHandler)), nil
	default:
		return nil, fmt.Errorf("unknown notifier: %q", kind)
	}
}

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus posts notifications over the session bus. Consecutive "received"
// cues replace the previous popup instead of stacking.
type DBus struct {
	conn   *dbus.Conn
	obj    caller
	logger *slog.Logger

	mu         sync.Mutex
	replacesID uint32
}

// NewDBus connects to the session bus.
func NewDBus(logger *slog.Logger) (*DBus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &DBus{
		conn:   conn,
		obj:    conn.Object(notificationsDest, notificationsPath),
		logger: logger.With(slog.String("component", "notify")),
	}, nil
}

// Notify posts a popup for CueReceived. The per-tick blink has no desktop
// equivalent and is ignored.
func (n *DBus) Notify(cue subghz.Cue) {
	if cue != subghz.CueReceived {
		return
	}
	if err := n.post("Sub-GHz", "Signal received", true); err != nil {
		n.logger.Warn("notification failed", "cue", cue.String(), "error", err)
	}
}

// Message posts a free-form notification.
func (n *DBus) Message(summary, body string) error {
	return n.post(summary, body, false)
}

func (n *DBus) post(summary, body string, replace bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var replaces uint32
	if replace {
		replaces = n.replacesID
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(0)),
	}
	call := n.obj.Call(notificationsIface+".Notify", 0,
		appName, replaces, "", summary, body, []string{}, hints, expireMillis)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify reply: %w", err)
	}
	if replace {
		n.replacesID = id
	}
	return nil
}

// Close releases the bus connection.
func (n *DBus) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// Log writes notifications to a logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("component", "notify"))}
}

func (l *Log) Notify(cue subghz.Cue) {
	if cue == subghz.CueReceived {
		l.logger.Info("signal received")
		return
	}
	l.logger.Debug("cue", "cue", cue.String())
}

func (l *Log) Message(summary, body string) error {
	l.logger.Info(summary, "body", body)
	return nil
}

func (l *Log) Close() error { return nil }
