package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolphind/internal/subghz"
)

type fakeObject struct {
	calls  [][]interface{}
	nextID uint32
	err    error
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.calls = append(o.calls, args)
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	o.nextID++
	return &dbus.Call{Body: []interface{}{o.nextID}}
}

func newTestDBus(obj *fakeObject, buf *bytes.Buffer) *DBus {
	return &DBus{obj: obj, logger: slog.New(slog.NewTextHandler(buf, nil))}
}

func TestDBusReceivedReplacesPreviousPopup(t *testing.T) {
	obj := &fakeObject{}
	n := newTestDBus(obj, &bytes.Buffer{})

	n.Notify(subghz.CueReceived)
	n.Notify(subghz.CueRxBlink)
	n.Notify(subghz.CueReceived)

	require.Len(t, obj.calls, 2)
	assert.Equal(t, "dolphind", obj.calls[0][0])
	assert.Equal(t, uint32(0), obj.calls[0][1])
	assert.Equal(t, "Signal received", obj.calls[0][4])
	assert.Equal(t, uint32(1), obj.calls[1][1])
}

func TestDBusMessageDoesNotReplace(t *testing.T) {
	obj := &fakeObject{}
	n := newTestDBus(obj, &bytes.Buffer{})

	require.NoError(t, n.Message("Level up", "Level 2 is ready"))
	require.NoError(t, n.Message("Level up", "again"))
	assert.Equal(t, uint32(0), obj.calls[1][1])
	assert.Equal(t, uint32(0), n.replacesID)
}

func TestDBusErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	obj := &fakeObject{err: errors.New("no such service")}
	n := newTestDBus(obj, &buf)

	n.Notify(subghz.CueReceived)
	assert.Contains(t, buf.String(), "notification failed")
	assert.Error(t, n.Message("a", "b"))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	n.Notify(subghz.CueReceived)
	n.Notify(subghz.CueRxBlink)
	require.NoError(t, n.Message("Level up", "ready"))

	out := buf.String()
	assert.Contains(t, out, "signal received")
	assert.NotContains(t, out, "rx_blink")
	assert.Contains(t, out, "Level up")
}

func TestOpen(t *testing.T) {
	for _, kind := range []string{"log", "none"} {
		n, err := Open(kind, nil)
		require.NoError(t, err)
		assert.IsType(t, &Log{}, n)
	}
	_, err := Open("carrier-pigeon", nil)
	assert.Error(t, err)
}
