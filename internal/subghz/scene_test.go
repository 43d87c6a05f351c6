package subghz

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolphind/internal/dolphin"
)

type fakeRadio struct {
	calls []string
	rssi  float32
	freq  uint32
}

func (r *fakeRadio) Begin(p Preset) error { r.calls = append(r.calls, "begin"); return nil }
func (r *fakeRadio) Receive(f uint32) (uint32, error) {
	r.calls = append(r.calls, "rx")
	r.freq = f
	return f, nil
}
func (r *fakeRadio) End()          { r.calls = append(r.calls, "end") }
func (r *fakeRadio) Sleep()        { r.calls = append(r.calls, "sleep") }
func (r *fakeRadio) RSSI() float32 { return r.rssi }

type fakeReceiver struct {
	cb     func(Decoder)
	resets int
}

func (r *fakeReceiver) SetRxCallback(cb func(Decoder)) { r.cb = cb }
func (r *fakeReceiver) Reset()                         { r.resets++ }

type fakeView struct {
	items      []string
	status     [3]string
	menuIndex  int
	setIndexTo int
}

func (v *fakeView) Reset()                              { v.items = nil }
func (v *fakeView) AddItem(text string, _ ProtocolType) { v.items = append(v.items, text) }
func (v *fakeView) SetStatusBar(f, m, h string)         { v.status = [3]string{f, m, h} }
func (v *fakeView) SetMenuIndex(i int)                  { v.setIndexTo = i }
func (v *fakeView) MenuIndex() int                      { return v.menuIndex }

type fakeNotifier struct {
	cues []Cue
}

func (n *fakeNotifier) Notify(c Cue) { n.cues = append(n.cues, c) }

type fakeNav struct {
	views  []ViewID
	next   []SceneID
	popped []SceneID
}

func (n *fakeNav) SwitchToView(id ViewID) { n.views = append(n.views, id) }
func (n *fakeNav) NextScene(id SceneID)   { n.next = append(n.next, id) }
func (n *fakeNav) SearchAndSwitchToPrevious(id SceneID) bool {
	n.popped = append(n.popped, id)
	return true
}

type fakeDeeds struct {
	mu    sync.Mutex
	deeds []dolphin.Deed
}

func (d *fakeDeeds) Deed(ctx context.Context, deed dolphin.Deed) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deeds = append(d.deeds, deed)
	return nil
}

type sceneFixture struct {
	scene    *ReceiverScene
	radio    *fakeRadio
	receiver *fakeReceiver
	view     *fakeView
	notifier *fakeNotifier
	nav      *fakeNav
	deeds    *fakeDeeds
}

func newSceneFixture(t *testing.T, capacity int) *sceneFixture {
	t.Helper()
	f := &sceneFixture{
		radio:    &fakeRadio{rssi: -120},
		receiver: &fakeReceiver{},
		view:     &fakeView{},
		notifier: &fakeNotifier{},
		nav:      &fakeNav{},
		deeds:    &fakeDeeds{},
	}
	f.scene = NewReceiverScene(SceneConfig{
		Setting:  DefaultSetting(),
		History:  NewHistory(capacity),
		Radio:    f.radio,
		Receiver: f.receiver,
		View:     f.view,
		Notifier: f.notifier,
		Nav:      f.nav,
		Deeds:    f.deeds,
	})
	return f
}

func (f *sceneFixture) capture(key uint64) {
	f.receiver.cb(decoder(key))
}

func TestEnterFromIdleStartsReceiving(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()

	snap := f.scene.Snapshot()
	assert.Equal(t, RxKeyStateStart, snap.RxKeyState)
	assert.Equal(t, TxRxStateRx, snap.TxRxState)
	assert.Equal(t, NotificationStateRx, snap.Notification)
	assert.Equal(t, DefaultFrequency, snap.Frequency)
	assert.Equal(t, DefaultPreset, snap.Preset)
	assert.NotEqual(t, uuid.Nil, snap.Session)

	assert.Equal(t, []string{"begin", "rx"}, f.radio.calls)
	assert.Equal(t, [3]string{"433.92", "AM", "00/50"}, f.view.status)
	assert.Equal(t, []ViewID{ViewReceiver}, f.nav.views)
	require.NotNil(t, f.receiver.cb)
}

func TestBackWithoutCaptureReturnsToStart(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()

	assert.True(t, f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack}))

	snap := f.scene.Snapshot()
	assert.Equal(t, RxKeyStateIdle, snap.RxKeyState)
	assert.Equal(t, TxRxStateSleep, snap.TxRxState)
	assert.Equal(t, []SceneID{SceneStart}, f.nav.popped)
	assert.Empty(t, f.nav.next)
	assert.Nil(t, f.receiver.cb)
	assert.Equal(t, []string{"begin", "rx", "end", "sleep"}, f.radio.calls)
}

func TestBackAfterCaptureNeedsSaving(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()

	f.capture(0xABC)
	snap := f.scene.Snapshot()
	assert.Equal(t, RxKeyStateAddKey, snap.RxKeyState)
	assert.Equal(t, NotificationStateRxDone, snap.Notification)
	assert.Equal(t, []string{"Princeton ABC"}, f.view.items)
	assert.Equal(t, "01/50", f.view.status[2])
	assert.Equal(t, 1, f.receiver.resets)

	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack})

	snap = f.scene.Snapshot()
	assert.Equal(t, RxKeyStateExit, snap.RxKeyState)
	assert.Equal(t, []SceneID{SceneNeedSaving}, f.nav.next)
	assert.Empty(t, f.nav.popped)
	assert.Len(t, snap.Entries, 1)
}

func TestDiscardAfterNeedSavingStartsFreshSession(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	first := f.scene.Snapshot().Session
	f.capture(0xABC)
	f.scene.SetPreset(868350000, Preset2FSKDev238Async)
	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack})
	require.Equal(t, RxKeyStateExit, f.scene.Snapshot().RxKeyState)

	f.scene.Discard()
	snap := f.scene.Snapshot()
	assert.Equal(t, RxKeyStateIdle, snap.RxKeyState)
	assert.Empty(t, snap.Entries)
	assert.Equal(t, DefaultFrequency, snap.Frequency)
	assert.Equal(t, DefaultPreset, snap.Preset)

	f.scene.OnEnter()
	snap = f.scene.Snapshot()
	assert.Equal(t, RxKeyStateStart, snap.RxKeyState)
	assert.Empty(t, snap.Entries)
	assert.Empty(t, f.view.items)
	assert.NotEqual(t, first, snap.Session)

	// Leaving an empty session goes straight back to start.
	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack})
	assert.Equal(t, []SceneID{SceneNeedSaving}, f.nav.next)
	assert.Equal(t, []SceneID{SceneStart}, f.nav.popped)
}

func TestReenterKeepsHistory(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.capture(1)
	f.capture(2)
	f.view.menuIndex = 1
	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventConfig})

	f.scene.OnEnter()

	snap := f.scene.Snapshot()
	assert.Equal(t, RxKeyStateAddKey, snap.RxKeyState)
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, []string{"Princeton 1", "Princeton 2"}, f.view.items)
	assert.Equal(t, 1, f.view.setIndexTo)
	// Still receiving: the radio is restarted on the same frequency.
	assert.Equal(t, []string{"begin", "rx", "end", "begin", "rx"}, f.radio.calls)
}

func TestOKRecordsDeedAndOpensInfo(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.capture(7)
	f.view.menuIndex = 0

	assert.True(t, f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventOK}))
	assert.Equal(t, []dolphin.Deed{dolphin.DeedSubGhzReceiverInfo}, f.deeds.deeds)
	assert.Equal(t, []SceneID{SceneReceiverInfo}, f.nav.next)
}

func TestConfigSilencesNotifications(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.view.menuIndex = 3

	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventConfig})
	snap := f.scene.Snapshot()
	assert.Equal(t, NotificationStateIdle, snap.Notification)
	assert.Equal(t, 3, snap.MenuIndex)
	assert.Equal(t, []SceneID{SceneReceiverConfig}, f.nav.next)
}

func TestTickPlaysReceivedCueOnce(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()

	f.scene.OnTick()
	f.capture(1)
	f.scene.OnTick()
	assert.False(t, f.scene.OnEvent(Event{Type: EventTypeTick}))

	assert.Equal(t, []Cue{CueRxBlink, CueReceived, CueRxBlink}, f.notifier.cues)
}

func TestFullHistoryShowsOnlyMemoryText(t *testing.T) {
	f := newSceneFixture(t, 2)
	f.scene.OnEnter()
	f.capture(1)
	f.capture(2)
	f.capture(3)

	snap := f.scene.Snapshot()
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, NotificationStateIdle, snap.Notification)
	assert.Equal(t, [3]string{"Memory is FULL", "", ""}, f.view.status)

	f.scene.OnTick()
	assert.Empty(t, f.notifier.cues)
}

func TestDuplicateCaptureIgnored(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.capture(5)
	f.capture(5)

	assert.Len(t, f.scene.Snapshot().Entries, 1)
	assert.Equal(t, 1, f.receiver.resets)
}

func TestCaptureAfterBackIsDropped(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	cb := f.receiver.cb
	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack})

	cb(decoder(1))
	assert.Empty(t, f.scene.Snapshot().Entries)
}

func TestHopperCyclesFrequencies(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.scene.SetHopper(true)

	setting := DefaultSetting()
	for i := 1; i <= setting.HopperCount(); i++ {
		f.scene.OnTick()
		want := setting.HopperFrequency(i % setting.HopperCount())
		assert.Equal(t, want, f.scene.Snapshot().Frequency, "tick %d", i)
	}
	assert.Equal(t, FrequencyText(f.radio.freq), f.view.status[0])
}

func TestHopperHoldsOnStrongSignal(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.scene.SetHopper(true)

	f.radio.rssi = -60
	f.scene.OnTick()
	snap := f.scene.Snapshot()
	assert.Equal(t, HopperStateRSSITimeOut, snap.HopperState)
	assert.Equal(t, DefaultFrequency, snap.Frequency)

	f.radio.rssi = -120
	for i := 0; i < hopperHoldTicks; i++ {
		f.scene.OnTick()
		snap = f.scene.Snapshot()
		assert.Equal(t, HopperStateRSSITimeOut, snap.HopperState, "hold tick %d", i+1)
		assert.Equal(t, DefaultFrequency, snap.Frequency, "hold tick %d", i+1)
	}

	f.scene.OnTick()
	snap = f.scene.Snapshot()
	assert.Equal(t, HopperStateRunning, snap.HopperState)
	assert.Equal(t, DefaultSetting().HopperFrequency(1), snap.Frequency)
}

func TestBackTurnsHopperOff(t *testing.T) {
	f := newSceneFixture(t, DefaultHistoryCapacity)
	f.scene.OnEnter()
	f.scene.SetHopper(true)
	f.scene.OnEvent(Event{Type: EventTypeCustom, Custom: EventBack})

	assert.Equal(t, HopperStateOff, f.scene.Snapshot().HopperState)
}

func TestNewReceiverScenePanicsOnMissingCollaborator(t *testing.T) {
	assert.Panics(t, func() { NewReceiverScene(SceneConfig{}) })
	assert.Panics(t, func() {
		NewReceiverScene(SceneConfig{
			Setting:  DefaultSetting(),
			History:  NewHistory(1),
			Receiver: &fakeReceiver{},
			View:     &fakeView{},
			Notifier: &fakeNotifier{},
			Nav:      &fakeNav{},
			Deeds:    &fakeDeeds{},
		})
	})
}
