package subghz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dolphind/internal/dolphin"
	"dolphind/internal/metrics"
)

// RxKeyState tracks whether the session captured anything.
type RxKeyState uint8

const (
	RxKeyStateIdle RxKeyState = iota
	RxKeyStateStart
	RxKeyStateAddKey
	RxKeyStateExit
)

func (s RxKeyState) String() string {
	switch s {
	case RxKeyStateStart:
		return "start"
	case RxKeyStateAddKey:
		return "add_key"
	case RxKeyStateExit:
		return "exit"
	default:
		return "idle"
	}
}

// NotificationState drives the per-tick notification cue.
type NotificationState uint8

const (
	NotificationStateIdle NotificationState = iota
	NotificationStateRx
	NotificationStateRxDone
)

// EventType distinguishes custom view events from ticks.
type EventType uint8

const (
	EventTypeCustom EventType = iota
	EventTypeTick
)

// CustomEvent is sent by the receiver view.
type CustomEvent uint8

const (
	EventBack CustomEvent = iota
	EventOK
	EventConfig
)

// Event is delivered to ReceiverScene.OnEvent.
type Event struct {
	Type   EventType
	Custom CustomEvent
}

// deedTimeout bounds how long OK waits on a full deed queue.
const deedTimeout = time.Second

// SceneConfig wires a ReceiverScene to its collaborators. All fields except
// Logger and Metrics are required.
type SceneConfig struct {
	Setting  *Setting
	History  *History
	Radio    Radio
	Receiver Receiver
	View     View
	Notifier Notifier
	Nav      Navigator
	Deeds    DeedSink
	Logger   *slog.Logger
	Metrics  *metrics.ReceiverMetrics
}

// ReceiverScene is the receive screen state machine. All entry points take
// the same mutex, so the receiver callback and the UI tick may run on
// different goroutines.
type ReceiverScene struct {
	mu sync.Mutex

	setting  *Setting
	history  *History
	txrx     *TxRx
	hopper   *Hopper
	receiver Receiver
	view     View
	notifier Notifier
	nav      Navigator
	deeds    DeedSink
	logger   *slog.Logger
	metrics  *metrics.ReceiverMetrics

	session       uuid.UUID
	rxKeyState    RxKeyState
	notification  NotificationState
	idxMenuChosen int
	listening     bool
}

// NewReceiverScene builds the scene. A nil collaborator panics.
func NewReceiverScene(cfg SceneConfig) *ReceiverScene {
	switch {
	case cfg.Setting == nil:
		panic("subghz: nil setting")
	case cfg.History == nil:
		panic("subghz: nil history")
	case cfg.Receiver == nil:
		panic("subghz: nil receiver")
	case cfg.View == nil:
		panic("subghz: nil view")
	case cfg.Notifier == nil:
		panic("subghz: nil notifier")
	case cfg.Nav == nil:
		panic("subghz: nil navigator")
	case cfg.Deeds == nil:
		panic("subghz: nil deed sink")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiverScene{
		setting:  cfg.Setting,
		history:  cfg.History,
		txrx:     NewTxRx(cfg.Radio),
		hopper:   NewHopper(cfg.Setting),
		receiver: cfg.Receiver,
		view:     cfg.View,
		notifier: cfg.Notifier,
		nav:      cfg.Nav,
		deeds:    cfg.Deeds,
		logger:   logger.With(slog.String("component", "subghz")),
		metrics:  cfg.Metrics,
	}
}

// OnEnter starts a receive session. Coming from Idle it resets the
// frequency, preset and history; otherwise it repopulates the menu from the
// kept history.
func (s *ReceiverScene) OnEnter() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rxKeyState == RxKeyStateIdle {
		s.txrx.Set(s.setting.DefaultFrequency(), s.setting.Preset())
		s.history.Reset()
		s.rxKeyState = RxKeyStateStart
		s.session = uuid.New()
	}

	s.view.Reset()
	for i := 0; i < s.history.Len(); i++ {
		s.view.AddItem(s.history.MenuText(i), s.history.ProtocolType(i))
		s.rxKeyState = RxKeyStateAddKey
	}
	s.updateStatusBar()
	s.receiver.SetRxCallback(s.HandleCapture)
	s.listening = true

	s.notification = NotificationStateRx
	s.txrx.RxEnd()
	if st := s.txrx.State(); st == TxRxStateIdle || st == TxRxStateSleep {
		if err := s.txrx.Begin(s.txrx.Preset()); err != nil {
			s.logger.Error("radio begin failed", "session", s.session, "error", err)
		} else if err := s.txrx.Rx(s.txrx.Frequency()); err != nil {
			s.logger.Error("radio rx failed", "session", s.session, "error", err)
		}
	}
	s.metrics.SetFrequency(s.txrx.Frequency())
	s.metrics.SetHistoryEntries(s.history.Len())
	s.view.SetMenuIndex(s.idxMenuChosen)
	s.nav.SwitchToView(ViewReceiver)

	s.logger.Info("receiver entered",
		"session", s.session,
		"frequency", s.txrx.Frequency(),
		"preset", s.txrx.Preset().String(),
		"entries", s.history.Len(),
	)
}

// OnEvent handles a view event or a tick. It returns true when the event
// was consumed.
func (s *ReceiverScene) OnEvent(ev Event) bool {
	if ev.Type == EventTypeTick {
		s.OnTick()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Custom {
	case EventBack:
		s.back()
		return true

	case EventOK:
		s.idxMenuChosen = s.view.MenuIndex()
		ctx, cancel := context.WithTimeout(context.Background(), deedTimeout)
		defer cancel()
		if err := s.deeds.Deed(ctx, dolphin.DeedSubGhzReceiverInfo); err != nil {
			s.logger.Warn("deed not recorded", "deed", dolphin.DeedSubGhzReceiverInfo.String(), "error", err)
		}
		s.nav.NextScene(SceneReceiverInfo)
		return true

	case EventConfig:
		s.notification = NotificationStateIdle
		s.idxMenuChosen = s.view.MenuIndex()
		s.nav.NextScene(SceneReceiverConfig)
		return true
	}
	return false
}

// OnTick advances the hopper and plays the notification cue.
func (s *ReceiverScene) OnTick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hopper.State() != HopperStateOff {
		hopped, err := s.hopper.Update(s.txrx, s.receiver)
		if err != nil {
			s.logger.Error("hopper retune failed", "session", s.session, "error", err)
		}
		if hopped {
			s.metrics.ObserveHop()
			s.metrics.SetFrequency(s.txrx.Frequency())
		}
		s.updateStatusBar()
	}

	switch s.notification {
	case NotificationStateRx:
		s.notifier.Notify(CueRxBlink)
	case NotificationStateRxDone:
		s.notifier.Notify(CueReceived)
		s.notification = NotificationStateRx
	}
}

// OnExit is called when another scene is pushed on top. The radio keeps
// running; back-navigation is what releases it.
func (s *ReceiverScene) OnExit() {}

// HandleCapture is the receiver callback.
func (s *ReceiverScene) HandleCapture(dec Decoder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening {
		return
	}

	added := s.history.Add(dec, s.txrx.Frequency(), s.txrx.Preset())
	s.metrics.ObserveCapture(added, s.history.Len())
	if !added {
		return
	}

	s.receiver.Reset()
	s.notification = NotificationStateRxDone
	last := s.history.Len() - 1
	s.view.AddItem(s.history.MenuText(last), s.history.ProtocolType(last))
	s.updateStatusBar()
	s.rxKeyState = RxKeyStateAddKey

	s.logger.Debug("capture added",
		"session", s.session,
		"protocol", dec.Protocol(),
		"index", last,
	)
}

// SetHopper turns the hopper on or off, as the config scene does.
func (s *ReceiverScene) SetHopper(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.hopper.SetState(HopperStateRunning)
	} else {
		s.hopper.SetState(HopperStateOff)
	}
}

// Discard drops the kept captures, as the need-saving scene does when the
// user exits without saving. The next OnEnter starts a fresh session.
func (s *ReceiverScene) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.history.Len()
	s.rxKeyState = RxKeyStateIdle
	s.txrx.Set(s.setting.DefaultFrequency(), s.setting.Preset())
	s.history.Reset()
	s.idxMenuChosen = 0
	s.metrics.SetHistoryEntries(0)
	s.logger.Info("captures discarded", "session", s.session, "entries", n)
}

// SetPreset changes the frequency and preset for the next receive.
func (s *ReceiverScene) SetPreset(frequency uint32, preset Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txrx.Set(frequency, preset)
}

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	Session      uuid.UUID
	RxKeyState   RxKeyState
	TxRxState    TxRxState
	HopperState  HopperState
	Notification NotificationState
	Frequency    uint32
	Preset       Preset
	MenuIndex    int
	Entries      []HistoryEntry
}

// Snapshot returns the current session state.
func (s *ReceiverScene) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Session:      s.session,
		RxKeyState:   s.rxKeyState,
		TxRxState:    s.txrx.State(),
		HopperState:  s.hopper.State(),
		Notification: s.notification,
		Frequency:    s.txrx.Frequency(),
		Preset:       s.txrx.Preset(),
		MenuIndex:    s.idxMenuChosen,
		Entries:      s.history.Entries(),
	}
}

func (s *ReceiverScene) back() {
	s.notification = NotificationStateIdle
	if s.txrx.State() == TxRxStateRx {
		s.txrx.RxEnd()
		s.txrx.Sleep()
	}
	s.hopper.SetState(HopperStateOff)
	s.idxMenuChosen = 0
	s.receiver.SetRxCallback(nil)
	s.listening = false

	if s.rxKeyState == RxKeyStateAddKey {
		s.rxKeyState = RxKeyStateExit
		s.logger.Info("receiver left with captures", "session", s.session, "entries", s.history.Len())
		s.nav.NextScene(SceneNeedSaving)
		return
	}

	s.rxKeyState = RxKeyStateIdle
	s.txrx.Set(s.setting.DefaultFrequency(), s.setting.Preset())
	s.logger.Info("receiver left", "session", s.session)
	s.nav.SearchAndSwitchToPrevious(SceneStart)
}

func (s *ReceiverScene) updateStatusBar() {
	text, full := s.history.SpaceLeftText()
	if full {
		s.view.SetStatusBar(text, "", "")
		s.notification = NotificationStateIdle
		return
	}
	s.view.SetStatusBar(FrequencyText(s.txrx.Frequency()), s.txrx.Preset().Modulation(), text)
}
