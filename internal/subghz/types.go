// Package subghz implements the sub-GHz receive scene: a bounded capture
// history, the radio state around it, a frequency hopper, and the scene
// state machine that ties them to the view, notifications and navigation.
//
// Hardware, rendering and navigation live behind the interfaces in this
// file. A ReceiverScene serialises its entry points with a mutex, so the
// receiver may deliver captures on its own goroutine.
package subghz

import (
	"context"
	"fmt"
	"strings"

	"dolphind/internal/dolphin"
)

// Preset selects the modem configuration.
type Preset uint8

const (
	PresetOok270Async Preset = iota
	PresetOok650Async
	Preset2FSKDev238Async
	Preset2FSKDev476Async
	PresetMSK99_97KbAsync
	PresetGFSK9_99KbAsync
)

var presetNames = map[Preset]string{
	PresetOok270Async:     "AM270",
	PresetOok650Async:     "AM650",
	Preset2FSKDev238Async: "FM238",
	Preset2FSKDev476Async: "FM476",
	PresetMSK99_97KbAsync: "MSK99",
	PresetGFSK9_99KbAsync: "GFSK",
}

// DefaultPreset is used on a fresh scene entry.
const DefaultPreset = PresetOok650Async

func (p Preset) String() string {
	if n, ok := presetNames[p]; ok {
		return n
	}
	return fmt.Sprintf("preset(%d)", uint8(p))
}

// Modulation returns the status bar label for the preset.
func (p Preset) Modulation() string {
	switch p {
	case PresetOok270Async, PresetOok650Async:
		return "AM"
	default:
		return "FM"
	}
}

// ParsePreset accepts the names returned by String, case-insensitively.
func ParsePreset(s string) (Preset, error) {
	for p, n := range presetNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown preset: %q", s)
}

// ProtocolType classifies a decoded protocol.
type ProtocolType uint8

const (
	ProtocolTypeUnknown ProtocolType = iota
	ProtocolTypeStatic
	ProtocolTypeDynamic
	ProtocolTypeRAW
)

func (t ProtocolType) String() string {
	switch t {
	case ProtocolTypeStatic:
		return "static"
	case ProtocolTypeDynamic:
		return "dynamic"
	case ProtocolTypeRAW:
		return "raw"
	default:
		return "unknown"
	}
}

// Decoder is the state a protocol decoder holds after a successful decode.
type Decoder interface {
	Protocol() string
	Type() ProtocolType
	Key() uint64
	Bits() uint8
}

// MenuTexter is implemented by decoders that render their own menu line.
type MenuTexter interface {
	MenuText() string
}

// Radio drives the transceiver.
type Radio interface {
	// Begin loads preset and leaves the radio idle.
	Begin(preset Preset) error
	// Receive tunes to frequency and starts async receive. It returns the
	// frequency actually set.
	Receive(frequency uint32) (uint32, error)
	// End stops receiving and idles the radio.
	End()
	Sleep()
	// RSSI samples the current signal strength in dBm.
	RSSI() float32
}

// Receiver dispatches decoded captures. A nil callback unregisters.
type Receiver interface {
	SetRxCallback(cb func(Decoder))
	// Reset clears every decoder's partial state.
	Reset()
}

// View is the receiver screen.
type View interface {
	// Reset drops all menu items.
	Reset()
	AddItem(text string, t ProtocolType)
	SetStatusBar(frequency, modulation, history string)
	SetMenuIndex(i int)
	MenuIndex() int
}

// Cue selects a notification sequence.
type Cue uint8

const (
	// CueRxBlink is the idle "listening" blink played every tick.
	CueRxBlink Cue = iota
	// CueReceived is played once after a capture is added.
	CueReceived
)

func (c Cue) String() string {
	if c == CueReceived {
		return "received"
	}
	return "rx_blink"
}

// Notifier plays notification sequences.
type Notifier interface {
	Notify(cue Cue)
}

// SceneID names a scene for navigation.
type SceneID uint8

const (
	SceneStart SceneID = iota
	SceneReceiver
	SceneReceiverInfo
	SceneReceiverConfig
	SceneNeedSaving
)

func (s SceneID) String() string {
	switch s {
	case SceneStart:
		return "start"
	case SceneReceiver:
		return "receiver"
	case SceneReceiverInfo:
		return "receiver_info"
	case SceneReceiverConfig:
		return "receiver_config"
	case SceneNeedSaving:
		return "need_saving"
	default:
		return fmt.Sprintf("scene(%d)", uint8(s))
	}
}

// ViewID names a view for the dispatcher.
type ViewID uint8

const ViewReceiver ViewID = 0

// Navigator issues navigation intents.
type Navigator interface {
	SwitchToView(id ViewID)
	NextScene(id SceneID)
	// SearchAndSwitchToPrevious pops back to id if it is on the stack.
	SearchAndSwitchToPrevious(id SceneID) bool
}

// DeedSink receives the deeds the scene earns.
type DeedSink interface {
	Deed(ctx context.Context, deed dolphin.Deed) error
}
