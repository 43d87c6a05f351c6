package subghz

import "fmt"

// TxRxState is the radio mode as the scene tracks it.
type TxRxState uint8

const (
	TxRxStateIdle TxRxState = iota
	TxRxStateRx
	TxRxStateSleep
)

func (s TxRxState) String() string {
	switch s {
	case TxRxStateRx:
		return "rx"
	case TxRxStateSleep:
		return "sleep"
	default:
		return "idle"
	}
}

// TxRx wraps a Radio and tracks its mode so callers never stop a radio
// that is not receiving.
type TxRx struct {
	radio     Radio
	state     TxRxState
	frequency uint32
	preset    Preset
}

// NewTxRx returns an idle wrapper around radio.
func NewTxRx(radio Radio) *TxRx {
	if radio == nil {
		panic("subghz: nil radio")
	}
	return &TxRx{radio: radio, frequency: DefaultFrequency, preset: DefaultPreset}
}

func (t *TxRx) State() TxRxState  { return t.state }
func (t *TxRx) Frequency() uint32 { return t.frequency }
func (t *TxRx) Preset() Preset    { return t.preset }

// Set changes the target frequency and preset without touching the radio.
func (t *TxRx) Set(frequency uint32, preset Preset) {
	t.frequency = frequency
	t.preset = preset
}

// Begin loads the preset and idles the radio.
func (t *TxRx) Begin(preset Preset) error {
	if err := t.radio.Begin(preset); err != nil {
		return fmt.Errorf("begin %s: %w", preset, err)
	}
	t.preset = preset
	t.state = TxRxStateIdle
	return nil
}

// Rx tunes to frequency and starts receiving.
func (t *TxRx) Rx(frequency uint32) error {
	if !FrequencyValid(frequency) {
		return fmt.Errorf("frequency %d out of range", frequency)
	}
	set, err := t.radio.Receive(frequency)
	if err != nil {
		return fmt.Errorf("receive on %d: %w", frequency, err)
	}
	t.frequency = set
	t.state = TxRxStateRx
	return nil
}

// RxEnd stops receiving. It is a no-op unless the radio is in Rx.
func (t *TxRx) RxEnd() {
	if t.state != TxRxStateRx {
		return
	}
	t.radio.End()
	t.state = TxRxStateIdle
}

// Sleep powers the radio down.
func (t *TxRx) Sleep() {
	t.radio.Sleep()
	t.state = TxRxStateSleep
}

// RSSI samples the radio.
func (t *TxRx) RSSI() float32 {
	return t.radio.RSSI()
}
