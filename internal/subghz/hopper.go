package subghz

// HopperState is the frequency hopper mode.
type HopperState uint8

const (
	HopperStateOff HopperState = iota
	HopperStateRunning
	HopperStatePause
	HopperStateRSSITimeOut
)

func (s HopperState) String() string {
	switch s {
	case HopperStateRunning:
		return "running"
	case HopperStatePause:
		return "pause"
	case HopperStateRSSITimeOut:
		return "rssi_timeout"
	default:
		return "off"
	}
}

const (
	// hopperRSSIThreshold is the level in dBm above which the hopper stays
	// on the current frequency.
	hopperRSSIThreshold = -90.0

	// hopperHoldTicks is how many ticks a strong signal holds the frequency.
	// Hopping resumes on the tick after the hold runs out.
	hopperHoldTicks = 10
)

// Hopper cycles the receiver through the hopper frequency list, pausing on
// frequencies with activity.
type Hopper struct {
	setting *Setting
	state   HopperState
	idx     int
	timeout int
}

// NewHopper returns a hopper in the Off state.
func NewHopper(setting *Setting) *Hopper {
	return &Hopper{setting: setting}
}

func (h *Hopper) State() HopperState { return h.state }

// SetState switches modes. Turning the hopper on restarts from the top of
// the list.
func (h *Hopper) SetState(s HopperState) {
	if s == HopperStateRunning && h.state == HopperStateOff {
		h.idx = 0
	}
	h.state = s
	h.timeout = 0
}

// Update runs one tick. It returns true when it retuned the radio.
func (h *Hopper) Update(txrx *TxRx, rx Receiver) (bool, error) {
	switch h.state {
	case HopperStateOff, HopperStatePause:
		return false, nil
	case HopperStateRSSITimeOut:
		if h.timeout > 0 {
			h.timeout--
			return false, nil
		}
		h.state = HopperStateRunning
	default:
		if txrx.RSSI() > hopperRSSIThreshold {
			h.state = HopperStateRSSITimeOut
			h.timeout = hopperHoldTicks
			return false, nil
		}
	}

	if h.setting.HopperCount() == 0 {
		return false, nil
	}
	h.idx = (h.idx + 1) % h.setting.HopperCount()

	txrx.RxEnd()
	if txrx.State() != TxRxStateIdle {
		return false, nil
	}
	rx.Reset()
	if err := txrx.Rx(h.setting.HopperFrequency(h.idx)); err != nil {
		return false, err
	}
	return true, nil
}
