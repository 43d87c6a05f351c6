package dolphin

import (
	"fmt"
	"strings"
)

// App groups deeds for daily experience limits.
type App uint8

const (
	AppSubGhz App = iota
	AppRfid
	AppNfc
	AppIr
	AppIbutton
	AppBadusb
	AppU2f
	AppPlugin

	// AppCount is the number of apps tracked in StoreData.
	AppCount
)

// appDailyLimit is the experience an app may grant between two limit clears.
const appDailyLimit = 20

var appNames = [AppCount]string{
	AppSubGhz:  "subghz",
	AppRfid:    "rfid",
	AppNfc:     "nfc",
	AppIr:      "ir",
	AppIbutton: "ibutton",
	AppBadusb:  "badusb",
	AppU2f:     "u2f",
	AppPlugin:  "plugin",
}

func (a App) String() string {
	if a < AppCount {
		return appNames[a]
	}
	return fmt.Sprintf("app(%d)", uint8(a))
}

// Limit returns the daily experience limit of the app.
func (a App) Limit() uint32 {
	return appDailyLimit
}

// Deed is a user action that grants experience.
type Deed uint8

const (
	DeedSubGhzReceiverInfo Deed = iota
	DeedSubGhzSave
	DeedSubGhzRawRec
	DeedSubGhzAddManually
	DeedSubGhzSend
	DeedSubGhzFrequencyAnalyzer

	DeedRfidRead
	DeedRfidReadSuccess
	DeedRfidSave
	DeedRfidEmulate
	DeedRfidAdd

	DeedNfcRead
	DeedNfcReadSuccess
	DeedNfcSave
	DeedNfcEmulate
	DeedNfcAdd

	DeedIrLearnSuccess
	DeedIrSave
	DeedIrSend

	DeedIbuttonRead
	DeedIbuttonReadSuccess
	DeedIbuttonSave
	DeedIbuttonEmulate
	DeedIbuttonAdd

	DeedBadUsbPlayScript

	DeedU2fAuthorized

	DeedPluginStart
	DeedPluginGameStart
	DeedPluginGameWin

	deedCount
)

type deedInfo struct {
	name   string
	app    App
	weight uint32
}

var deeds = [deedCount]deedInfo{
	DeedSubGhzReceiverInfo:      {"subghz_receiver_info", AppSubGhz, 1},
	DeedSubGhzSave:              {"subghz_save", AppSubGhz, 3},
	DeedSubGhzRawRec:            {"subghz_raw_rec", AppSubGhz, 1},
	DeedSubGhzAddManually:       {"subghz_add_manually", AppSubGhz, 2},
	DeedSubGhzSend:              {"subghz_send", AppSubGhz, 2},
	DeedSubGhzFrequencyAnalyzer: {"subghz_frequency_analyzer", AppSubGhz, 1},

	DeedRfidRead:        {"rfid_read", AppRfid, 1},
	DeedRfidReadSuccess: {"rfid_read_success", AppRfid, 3},
	DeedRfidSave:        {"rfid_save", AppRfid, 3},
	DeedRfidEmulate:     {"rfid_emulate", AppRfid, 2},
	DeedRfidAdd:         {"rfid_add", AppRfid, 2},

	DeedNfcRead:        {"nfc_read", AppNfc, 1},
	DeedNfcReadSuccess: {"nfc_read_success", AppNfc, 3},
	DeedNfcSave:        {"nfc_save", AppNfc, 3},
	DeedNfcEmulate:     {"nfc_emulate", AppNfc, 2},
	DeedNfcAdd:         {"nfc_add", AppNfc, 2},

	DeedIrLearnSuccess: {"ir_learn_success", AppIr, 3},
	DeedIrSave:         {"ir_save", AppIr, 3},
	DeedIrSend:         {"ir_send", AppIr, 2},

	DeedIbuttonRead:        {"ibutton_read", AppIbutton, 1},
	DeedIbuttonReadSuccess: {"ibutton_read_success", AppIbutton, 3},
	DeedIbuttonSave:        {"ibutton_save", AppIbutton, 3},
	DeedIbuttonEmulate:     {"ibutton_emulate", AppIbutton, 2},
	DeedIbuttonAdd:         {"ibutton_add", AppIbutton, 2},

	DeedBadUsbPlayScript: {"badusb_play_script", AppBadusb, 3},

	DeedU2fAuthorized: {"u2f_authorized", AppU2f, 3},

	DeedPluginStart:     {"plugin_start", AppPlugin, 1},
	DeedPluginGameStart: {"plugin_game_start", AppPlugin, 1},
	DeedPluginGameWin:   {"plugin_game_win", AppPlugin, 1},
}

// Valid reports whether d is a known deed.
func (d Deed) Valid() bool {
	return d < deedCount
}

// App returns the app the deed is accounted to.
func (d Deed) App() App {
	if !d.Valid() {
		return AppCount
	}
	return deeds[d].app
}

// Weight returns the experience the deed grants before limits apply.
func (d Deed) Weight() uint32 {
	if !d.Valid() {
		return 0
	}
	return deeds[d].weight
}

func (d Deed) String() string {
	if !d.Valid() {
		return fmt.Sprintf("deed(%d)", uint8(d))
	}
	return deeds[d].name
}

// ParseDeed looks a deed up by its name, e.g. "subghz_save".
func ParseDeed(s string) (Deed, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i := range deeds {
		if deeds[i].name == name {
			return Deed(i), nil
		}
	}
	return 0, fmt.Errorf("unknown deed: %q", s)
}

// Deeds returns every known deed in declaration order.
func Deeds() []Deed {
	out := make([]Deed, 0, deedCount)
	for d := Deed(0); d < deedCount; d++ {
		out = append(out, d)
	}
	return out
}
