package subghz

import (
	"errors"
	"fmt"
	"slices"
)

// Frequencies the receiver offers when no list is configured.
var defaultFrequencies = []uint32{
	300000000,
	303875000,
	304250000,
	310000000,
	315000000,
	318000000,
	390000000,
	418000000,
	433075000,
	433420000,
	433920000,
	434420000,
	434775000,
	438900000,
	868350000,
	915000000,
	925000000,
}

var defaultHopperFrequencies = []uint32{
	310000000,
	315000000,
	318000000,
	390000000,
	433920000,
	868350000,
}

// DefaultFrequency is tuned on a fresh scene entry.
const DefaultFrequency uint32 = 433920000

// Bands the transceiver can tune, inclusive.
var bands = [][2]uint32{
	{299999755, 348000335},
	{386999938, 464000000},
	{778999847, 928000000},
}

// FrequencyValid reports whether hz lies in a supported band.
func FrequencyValid(hz uint32) bool {
	for _, b := range bands {
		if hz >= b[0] && hz <= b[1] {
			return true
		}
	}
	return false
}

// Setting holds the frequency lists. It is immutable after NewSetting.
type Setting struct {
	frequencies []uint32
	hopper      []uint32
	def         uint32
	preset      Preset
}

// DefaultSetting returns the built-in lists.
func DefaultSetting() *Setting {
	s, _ := NewSetting(nil, nil, 0)
	return s
}

// NewSetting validates and copies the lists. Empty lists and a zero default
// fall back to the built-in values.
func NewSetting(frequencies, hopper []uint32, def uint32) (*Setting, error) {
	if len(frequencies) == 0 {
		frequencies = defaultFrequencies
	}
	if len(hopper) == 0 {
		hopper = defaultHopperFrequencies
	}
	if def == 0 {
		def = DefaultFrequency
	}

	var errs []error
	for _, f := range frequencies {
		if !FrequencyValid(f) {
			errs = append(errs, fmt.Errorf("frequency %d out of range", f))
		}
	}
	for _, f := range hopper {
		if !FrequencyValid(f) {
			errs = append(errs, fmt.Errorf("hopper frequency %d out of range", f))
		}
	}
	if !FrequencyValid(def) {
		errs = append(errs, fmt.Errorf("default frequency %d out of range", def))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Setting{
		frequencies: slices.Clone(frequencies),
		hopper:      slices.Clone(hopper),
		def:         def,
		preset:      DefaultPreset,
	}, nil
}

// Frequencies returns a copy of the selectable frequencies.
func (s *Setting) Frequencies() []uint32 {
	return slices.Clone(s.frequencies)
}

func (s *Setting) HopperCount() int {
	return len(s.hopper)
}

// HopperFrequency returns the i-th hopper frequency.
func (s *Setting) HopperFrequency(i int) uint32 {
	return s.hopper[i]
}

func (s *Setting) DefaultFrequency() uint32 {
	return s.def
}

// FrequencyText formats hz as "MHz.kHz/10" the way the status bar shows it,
// e.g. 433920000 → "433.92".
func FrequencyText(hz uint32) string {
	return fmt.Sprintf("%03d.%02d", hz/1000000%1000, hz/10000%100)
}

// WithPreset returns a copy of s that starts sessions on p.
func (s *Setting) WithPreset(p Preset) *Setting {
	c := *s
	c.preset = p
	return &c
}

// Preset returns the preset a fresh session starts on.
func (s *Setting) Preset() Preset {
	return s.preset
}
