package radio

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"dolphind/internal/subghz"
)

//go:embed capture.schema.json
var captureSchemaJSON []byte

const captureSchemaURL = "capture-v1.schema.json"

var captureSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(captureSchemaURL, bytes.NewReader(captureSchemaJSON)); err != nil {
		panic(fmt.Sprintf("radio: add capture schema: %v", err))
	}
	schema, err := compiler.Compile(captureSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("radio: compile capture schema: %v", err))
	}
	return schema
}

// Capture is one line of a replay file.
type Capture struct {
	Protocol  string  `json:"protocol"`
	Type      string  `json:"type,omitempty"`
	Key       string  `json:"key"`
	Bits      uint8   `json:"bits,omitempty"`
	Frequency uint32  `json:"frequency,omitempty"`
	DelayMS   int     `json:"delay_ms,omitempty"`
	RSSI      float32 `json:"rssi,omitempty"`
	Text      string  `json:"text,omitempty"`
}

// Delay returns the pause before the capture is delivered.
func (c Capture) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// decoded is a Capture after parsing; it implements subghz.Decoder.
type decoded struct {
	protocol string
	typ      subghz.ProtocolType
	key      uint64
	bits     uint8
	text     string
}

func (d *decoded) Protocol() string          { return d.protocol }
func (d *decoded) Type() subghz.ProtocolType { return d.typ }
func (d *decoded) Key() uint64               { return d.key }
func (d *decoded) Bits() uint8               { return d.bits }
func (d *decoded) MenuText() string          { return d.text }

func (c Capture) decode() (*decoded, error) {
	key, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(c.Key), "0x"), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("parse key %q: %w", c.Key, err)
	}
	d := &decoded{protocol: c.Protocol, key: key, bits: c.Bits, text: c.Text}
	switch c.Type {
	case "static", "":
		d.typ = subghz.ProtocolTypeStatic
	case "dynamic":
		d.typ = subghz.ProtocolTypeDynamic
	case "raw":
		d.typ = subghz.ProtocolTypeRAW
	default:
		d.typ = subghz.ProtocolTypeUnknown
	}
	return d, nil
}

// ReadCaptures parses a JSON-lines replay file. Blank lines and lines
// starting with '#' are skipped. Every record is validated against the
// capture schema.
func ReadCaptures(r io.Reader) ([]Capture, error) {
	var out []Capture
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var instance any
		if err := json.Unmarshal([]byte(text), &instance); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := captureSchema.Validate(instance); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var c Capture
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := c.decode(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read captures: %w", err)
	}
	return out, nil
}

// LoadCaptures reads a replay file from disk.
func LoadCaptures(path string) ([]Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open captures: %w", err)
	}
	defer f.Close()
	return ReadCaptures(f)
}
