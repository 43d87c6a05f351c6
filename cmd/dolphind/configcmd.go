package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"dolphind/internal/config"
)

// errInvalidConfig is returned by "config check" when errors were found.
var errInvalidConfig = errors.New("configuration has errors")

// cmdConfig prints, creates or validates the configuration.
func cmdConfig(args []string, out io.Writer) error {
	action := "show"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		action, args = args[0], args[1:]
	}

	fs := newFlagSet("config "+action, out)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	switch action {
	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		text, err := encodeConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# %s\n%s", path, text)
		return nil

	case "init":
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
		} else {
			fmt.Fprintf(out, "Configuration already exists at %s\n", path)
		}
		return nil

	case "check":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		issues := config.Check(cfg)
		for _, w := range issues.Warnings() {
			fmt.Fprintf(out, "warning: %s\n", w.Error())
		}
		for _, e := range issues.Errors() {
			fmt.Fprintf(out, "error: %s\n", e.Error())
		}
		if issues.HasErrors() {
			return errInvalidConfig
		}
		fmt.Fprintf(out, "%s: ok\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config action %q (want show, init or check)", action)
	}
}

// encodeConfig renders cfg as TOML.
func encodeConfig(cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return buf.String(), nil
}
