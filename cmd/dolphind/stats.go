package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"dolphind/internal/config"
	"dolphind/internal/dolphin"
)

// statsView is what "stats -json" prints.
type statsView struct {
	dolphin.Stats
	XPToLevelUp uint32           `json:"xp_to_level_up"`
	DailyLimits map[string]uint8 `json:"daily_limits"`
}

// cmdStats starts the actor against the configured store just long enough
// to read the progression.
func cmdStats(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("stats", out)
	configPath := fs.String("config", "", "Path to config file")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := a.startActor(ctx)
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stats, err := a.actor.Stats(sctx)
	cancel()
	stop()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	view := statsView{
		Stats:       stats,
		XPToLevelUp: dolphin.XPToLevelUp(stats.Icounter),
		DailyLimits: make(map[string]uint8, dolphin.AppCount),
	}
	data, err := a.store.Load(ctx)
	if err != nil && !errors.Is(err, dolphin.ErrNoState) {
		return fmt.Errorf("load state: %w", err)
	}
	for app := dolphin.App(0); app < dolphin.AppCount; app++ {
		view.DailyLimits[app.String()] = data.IcounterDailyLimit[app]
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printStats(out, view)
	return nil
}

func printStats(out io.Writer, v statsView) {
	fmt.Fprintf(out, "Level:       %d\n", v.Level)
	fmt.Fprintf(out, "Experience:  %d\n", v.Icounter)
	if v.LevelUpPending {
		fmt.Fprintln(out, "Level up:    pending")
	} else {
		fmt.Fprintf(out, "To level up: %d\n", v.XPToLevelUp)
	}
	fmt.Fprintf(out, "Butthurt:    %d/%d\n", v.Butthurt, dolphin.ButthurtMax)
	if v.Timestamp > 0 {
		fmt.Fprintf(out, "Last deed:   %s\n", time.Unix(int64(v.Timestamp), 0).Format(time.RFC3339))
	}

	fmt.Fprintln(out, "\nDaily limits:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for app := dolphin.App(0); app < dolphin.AppCount; app++ {
		fmt.Fprintf(tw, "  %s\t%d/%d\n", app, v.DailyLimits[app.String()], app.Limit())
	}
	tw.Flush()
}

// cmdDeeds lists every deed with its app and weight.
func cmdDeeds(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEED\tAPP\tWEIGHT")
	for _, d := range dolphin.Deeds() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d, d.App(), d.Weight())
	}
	tw.Flush()
}

// cmdDeed records deeds through a running daemon.
func cmdDeed(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("deed", out)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Daemon HTTP address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("deed name required; see \"dolphind deeds\"")
	}

	deeds := make([]dolphin.Deed, 0, fs.NArg())
	for _, name := range fs.Args() {
		d, err := dolphin.ParseDeed(name)
		if err != nil {
			return err
		}
		deeds = append(deeds, d)
	}

	c, err := newClient(*configPath, *addr)
	if err != nil {
		return err
	}
	for _, d := range deeds {
		body, _ := json.Marshal(deedRequest{Deed: d.String()})
		if err := c.do(ctx, http.MethodPost, "/v1/deeds", body, nil); err != nil {
			return fmt.Errorf("deed %s: %w", d, err)
		}
		fmt.Fprintf(out, "Recorded %s\n", d)
	}
	return nil
}

// cmdLevelUp applies a pending level up through a running daemon.
func cmdLevelUp(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("level-up", out)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Daemon HTTP address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(*configPath, *addr)
	if err != nil {
		return err
	}
	var stats dolphin.Stats
	if err := c.do(ctx, http.MethodPost, "/v1/level-up", nil, &stats); err != nil {
		return err
	}
	fmt.Fprintf(out, "Level %d, experience %d\n", stats.Level, stats.Icounter)
	return nil
}

// client talks to the daemon's /v1 API.
type client struct {
	base string
	http *http.Client
}

func newClient(configPath, addr string) (*client, error) {
	if addr == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.HTTP.Addr
	}
	return &client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return errors.New(resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
