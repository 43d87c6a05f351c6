package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"dolphind/internal/radio"
	"dolphind/internal/subghz"
)

// cmdSimulate replays a capture file through the receiver scene, driving it
// the way the UI would: enter, tick until the replay ends, optionally open
// an entry, then go back.
func cmdSimulate(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("simulate", out)
	configPath := fs.String("config", "", "Path to config file")
	capturesPath := fs.String("captures", "", "JSON Lines capture file to replay")
	hopper := fs.Bool("hopper", false, "Enable the frequency hopper")
	selectIdx := fs.Int("select", -1, "Open history entry n before leaving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *capturesPath == "" {
		return errors.New("-captures is required")
	}

	captures, err := radio.LoadCaptures(*capturesPath)
	if err != nil {
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

	setting, err := cfg.ReceiverSetting()
	if err != nil {
		return err
	}
	history, err := cfg.NewHistory()
	if err != nil {
		return err
	}

	stop := a.startActor(ctx)
	defer stop()

	sim := radio.NewSim(captures, radio.WithLogger(a.logger.WithComponent("radio")))
	view := newConsoleView(out)
	nav := newConsoleNav(out)
	scene := subghz.NewReceiverScene(subghz.SceneConfig{
		Setting:  setting,
		History:  history,
		Radio:    sim,
		Receiver: sim,
		View:     view,
		Notifier: a.notifier,
		Nav:      nav,
		Deeds:    a.actor,
		Logger:   a.logger.WithComponent("receiver"),
		Metrics:  a.rxM,
	})

	fmt.Fprintf(out, "Replaying %d captures from %s\n", len(captures), *capturesPath)
	scene.OnEnter()
	if *hopper || cfg.Receiver.Hopper {
		scene.SetHopper(true)
	}

	if err := replay(ctx, sim, scene, cfg.TickInterval()); err != nil {
		return err
	}

	if *selectIdx >= 0 {
		if *selectIdx >= history.Len() {
			return fmt.Errorf("-select %d: history has %d entries", *selectIdx, history.Len())
		}
		view.SetMenuIndex(*selectIdx)
		scene.OnEvent(subghz.Event{Type: subghz.EventTypeCustom, Custom: subghz.EventOK})
		// Returning from the info scene re-enters the receiver.
		scene.OnEnter()
	}

	snap := scene.Snapshot()
	scene.OnEvent(subghz.Event{Type: subghz.EventTypeCustom, Custom: subghz.EventBack})
	if next, ok := nav.Last(); ok {
		fmt.Fprintf(out, "Left receiver to %s\n", next)
	}

	printHistory(out, snap.Entries)
	if next, _ := nav.Last(); next == subghz.SceneNeedSaving {
		// Nothing here can save a capture, so exit the way need-saving does.
		scene.Discard()
		fmt.Fprintf(out, "Discarded %d captures\n", len(snap.Entries))
	}
	st := sim.Stats()
	fmt.Fprintf(out, "\nDelivered %d, missed %d, decoder resets %d\n", st.Delivered, st.Missed, st.Resets)

	fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.actor.Flush(fctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	stats, err := a.actor.Stats(fctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	fmt.Fprintf(out, "Dolphin level %d, experience %d\n", stats.Level, stats.Icounter)
	return nil
}

// replay runs the simulator and ticks the scene until every capture was
// delivered, then ticks once more so the last capture's cue plays.
func replay(ctx context.Context, sim *radio.Sim, scene *subghz.ReceiverScene, tick time.Duration) error {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			scene.OnTick()
			return err
		case <-ticker.C:
			scene.OnEvent(subghz.Event{Type: subghz.EventTypeTick})
		}
	}
}

func printHistory(out io.Writer, entries []subghz.HistoryEntry) {
	fmt.Fprintf(out, "\nHistory (%d):\n", len(entries))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, e := range entries {
		fmt.Fprintf(tw, "  %02d\t%s\t%s\t%s\t%s\n", i, e.MenuText, e.Type, subghz.FrequencyText(e.Frequency), e.Preset)
	}
	tw.Flush()
}
