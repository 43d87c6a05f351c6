package main

import (
	"fmt"
	"io"
	"sync"

	"dolphind/internal/subghz"
)

// consoleView renders the receiver screen as log lines and keeps the menu
// so the caller can pick an entry.
type consoleView struct {
	mu        sync.Mutex
	out       io.Writer
	items     []string
	index     int
	statusBar [3]string
}

func newConsoleView(out io.Writer) *consoleView {
	return &consoleView{out: out}
}

func (v *consoleView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = v.items[:0]
	v.index = 0
}

func (v *consoleView) AddItem(text string, t subghz.ProtocolType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = append(v.items, text)
	fmt.Fprintf(v.out, "  + [%02d] %-7s %s\n", len(v.items)-1, t, text)
}

func (v *consoleView) SetStatusBar(frequency, modulation, history string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bar := [3]string{frequency, modulation, history}
	if bar == v.statusBar {
		return
	}
	v.statusBar = bar
	fmt.Fprintf(v.out, "  | %s %s %s\n", frequency, modulation, history)
}

func (v *consoleView) SetMenuIndex(i int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i >= 0 && i < len(v.items) {
		v.index = i
	}
}

func (v *consoleView) MenuIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.index
}

// Items returns the menu lines.
func (v *consoleView) Items() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.items...)
}

// consoleNav records navigation intents.
type consoleNav struct {
	mu     sync.Mutex
	out    io.Writer
	scenes []subghz.SceneID
	views  []subghz.ViewID
}

func newConsoleNav(out io.Writer) *consoleNav {
	return &consoleNav{out: out}
}

func (n *consoleNav) SwitchToView(id subghz.ViewID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, id)
}

func (n *consoleNav) NextScene(id subghz.SceneID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scenes = append(n.scenes, id)
	fmt.Fprintf(n.out, "  -> %s\n", id)
}

func (n *consoleNav) SearchAndSwitchToPrevious(id subghz.SceneID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scenes = append(n.scenes, id)
	fmt.Fprintf(n.out, "  <- %s\n", id)
	return true
}

// Last returns the most recent scene intent.
func (n *consoleNav) Last() (subghz.SceneID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.scenes) == 0 {
		return 0, false
	}
	return n.scenes[len(n.scenes)-1], true
}
