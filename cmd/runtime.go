package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Sourjya261-BB/Jira-Router/config"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/tui"
)

// cmdRuntime bundles TUI-related state that's threaded through a command.
type cmdRuntime struct {
	useTUI  bool
	events  chan tui.Event
	tuiDone chan error
}

// setupRuntime initializes logging. Commands that show live progress pass
// withTUI; their logs are suppressed while the TUI owns the terminal to avoid
// interleaving with the display.
func setupRuntime(opts *Options, withTUI bool) *cmdRuntime {
	useTUI := withTUI && shouldUseTUI(opts)
	if useTUI {
		log.Initialize(opts.Verbosity, io.Discard)
	} else {
		log.Initialize(opts.Verbosity, os.Stderr)
	}
	return &cmdRuntime{useTUI: useTUI}
}

// startTUI starts the progress display if TUI mode is enabled. onInterrupt is
// called when the user presses Ctrl+C inside the display.
func (rt *cmdRuntime) startTUI(onInterrupt func()) {
	if !rt.useTUI {
		return
	}
	rt.events = make(chan tui.Event, 100)
	rt.tuiDone = make(chan error, 1)
	go func() {
		rt.tuiDone <- tui.Run(rt.events, tui.WithInterrupt(onInterrupt))
	}()
}

// close tells the TUI the run is over, closes the event channel and waits
// for the display to finish.
func (rt *cmdRuntime) close() {
	if rt.events == nil {
		return
	}
	tui.SendEvent(rt.events, tui.DoneEvent{})
	close(rt.events)
	if err := <-rt.tuiDone; err != nil {
		log.Warn("progress display failed", "error", err)
	}
	rt.events = nil
}

// loadConfig resolves the configuration for a command.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
