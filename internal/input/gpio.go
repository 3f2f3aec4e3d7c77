package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
)

// Buttons watches the configured GPIO lines and feeds edges to the arbiter.
// Lines are wired active-low with internal pull-ups; a press reads Low.
type Buttons struct {
	arb     *Arbiter
	cfg     config.IOConfig
	log     *slog.Logger
	metrics *observe.Metrics

	mu   sync.Mutex
	pins []gpio.PinIO
}

// NewButtons creates the GPIO watcher. Buttons with an empty pin name are
// skipped; the HTTP control surface covers them.
func NewButtons(arb *Arbiter, cfg config.IOConfig, metrics *observe.Metrics, log *slog.Logger) *Buttons {
	return &Buttons{arb: arb, cfg: cfg, log: log, metrics: metrics}
}

// Start initialises the host GPIO drivers and spawns one watch goroutine per
// configured line. Watchers stop when ctx is cancelled.
func (b *Buttons) Start(ctx context.Context) error {
	if b.cfg.Capture.Pin == "" && b.cfg.Video.Pin == "" &&
		b.cfg.PgUp.Pin == "" && b.cfg.PgDn.Pin == "" {
		b.log.Info("no GPIO lines configured, physical buttons disabled")
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("input: init gpio host: %w", err)
	}

	lines := []struct {
		name      string
		cfg       config.ButtonConfig
		onPress   func()
		onRelease func()
	}{
		{"capture", b.cfg.Capture, b.arb.CapturePressed, nil},
		{"video", b.cfg.Video, b.arb.VideoPressed, b.arb.VideoReleased},
		{"pgup", b.cfg.PgUp, b.arb.PageUpPressed, nil},
		{"pgdn", b.cfg.PgDn, b.arb.PageDownPressed, nil},
	}
	for _, line := range lines {
		if line.cfg.Pin == "" {
			continue
		}
		pin := gpioreg.ByName(line.cfg.Pin)
		if pin == nil {
			return fmt.Errorf("input: unknown gpio line %q", line.cfg.Pin)
		}
		if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return fmt.Errorf("input: configure %q: %w", line.cfg.Pin, err)
		}
		b.mu.Lock()
		b.pins = append(b.pins, pin)
		b.mu.Unlock()
		b.log.Info("watching button", "line", line.name, "pin", line.cfg.Pin, "mode", string(line.cfg.Mode))
		go b.watch(ctx, line.name, line.cfg, pin, line.onPress, line.onRelease)
	}
	return nil
}

// Stop halts every configured line. Idempotent; the watch goroutines exit
// on their own context.
func (b *Buttons) Stop() {
	b.mu.Lock()
	pins := b.pins
	b.pins = nil
	b.mu.Unlock()

	for _, pin := range pins {
		if err := pin.Halt(); err != nil {
			b.log.Warn("could not halt gpio line", "pin", pin.Name(), "error", err)
		}
	}
}

// watch delivers debounced press and release callbacks for one line.
func (b *Buttons) watch(ctx context.Context, name string, cfg config.ButtonConfig, pin gpio.PinIO, onPress, onRelease func()) {
	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	var lastEdge time.Time
	pressed := false

	for ctx.Err() == nil {
		if !pin.WaitForEdge(500 * time.Millisecond) {
			continue
		}
		now := time.Now()
		if now.Sub(lastEdge) < debounce {
			continue
		}
		lastEdge = now

		level := pin.Read()
		switch {
		case level == gpio.Low && !pressed:
			pressed = true
			b.metrics.RecordButtonPress(ctx, name)
			onPress()
		case level == gpio.High && pressed:
			pressed = false
			if onRelease != nil {
				onRelease()
			}
		}
	}
}
