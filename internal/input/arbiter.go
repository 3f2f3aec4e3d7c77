// Package input arbitrates physical button and HTTP control actions into
// station commands, enforcing the debounce windows that keep a nervous
// finger from double-firing the pipeline.
package input

import (
	"log/slog"
	"sync"
	"time"
)

// Mode is the station's coarse interaction state.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeProcessing Mode = "processing"
	ModeResult     Mode = "result"
	ModeVoice      Mode = "voice"
)

// Controls is the command surface the arbiter drives, implemented by the
// station supervisor. The same surface backs the HTTP endpoints so physical
// and remote inputs share one set of rules.
type Controls interface {
	Mode() Mode

	// Capture starts the sketch pipeline from the current frame.
	Capture()

	// Reset discards the current result and returns to idle.
	Reset()

	// EnterVoice switches a shown result into the voice dialogue.
	EnterVoice()

	// StartVoice and StopVoice bracket one push-to-talk utterance.
	StartVoice()
	StopVoice()

	// Page moves the result view by delta pages (-1 previous, +1 next).
	Page(delta int)
}

const (
	// captureCooldown is the minimum spacing between capture activations.
	captureCooldown = time.Second

	// resetRefractory blocks capture activations after a reset, long enough
	// for the user to lift a held button.
	resetRefractory = 2 * time.Second
)

// Arbiter routes raw button edges to Controls. Safe for concurrent use.
type Arbiter struct {
	ctl Controls
	log *slog.Logger
	now func() time.Time

	mu              sync.Mutex
	lastCapture     time.Time
	refractoryUntil time.Time
	awaitingRelease bool
}

// Option configures optional Arbiter behaviour.
type Option func(*Arbiter)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// NewArbiter creates an Arbiter driving ctl.
func NewArbiter(ctl Controls, log *slog.Logger, opts ...Option) *Arbiter {
	a := &Arbiter{ctl: ctl, log: log, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CapturePressed handles one activation of the capture line. In result mode
// the same button resets back to idle; otherwise it starts a capture.
// Activations inside the cooldown or refractory windows are dropped.
func (a *Arbiter) CapturePressed() {
	now := a.now()

	a.mu.Lock()
	if now.Before(a.refractoryUntil) {
		a.mu.Unlock()
		a.log.Debug("capture ignored inside refractory window")
		return
	}
	if !a.lastCapture.IsZero() && now.Sub(a.lastCapture) < captureCooldown {
		a.mu.Unlock()
		a.log.Debug("capture ignored inside cooldown")
		return
	}
	a.lastCapture = now
	mode := a.ctl.Mode()
	if mode == ModeResult {
		a.refractoryUntil = now.Add(resetRefractory)
	}
	a.mu.Unlock()

	switch mode {
	case ModeResult:
		a.ctl.Reset()
	case ModeVoice:
		a.log.Debug("capture ignored", "mode", string(mode))
	default:
		// Idle starts a capture; Processing lets the supervisor reject it
		// with the busy notice.
		a.ctl.Capture()
	}
}

// VideoPressed handles a press of the video/talk line. On a shown result it
// enters voice mode; in voice mode it begins recording. The press that
// entered voice mode must be released before a recording can start.
func (a *Arbiter) VideoPressed() {
	switch a.ctl.Mode() {
	case ModeResult:
		a.mu.Lock()
		a.awaitingRelease = true
		a.mu.Unlock()
		a.ctl.EnterVoice()
	case ModeVoice:
		a.mu.Lock()
		waiting := a.awaitingRelease
		a.mu.Unlock()
		if waiting {
			return
		}
		a.ctl.StartVoice()
	}
}

// VideoReleased handles release of the video/talk line, ending a recording
// in progress.
func (a *Arbiter) VideoReleased() {
	a.mu.Lock()
	waiting := a.awaitingRelease
	a.awaitingRelease = false
	a.mu.Unlock()
	if waiting {
		return
	}
	if a.ctl.Mode() == ModeVoice {
		a.ctl.StopVoice()
	}
}

// PageUpPressed moves to the previous result page.
func (a *Arbiter) PageUpPressed() {
	a.ctl.Page(-1)
}

// PageDownPressed moves to the next result page.
func (a *Arbiter) PageDownPressed() {
	a.ctl.Page(1)
}
