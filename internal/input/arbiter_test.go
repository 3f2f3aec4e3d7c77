package input

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeControls records the commands the arbiter issued.
type fakeControls struct {
	mode     Mode
	captures int
	resets   int
	enters   int
	starts   int
	stops    int
	pages    []int
}

func (f *fakeControls) Mode() Mode     { return f.mode }
func (f *fakeControls) Capture()       { f.captures++ }
func (f *fakeControls) Reset()         { f.resets++ }
func (f *fakeControls) EnterVoice()    { f.enters++; f.mode = ModeVoice }
func (f *fakeControls) StartVoice()    { f.starts++ }
func (f *fakeControls) StopVoice()     { f.stops++ }
func (f *fakeControls) Page(delta int) { f.pages = append(f.pages, delta) }

func newTestArbiter(mode Mode) (*Arbiter, *fakeControls, *fakeClock) {
	ctl := &fakeControls{mode: mode}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	return NewArbiter(ctl, testLogger(), WithClock(clock.now)), ctl, clock
}

func TestCaptureCooldown(t *testing.T) {
	t.Parallel()

	arb, ctl, clock := newTestArbiter(ModeIdle)

	arb.CapturePressed()
	arb.CapturePressed() // inside cooldown
	if ctl.captures != 1 {
		t.Fatalf("captures = %d, want 1", ctl.captures)
	}

	clock.advance(500 * time.Millisecond)
	arb.CapturePressed() // still inside cooldown
	if ctl.captures != 1 {
		t.Fatalf("captures = %d, want 1 after 0.5s", ctl.captures)
	}

	clock.advance(600 * time.Millisecond)
	arb.CapturePressed() // cooldown expired
	if ctl.captures != 2 {
		t.Fatalf("captures = %d, want 2 after 1.1s", ctl.captures)
	}
}

func TestCaptureInResultModeResets(t *testing.T) {
	t.Parallel()

	arb, ctl, clock := newTestArbiter(ModeResult)

	arb.CapturePressed()
	if ctl.resets != 1 || ctl.captures != 0 {
		t.Fatalf("resets = %d, captures = %d; want reset only", ctl.resets, ctl.captures)
	}

	// The refractory window blocks an immediate re-capture after reset.
	ctl.mode = ModeIdle
	clock.advance(1500 * time.Millisecond)
	arb.CapturePressed()
	if ctl.captures != 0 {
		t.Fatalf("captures = %d inside refractory window, want 0", ctl.captures)
	}

	clock.advance(600 * time.Millisecond)
	arb.CapturePressed()
	if ctl.captures != 1 {
		t.Fatalf("captures = %d after refractory, want 1", ctl.captures)
	}
}

func TestCaptureIgnoredInVoiceMode(t *testing.T) {
	t.Parallel()

	arb, ctl, _ := newTestArbiter(ModeVoice)
	arb.CapturePressed()
	if ctl.captures != 0 || ctl.resets != 0 {
		t.Errorf("captures = %d, resets = %d; want no action", ctl.captures, ctl.resets)
	}
}

func TestCaptureForwardedWhileProcessing(t *testing.T) {
	t.Parallel()

	// The press reaches the supervisor, which rejects it with a busy event.
	arb, ctl, _ := newTestArbiter(ModeProcessing)
	arb.CapturePressed()
	if ctl.captures != 1 || ctl.resets != 0 {
		t.Errorf("captures = %d, resets = %d; want forwarded capture", ctl.captures, ctl.resets)
	}
}

func TestVideoEntersVoiceThenRecordsAfterRelease(t *testing.T) {
	t.Parallel()

	arb, ctl, _ := newTestArbiter(ModeResult)

	// First press enters voice mode.
	arb.VideoPressed()
	if ctl.enters != 1 {
		t.Fatalf("enters = %d, want 1", ctl.enters)
	}

	// Holding the same press must not start a recording.
	arb.VideoPressed()
	if ctl.starts != 0 {
		t.Fatalf("starts = %d before release, want 0", ctl.starts)
	}

	// Releasing the entering press must not stop anything.
	arb.VideoReleased()
	if ctl.stops != 0 {
		t.Fatalf("stops = %d on entering release, want 0", ctl.stops)
	}

	// Now a fresh press/release pair brackets one utterance.
	arb.VideoPressed()
	if ctl.starts != 1 {
		t.Fatalf("starts = %d, want 1", ctl.starts)
	}
	arb.VideoReleased()
	if ctl.stops != 1 {
		t.Fatalf("stops = %d, want 1", ctl.stops)
	}
}

func TestVideoIgnoredOutsideResultAndVoice(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeIdle, ModeProcessing} {
		arb, ctl, _ := newTestArbiter(mode)
		arb.VideoPressed()
		arb.VideoReleased()
		if ctl.enters != 0 || ctl.starts != 0 || ctl.stops != 0 {
			t.Errorf("mode %s: video press had effect", mode)
		}
	}
}

func TestPageButtons(t *testing.T) {
	t.Parallel()

	arb, ctl, _ := newTestArbiter(ModeResult)
	arb.PageUpPressed()
	arb.PageDownPressed()
	arb.PageDownPressed()
	want := []int{-1, 1, 1}
	if len(ctl.pages) != len(want) {
		t.Fatalf("pages = %v, want %v", ctl.pages, want)
	}
	for i := range want {
		if ctl.pages[i] != want[i] {
			t.Errorf("page %d = %d, want %d", i, ctl.pages[i], want[i])
		}
	}
}
