package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
	"github.com/sparkbox-kiosk/sparkbox/internal/camera"
	"github.com/sparkbox-kiosk/sparkbox/internal/input"
	"github.com/sparkbox-kiosk/sparkbox/internal/pipeline"
	"github.com/sparkbox-kiosk/sparkbox/internal/voice"
	"github.com/sparkbox-kiosk/sparkbox/internal/web"
)

// Controls adapts the Supervisor to [input.Controls]: button edges are
// fire-and-forget, so errors are logged rather than returned.
type Controls struct {
	s *Supervisor
}

func (c Controls) Mode() input.Mode { return c.s.Mode() }

func (c Controls) Capture() {
	if err := c.s.Snapshot(); err != nil {
		c.s.log.Warn("capture rejected", "error", err)
	}
}

func (c Controls) Reset() { c.s.Reset() }

func (c Controls) EnterVoice() {
	if err := c.s.enterVoice(); err != nil {
		c.s.log.Warn("enter voice rejected", "error", err)
	}
}

func (c Controls) StartVoice() {
	if err := c.s.StartVoice(); err != nil {
		c.s.log.Warn("voice start rejected", "error", err)
	}
}

func (c Controls) StopVoice() {
	if err := c.s.StopVoice(); err != nil {
		c.s.log.Warn("voice stop rejected", "error", err)
	}
}

func (c Controls) Page(delta int) { c.s.Page(delta) }

// ---- web.Backend -----------------------------------------------------------

// Bus returns the station event stream.
func (s *Supervisor) Bus() *bus.Bus { return s.bus }

// Result returns the current project payload.
func (s *Supervisor) Result() (map[string]any, bool) {
	project, ok := s.store.Project()
	if !ok {
		return nil, false
	}
	return project.Payload(), true
}

// CameraOnline reports whether frames are flowing.
func (s *Supervisor) CameraOnline() bool { return s.cam.Online() }

// VideoFrame returns the latest annotated JPEG.
func (s *Supervisor) VideoFrame() ([]byte, uint64, bool) { return s.cam.LatestJPEG() }

// Snapshot captures the current frame and starts the analysis pipeline.
func (s *Supervisor) Snapshot() error {
	if !s.cam.Online() {
		return web.ErrCameraOffline
	}
	frame, ok := s.cam.LatestFrame()
	if !ok {
		return web.ErrNoFrame
	}
	if s.sched.Busy() {
		s.publish(bus.StateError, pipeline.MsgBusy, nil)
		return web.ErrBusy
	}

	path, err := s.saveCapture(frame)
	if err != nil {
		return err
	}

	// The mode flips before the job launches so a fast pipeline cannot have
	// its completion mode overwritten by this submission path.
	prev := s.Mode()
	s.setMode(input.ModeProcessing)
	s.cam.SetStatus(camera.Status{Text: "Processing...", Color: camera.StatusYellow})
	accepted := s.sched.TryCapture(context.Background(), path, func(jobErr error) {
		if jobErr != nil {
			s.setMode(input.ModeIdle)
			s.cam.SetStatus(camera.Status{Text: "Ready", Color: camera.StatusGreen})
			return
		}
		s.setMode(input.ModeResult)
		s.cam.SetStatus(camera.Status{Text: "Complete", Color: camera.StatusGreen})
	})
	if !accepted {
		s.setMode(prev)
		s.publish(bus.StateError, pipeline.MsgBusy, nil)
		return web.ErrBusy
	}
	return nil
}

// Reset discards the current result and conversation, returning to idle.
func (s *Supervisor) Reset() {
	s.store.Clear()
	s.setMode(input.ModeIdle)
	s.cam.SetStatus(camera.Status{Text: "Ready", Color: camera.StatusGreen})
	s.publish(bus.StateControl, "Reset", map[string]any{"action": "reset"})
	s.publish(bus.StateReady, "", nil)
}

// enterVoice switches a shown result into the voice dialogue.
func (s *Supervisor) enterVoice() error {
	if s.Mode() != input.ModeResult {
		return fmt.Errorf("station: cannot enter voice from mode %q", s.Mode())
	}
	s.setMode(input.ModeVoice)
	s.publish(bus.StateControl, "Enter Voice", map[string]any{"action": "enter_voice"})
	return nil
}

// StartVoice begins one push-to-talk recording. From a shown result it
// enters voice mode first, which keeps HTTP clients to a single call.
// Recording without a project is allowed; the chat job answers such a
// transcript with the no-project notice.
func (s *Supervisor) StartVoice() error {
	switch s.Mode() {
	case input.ModeResult:
		if err := s.enterVoice(); err != nil {
			return err
		}
	case input.ModeProcessing:
		return fmt.Errorf("station: cannot record in mode %q", s.Mode())
	}
	if err := s.recorder.Start(context.Background()); err != nil {
		return err
	}
	s.publish(bus.StateVoiceRecording, msgRecording, nil)
	s.cam.SetStatus(camera.Status{Text: "REC", Color: camera.StatusRed, Recording: true})
	return nil
}

// StopVoice ends the recording and submits it for transcription and
// refinement in the background.
func (s *Supervisor) StopVoice() error {
	rec, err := s.recorder.Stop()
	s.cam.SetStatus(camera.Status{Text: "Voice", Color: camera.StatusGreen})
	if err != nil {
		if errors.Is(err, voice.ErrNoAudio) {
			s.publish(bus.StateVoiceError, msgNoSpeech, nil)
			return nil
		}
		return err
	}

	s.publish(bus.StateVoiceProcessing, "", nil)
	go s.submitUtterance(rec)
	return nil
}

// submitUtterance transcribes one recording and hands the text to the chat
// job. Runs outside the request path; all failures surface as events.
func (s *Supervisor) submitUtterance(rec voice.Recording) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	text, err := s.transcriber.Transcribe(ctx, rec.Path)
	s.metrics.RecordStage(ctx, "transcribe", time.Since(start).Seconds(), err)
	if err != nil {
		if errors.Is(err, voice.ErrNoSpeech) {
			s.publish(bus.StateVoiceError, msgNoSpeech, nil)
		} else {
			s.publish(bus.StateVoiceError, err.Error(), nil)
		}
		return
	}

	s.sched.TryChat(context.Background(), text, func(jobErr error) {
		if jobErr == nil {
			s.setMode(input.ModeResult)
		}
	})
}

// Page publishes a result navigation event for the browser view.
func (s *Supervisor) Page(delta int) {
	action := "next"
	message := "Page Down"
	if delta < 0 {
		action = "prev"
		message = "Page Up"
	}
	s.publish(bus.StateControl, message, map[string]any{"action": action})
}

// Quit initiates a clean shutdown.
func (s *Supervisor) Quit() {
	s.log.Info("quit requested")
	if s.cancel != nil {
		s.cancel()
	}
}
