// Package voice records push-to-talk audio from the default input device and
// transcribes it through an OpenAI-compatible speech endpoint.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	// preferredRate is the capture rate the speech endpoint expects.
	preferredRate = 16000

	// fallbackRate is tried when the device rejects 16 kHz. USB webcam mics
	// commonly only expose 44.1 kHz.
	fallbackRate = 44100

	framesPerChunk = 1024
)

// ErrAlreadyRecording is returned by Start while a recording is in progress.
var ErrAlreadyRecording = errors.New("voice: already recording")

// ErrNotRecording is returned by Stop with no recording in progress.
var ErrNotRecording = errors.New("voice: not recording")

// ErrNoAudio is returned by Stop when the capture produced no samples.
var ErrNoAudio = errors.New("voice: no audio captured")

// Stream is one open capture stream delivering PCM chunks.
type Stream interface {
	// Read fills buf with the next framesPerChunk samples, blocking until
	// they are available.
	Read(buf []int16) error
	Close() error
}

// StreamOpener opens a mono 16-bit capture stream at the given sample rate.
type StreamOpener func(sampleRate, framesPerBuffer int) (Stream, error)

// Recording is the artifact of one completed push-to-talk capture.
type Recording struct {
	Path       string
	SampleRate int
	Duration   time.Duration
}

// Recorder captures one utterance at a time between Start and Stop calls and
// writes it to a WAV file. Safe for concurrent use.
type Recorder struct {
	log  *slog.Logger
	path string
	open StreamOpener

	mu        sync.Mutex
	recording bool
	stream    Stream
	rate      int
	stop      chan struct{}
	done      chan struct{}
	pcm       []int16
}

// Option configures optional Recorder behaviour.
type Option func(*Recorder)

// WithStreamOpener replaces the audio device, for tests.
func WithStreamOpener(open StreamOpener) Option {
	return func(r *Recorder) { r.open = open }
}

// NewRecorder creates a Recorder writing its capture to path.
func NewRecorder(path string, log *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{log: log, path: path, open: openDeviceStream}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the input device and begins capturing. The previous capture
// file is removed so a failed session cannot resubmit stale audio.
func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		r.log.Warn("could not remove previous recording", "path", r.path, "error", err)
	}

	rate := preferredRate
	stream, err := r.open(rate, framesPerChunk)
	if err != nil {
		r.log.Warn("16 kHz capture unavailable, falling back", "rate", fallbackRate, "error", err)
		rate = fallbackRate
		stream, err = r.open(rate, framesPerChunk)
		if err != nil {
			return fmt.Errorf("voice: open input stream: %w", err)
		}
	}

	r.recording = true
	r.stream = stream
	r.rate = rate
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.pcm = r.pcm[:0]

	go r.captureLoop(stream, r.stop, r.done)
	r.log.Info("recording started", "rate", rate)
	return nil
}

// captureLoop owns the pcm buffer until done is closed; Stop waits on done
// before touching it.
func (r *Recorder) captureLoop(stream Stream, stop, done chan struct{}) {
	defer close(done)
	buf := make([]int16, framesPerChunk)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := stream.Read(buf); err != nil {
			r.log.Warn("capture read failed", "error", err)
			return
		}
		r.pcm = append(r.pcm, buf...)
	}
}

// Stop ends the capture, writes the WAV file, and returns the recording.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return Recording{}, ErrNotRecording
	}
	r.recording = false

	close(r.stop)
	if err := r.stream.Close(); err != nil {
		r.log.Warn("closing capture stream", "error", err)
	}
	<-r.done
	r.stream = nil

	if len(r.pcm) == 0 {
		return Recording{}, ErrNoAudio
	}

	wav := encodeWAV(r.pcm, r.rate, 1)
	if err := os.WriteFile(r.path, wav, 0o644); err != nil {
		return Recording{}, fmt.Errorf("voice: write %q: %w", r.path, err)
	}

	rec := Recording{
		Path:       r.path,
		SampleRate: r.rate,
		Duration:   time.Duration(len(r.pcm)) * time.Second / time.Duration(r.rate),
	}
	r.log.Info("recording stopped", "duration", rec.Duration, "samples", len(r.pcm))
	return rec, nil
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}
