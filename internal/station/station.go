// Package station wires the camera, detector, pipeline, voice recorder, and
// HTTP surface into the kiosk's mode machine and owns startup and shutdown.
package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
	"github.com/sparkbox-kiosk/sparkbox/internal/camera"
	"github.com/sparkbox-kiosk/sparkbox/internal/canvas"
	"github.com/sparkbox-kiosk/sparkbox/internal/config"
	"github.com/sparkbox-kiosk/sparkbox/internal/convo"
	"github.com/sparkbox-kiosk/sparkbox/internal/input"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
	"github.com/sparkbox-kiosk/sparkbox/internal/pipeline"
	"github.com/sparkbox-kiosk/sparkbox/internal/voice"
	"github.com/sparkbox-kiosk/sparkbox/internal/web"
)

// User-facing voice status strings.
const (
	msgRecording = "正在录音..."
	msgNoSpeech  = "未识别到语音"
)

// Supervisor is the station's top-level coordinator. It owns the mode
// machine and implements [web.Backend]; [Controls] adapts it for the input
// arbiter.
type Supervisor struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	bus         *bus.Bus
	store       *convo.Store
	cam         *camera.Camera
	detector    *canvas.Detector
	sched       *pipeline.Scheduler
	recorder    *voice.Recorder
	transcriber *voice.Transcriber
	arb         *input.Arbiter
	buttons     *input.Buttons
	web         *web.Server

	captureDir string
	tempDir    string

	mode      atomic.Value // input.Mode
	readyOnce sync.Once
	cancel    context.CancelFunc

	closeOnce sync.Once
	closers   []func() error
}

// New builds the full station from configuration. Options replace hardware
// and network dependencies in tests.
func New(cfg *config.Config, metrics *observe.Metrics, log *slog.Logger, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		bus:     bus.New(),
	}
	s.mode.Store(input.ModeIdle)

	s.captureDir = filepath.Join(cfg.Logs.Dir, "capture")
	s.tempDir = filepath.Join(cfg.Logs.Dir, "temp")
	for _, dir := range []string{s.captureDir, s.tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("station: create %q: %w", dir, err)
		}
	}

	store, err := convo.NewStore(filepath.Join(cfg.Logs.Dir, "ai_logs"))
	if err != nil {
		return nil, err
	}
	s.store = store

	var intr *canvas.Intrinsics
	if cfg.Camera.Intrinsics != "" {
		intr, err = canvas.LoadIntrinsics(cfg.Camera.Intrinsics)
		if err != nil {
			return nil, err
		}
	}
	s.detector = canvas.NewDetector(intr)

	o := options{
		stages: defaultStages(cfg),
		cameraOpts: []camera.Option{
			camera.WithAnnotator(s.annotate),
			camera.WithExitHandler(s.onCameraExit),
			camera.WithFrameHook(func() { s.metrics.Frames.Add(context.Background(), 1) }),
		},
		recorderOpts: nil,
		transcriber:  voice.NewTranscriber(cfg.Voice),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s.sched = pipeline.New(s.bus, s.store, metrics, log, o.stages)
	s.cam = camera.New(cfg.Camera, log, o.cameraOpts...)
	s.recorder = voice.NewRecorder(cfg.Voice.RecorderFile, log, o.recorderOpts...)
	s.transcriber = o.transcriber
	s.arb = input.NewArbiter(Controls{s}, log)
	s.buttons = input.NewButtons(s.arb, cfg.IO, metrics, log)
	s.web = web.New(cfg.Server.ListenAddr, s, metrics, log)
	return s, nil
}

// options collects the replaceable dependencies.
type options struct {
	stages       pipeline.Stages
	cameraOpts   []camera.Option
	recorderOpts []voice.Option
	transcriber  *voice.Transcriber
}

// Option replaces a hardware or network dependency.
type Option func(*options)

// WithStages replaces the remote model calls.
func WithStages(st pipeline.Stages) Option {
	return func(o *options) { o.stages = st }
}

// WithCameraOptions appends camera options (e.g. a test frame source).
func WithCameraOptions(opts ...camera.Option) Option {
	return func(o *options) { o.cameraOpts = append(o.cameraOpts, opts...) }
}

// WithRecorderOptions appends recorder options.
func WithRecorderOptions(opts ...voice.Option) Option {
	return func(o *options) { o.recorderOpts = append(o.recorderOpts, opts...) }
}

// WithTranscriber replaces the speech endpoint client.
func WithTranscriber(tr *voice.Transcriber) Option {
	return func(o *options) { o.transcriber = tr }
}

// defaultStages binds the pipeline to the configured remote agents.
func defaultStages(cfg *config.Config) pipeline.Stages {
	vision := ai.NewVisionAgent(cfg.Vision)
	solution := ai.NewSolutionAgent(cfg.SolutionGenerator)
	preview := ai.NewPreviewAgent(cfg.ImageGenerator)
	return pipeline.Stages{
		Vision:     vision.Analyze,
		Solution:   solution.Generate,
		Chat:       solution.Chat,
		PreviewURL: preview.BuildURL,
		Prefetch:   preview.Prefetch,
	}
}

// Run starts all components and blocks until ctx is cancelled or a fatal
// component failure occurs, then shuts everything down in order.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	if err := s.cam.Start(ctx); err != nil {
		return err
	}
	s.closers = append(s.closers, func() error { s.cam.Stop(); return nil })

	if err := s.buttons.Start(ctx); err != nil {
		return err
	}
	s.closers = append(s.closers, func() error { s.buttons.Stop(); return nil })
	s.closers = append(s.closers, func() error {
		if !s.recorder.Recording() {
			return nil
		}
		_, err := s.recorder.Stop()
		if errors.Is(err, voice.ErrNoAudio) {
			return nil
		}
		return err
	})

	s.web.BaseContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.web.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.web.Shutdown(shutCtx)
	})

	err := g.Wait()
	s.shutdown()
	return err
}

// shutdown runs the ordered closers once and clears transient artifacts.
func (s *Supervisor) shutdown() {
	s.closeOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				s.log.Warn("closer failed", "error", err)
			}
		}
		s.sched.Wait()
		s.cleanTempDir()
		s.log.Info("station stopped")
	})
}

// cleanTempDir removes transient pipeline inputs on a clean exit. The
// capture directory keeps its snapshots.
func (s *Supervisor) cleanTempDir() {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.tempDir, e.Name())); err != nil {
			s.log.Warn("could not remove temp file", "name", e.Name(), "error", err)
		}
	}
}

// annotate runs detection on each frame and publishes the ready event once
// the first frame has arrived.
func (s *Supervisor) annotate(frame *image.RGBA) *image.RGBA {
	s.readyOnce.Do(func() {
		s.publish(bus.StateReady, "", nil)
		s.cam.SetStatus(camera.Status{Text: "Ready", Color: camera.StatusGreen})
	})
	return s.detector.Process(frame).Annotated
}

// onCameraExit escalates an unexpected camera death to a full shutdown; the
// kiosk is useless without frames and the service manager restarts it.
func (s *Supervisor) onCameraExit(err error) {
	if err != nil {
		s.log.Error("camera failed, shutting down", "error", err)
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) publish(state bus.State, message string, data map[string]any) {
	s.metrics.RecordEvent(context.Background(), string(state))
	s.bus.Publish(bus.Event{State: state, Message: message, Data: data})
}

func (s *Supervisor) setMode(m input.Mode) {
	s.mode.Store(m)
}

// Mode returns the current interaction mode.
func (s *Supervisor) Mode() input.Mode {
	return s.mode.Load().(input.Mode)
}

// saveCapture rectifies the frame and writes it to both the permanent
// capture directory and the transient pipeline input directory. Returns the
// transient path the pipeline reads.
func (s *Supervisor) saveCapture(frame *image.RGBA) (string, error) {
	rectified, ok := s.detector.Rectify(frame)
	if !ok {
		s.log.Warn("no canvas detected, using raw frame")
	}

	name := "capture_" + time.Now().Format("20060102_150405") + ".jpg"
	keepPath := filepath.Join(s.captureDir, name)
	if err := writeJPEG(keepPath, rectified); err != nil {
		return "", err
	}
	tempPath := filepath.Join(s.tempDir, name)
	if err := writeJPEG(tempPath, rectified); err != nil {
		return "", err
	}
	return tempPath, nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("station: create %q: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return fmt.Errorf("station: encode %q: %w", path, err)
	}
	return f.Close()
}
