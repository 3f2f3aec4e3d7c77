// Package camera captures frames from a V4L2 webcam through an ffmpeg
// subprocess and keeps the latest raw and annotated frames available for
// the capture pipeline and the browser video feed.
package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// Annotator turns a raw frame into the frame shown on the video feed. The
// returned image may be the input itself.
type Annotator func(*image.RGBA) *image.RGBA

// jpegFrame pairs encoded bytes with a sequence number so feed consumers can
// skip frames they have already sent.
type jpegFrame struct {
	data []byte
	seq  uint64
}

// Camera owns the capture subprocess. Frame access is lock-free through
// atomic slots; Start and Stop must not be called concurrently.
type Camera struct {
	cfg      config.CameraConfig
	log      *slog.Logger
	annotate Annotator
	onExit   func(error)
	onFrame  func()
	source   io.ReadCloser // test double; replaces the ffmpeg pipe when set

	latestRaw  atomic.Pointer[image.RGBA]
	latestJPEG atomic.Pointer[jpegFrame]
	overlay    atomic.Pointer[Status]
	online     atomic.Bool
	seq        atomic.Uint64

	cmd      *exec.Cmd
	stopOnce sync.Once
}

// Option configures optional Camera behaviour.
type Option func(*Camera)

// WithAnnotator installs the per-frame annotation hook.
func WithAnnotator(fn Annotator) Option {
	return func(c *Camera) { c.annotate = fn }
}

// WithExitHandler installs a callback invoked once when the capture stream
// ends, with the subprocess error if it failed.
func WithExitHandler(fn func(error)) Option {
	return func(c *Camera) { c.onExit = fn }
}

// WithFrameHook installs a callback invoked for every decoded frame.
func WithFrameHook(fn func()) Option {
	return func(c *Camera) { c.onFrame = fn }
}

// WithSource replaces the ffmpeg subprocess with an arbitrary MJPEG stream.
func WithSource(r io.ReadCloser) Option {
	return func(c *Camera) { c.source = r }
}

// New creates a Camera for cfg. Call Start to begin capturing.
func New(cfg config.CameraConfig, log *slog.Logger, opts ...Option) *Camera {
	c := &Camera{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the capture stream and returns once frames are flowing in
// the background. The stream ends when ctx is cancelled, Stop is called, or
// the subprocess dies; the exit handler fires in all three cases.
func (c *Camera) Start(ctx context.Context) error {
	if c.source != nil {
		c.online.Store(true)
		go func() {
			err := c.readLoop(ctx, c.source)
			c.online.Store(false)
			c.exit(err)
		}()
		return nil
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("camera: ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", c.ffmpegArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("camera: start ffmpeg: %w", err)
	}
	c.cmd = cmd
	c.online.Store(true)
	c.log.Info("camera started",
		"device", fmt.Sprintf("/dev/video%d", c.cfg.DeviceID),
		"size", fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
		"fps", c.cfg.FPS)

	go func() {
		readErr := c.readLoop(ctx, stdout)
		waitErr := cmd.Wait()
		c.online.Store(false)
		if waitErr != nil && ctx.Err() == nil {
			c.exit(fmt.Errorf("camera: ffmpeg exited: %w", waitErr))
			return
		}
		c.exit(readErr)
	}()
	return nil
}

// Stop terminates the capture subprocess.
func (c *Camera) Stop() {
	c.online.Store(false)
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	if c.source != nil {
		_ = c.source.Close()
	}
}

// Online reports whether the capture stream is currently delivering frames.
func (c *Camera) Online() bool {
	return c.online.Load()
}

// LatestFrame returns the most recent raw frame, or false before the first
// frame arrives.
func (c *Camera) LatestFrame() (*image.RGBA, bool) {
	f := c.latestRaw.Load()
	if f == nil {
		return nil, false
	}
	return f, true
}

// LatestJPEG returns the most recent annotated frame as JPEG bytes together
// with its sequence number.
func (c *Camera) LatestJPEG() ([]byte, uint64, bool) {
	f := c.latestJPEG.Load()
	if f == nil {
		return nil, 0, false
	}
	return f.data, f.seq, true
}

// SetStatus replaces the overlay drawn onto the video feed.
func (c *Camera) SetStatus(s Status) {
	c.overlay.Store(&s)
}

func (c *Camera) readLoop(ctx context.Context, r io.Reader) error {
	scanner := newFrameScanner(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := scanner.next()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("camera: read stream: %w", err)
		}

		frame, err := decodeRGBA(data)
		if err != nil {
			c.log.Debug("dropping undecodable frame", "error", err)
			continue
		}
		c.latestRaw.Store(frame)

		annotated := frame
		if c.annotate != nil {
			annotated = c.annotate(frame)
		}
		if s := c.overlay.Load(); s != nil {
			annotated = drawOverlay(annotated, *s)
		}
		encoded, err := encodeJPEG(annotated)
		if err != nil {
			c.log.Debug("dropping unencodable frame", "error", err)
			continue
		}
		c.latestJPEG.Store(&jpegFrame{data: encoded, seq: c.seq.Add(1)})
		if c.onFrame != nil {
			c.onFrame()
		}
	}
}

func (c *Camera) exit(err error) {
	c.stopOnce.Do(func() {
		if err != nil {
			c.log.Error("camera stream ended", "error", err)
		} else {
			c.log.Info("camera stream ended")
		}
		if c.onExit != nil {
			c.onExit(err)
		}
	})
}

func (c *Camera) ffmpegArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", fmt.Sprintf("%d", c.cfg.FPS),
		"-video_size", fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
		"-i", fmt.Sprintf("/dev/video%d", c.cfg.DeviceID),
		"-an",
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	}
}

// decodeRGBA decodes JPEG bytes into a zero-origin RGBA frame.
func decodeRGBA(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(newByteReader(data))
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == image.Pt(0, 0) {
		return rgba, nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}
