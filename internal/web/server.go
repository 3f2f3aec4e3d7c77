// Package web serves the kiosk browser UI: the control API, the server-sent
// event stream, and the MJPEG video feed.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
)

//go:embed static
var staticFS embed.FS

// Sentinel errors the backend uses to signal snapshot preconditions; the
// handlers map them to HTTP status codes.
var (
	// ErrCameraOffline means the capture stream is not delivering frames.
	ErrCameraOffline = errors.New("camera offline")

	// ErrNoFrame means no frame has arrived yet.
	ErrNoFrame = errors.New("no frame available")

	// ErrBusy means another job holds the pipeline slot.
	ErrBusy = errors.New("pipeline busy")
)

// Backend is the station surface the HTTP API drives.
type Backend interface {
	// Bus is the station event stream.
	Bus() *bus.Bus

	// Result returns the current project payload.
	Result() (map[string]any, bool)

	// Reset discards the current result.
	Reset()

	// Snapshot triggers a capture from the current frame. Returns
	// [ErrCameraOffline], [ErrNoFrame], or [ErrBusy] when rejected.
	Snapshot() error

	// StartVoice and StopVoice bracket one push-to-talk utterance.
	StartVoice() error
	StopVoice() error

	// Quit initiates a clean shutdown.
	Quit()

	// CameraOnline reports whether frames are flowing.
	CameraOnline() bool

	// VideoFrame returns the latest annotated JPEG and its sequence number.
	VideoFrame() ([]byte, uint64, bool)
}

// Server is the kiosk HTTP server.
type Server struct {
	backend Backend
	log     *slog.Logger
	metrics *observe.Metrics
	httpSrv *http.Server

	// feedInterval paces the MJPEG feed; tests shorten it.
	feedInterval time.Duration

	// keepaliveInterval paces SSE comment lines; tests shorten it.
	keepaliveInterval time.Duration
}

// New creates a Server listening on addr.
func New(addr string, backend Backend, metrics *observe.Metrics, log *slog.Logger) *Server {
	s := &Server{
		backend:           backend,
		log:               log,
		metrics:           metrics,
		feedInterval:      33 * time.Millisecond,
		keepaliveInterval: 30 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/result", s.handleResult)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/voice/start", s.handleVoiceStart)
	mux.HandleFunc("POST /api/voice/stop", s.handleVoiceStop)
	mux.HandleFunc("POST /api/quit", s.handleQuit)
	mux.HandleFunc("GET /api/proxy_image", s.handleProxyImage)
	mux.HandleFunc("GET /video_feed", s.handleVideoFeed)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the configured handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe runs the server until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// BaseContext forces connections to observe ctx so the long-lived stream
// handlers end during shutdown.
func (s *Server) BaseContext(ctx context.Context) {
	s.httpSrv.BaseContext = func(net.Listener) context.Context { return ctx }
}
