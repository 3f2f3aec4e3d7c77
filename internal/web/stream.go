package web

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"
)

// handleStream is the server-sent event feed of station state changes. A
// comment line goes out every keepalive interval so proxies and browsers do
// not drop the idle connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.backend.Bus().Subscribe()
	defer sub.Cancel()
	s.metrics.StreamClients.Add(r.Context(), 1)
	defer s.metrics.StreamClients.Add(context.Background(), -1)

	// Replay the latest event so a reconnecting client resyncs immediately.
	if ev, ok := s.backend.Bus().Latest(); ok {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(s.keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.C:
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// handleVideoFeed streams the annotated camera feed as
// multipart/x-mixed-replace MJPEG, the format <img> tags render natively.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	mw := multipart.NewWriter(w)
	mw.SetBoundary("frame")
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(s.feedInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame, seq, ok := s.backend.VideoFrame()
			if !ok || seq == lastSeq {
				continue
			}
			lastSeq = seq

			header := textproto.MIMEHeader{}
			header.Set("Content-Type", "image/jpeg")
			header.Set("Content-Length", strconv.Itoa(len(frame)))
			part, err := mw.CreatePart(header)
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
