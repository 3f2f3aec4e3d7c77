package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleStatus reports the latest station event, or the offline sentinel
// when the camera is down.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.backend.CameraOnline() {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   "offline",
			"message": "System offline",
		})
		return
	}
	ev, ok := s.backend.Bus().Latest()
	if !ok {
		ev = bus.Event{State: bus.StateReady}
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.backend.Result()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"error": "No results available"})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.backend.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset_ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	err := s.backend.Snapshot()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case errors.Is(err, ErrCameraOffline):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	case errors.Is(err, ErrNoFrame):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StartVoice(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "recording"})
}

func (s *Server) handleVoiceStop(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StopVoice(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	go s.backend.Quit()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
