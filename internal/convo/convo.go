// Package convo holds the project-scoped dialogue memory and the append-only
// per-session log of text and image turns.
//
// Each capture opens a fresh session log under <dir>/ai_logs; turns are
// appended with an atomic read-modify-write under the store mutex. Image
// turns reference files in the log's images subdirectory: local sources are
// copied in, remote URLs are fetched once.
package convo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
)

// Turn is one record of the session log.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Type    string `json:"type"` // "text" or "image"
	Content string `json:"content"`
}

// Project is the result of one successful capture, replaced atomically by
// the next capture. Chat refinements accumulate in the store's dialogue
// memory; the installed project is never mutated in place.
type Project struct {
	ID         string
	CreatedAt  time.Time
	Vision     *ai.VisionResult
	Solution   *ai.SolutionResult
	PreviewURL string
}

// Payload renders the project as the event/REST object the browser consumes.
// Raw upstream maps are preferred so no keys are dropped.
func (p *Project) Payload() map[string]any {
	var vision, solution any
	if p.Vision != nil {
		vision = p.Vision.Raw
		if vision == nil {
			vision = p.Vision
		}
	}
	if p.Solution != nil {
		solution = p.Solution.Raw
		if solution == nil {
			solution = p.Solution
		}
	}
	return map[string]any{
		"vision":      vision,
		"solution":    solution,
		"preview_url": p.PreviewURL,
		"timestamp":   p.CreatedAt.Format(time.RFC3339),
	}
}

// Store owns the current project, its chat memory, and the session log file.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	dir      string // ai_logs root
	imageDir string
	logPath  string

	project  *Project
	messages []ai.Message

	httpClient *http.Client
	now        func() time.Time
}

// NewStore creates the log directory layout under dir (the ai_logs root).
func NewStore(dir string) (*Store, error) {
	imageDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("convo: create log dirs: %w", err)
	}
	return &Store{
		dir:        dir,
		imageDir:   imageDir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}, nil
}

// StartSession allocates a fresh log file path for the next capture. The file
// itself is created lazily on the first append. Chat memory is reset.
func (s *Store) StartSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	name := fmt.Sprintf("%s_%s.json", s.now().Format("2006-01-02_150405"), suffix)
	s.logPath = filepath.Join(s.dir, name)
	s.messages = nil
	return nil
}

// LogPath returns the current session log path, empty before the first session.
func (s *Store) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logPath
}

// Append adds turn to the session log with a read-modify-write of the file.
// On the first append the file is created holding an empty list.
func (s *Store) Append(turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(turn)
}

func (s *Store) appendLocked(turn Turn) error {
	if s.logPath == "" {
		return fmt.Errorf("convo: no session started")
	}

	var turns []Turn
	data, err := os.ReadFile(s.logPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &turns); err != nil {
			return fmt.Errorf("convo: parse session log %q: %w", s.logPath, err)
		}
	case os.IsNotExist(err):
		turns = []Turn{}
	default:
		return fmt.Errorf("convo: read session log %q: %w", s.logPath, err)
	}

	turns = append(turns, turn)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("convo: encode session log: %w", err)
	}
	if err := os.WriteFile(s.logPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("convo: write session log %q: %w", s.logPath, err)
	}
	return nil
}

// LogImage stores the image at source under the log's images directory and
// appends an image turn referencing it by relative path. A local path is
// copied under its original name; an http(s) URL is fetched once and stored
// as generated_YYYYMMDD_HHMMSS.jpg.
func (s *Store) LogImage(role, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		name = fmt.Sprintf("generated_%s.jpg", s.now().Format("20060102_150405"))
		if err := s.download(source, filepath.Join(s.imageDir, name)); err != nil {
			return err
		}
	} else {
		name = filepath.Base(source)
		if err := copyFile(source, filepath.Join(s.imageDir, name)); err != nil {
			return err
		}
	}

	return s.appendLocked(Turn{Role: role, Type: "image", Content: filepath.Join("images", name)})
}

func (s *Store) download(url, dst string) error {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("convo: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("convo: fetch image: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("convo: create image file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("convo: save image: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("convo: open image %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("convo: create image file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("convo: copy image: %w", err)
	}
	return nil
}

// SetProject installs the result of a completed capture.
func (s *Store) SetProject(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
}

// Project returns the current project, or false when none exists.
func (s *Store) Project() (*Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project, s.project != nil
}

// PushMessage appends one chat turn to the in-memory conversation.
func (s *Store) PushMessage(m ai.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns a copy of the in-memory conversation.
func (s *Store) Messages() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ai.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Clear drops the in-memory conversation and project. Past log files are
// never touched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = nil
	s.messages = nil
	s.logPath = ""
}
