package convo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
	"github.com/sparkbox-kiosk/sparkbox/internal/convo"
)

func readTurns(t *testing.T, path string) []convo.Turn {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	var turns []convo.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		t.Fatalf("parse session log: %v", err)
	}
	return turns
}

func TestAppendPreservesOrder(t *testing.T) {
	t.Parallel()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	turns := []convo.Turn{
		{Role: "user", Type: "text", Content: "做一辆风力小车"},
		{Role: "assistant", Type: "text", Content: "好的，方案如下"},
		{Role: "user", Type: "text", Content: "make it cheaper"},
	}
	for _, turn := range turns {
		if err := store.Append(turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := readTurns(t, store.LogPath())
	if len(got) != len(turns) {
		t.Fatalf("log has %d turns, want %d", len(got), len(turns))
	}
	for i := range turns {
		if got[i] != turns[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], turns[i])
		}
	}
}

func TestAppendWithoutSession(t *testing.T) {
	t.Parallel()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Append(convo.Turn{Role: "user", Type: "text", Content: "x"}); err == nil {
		t.Fatal("Append before StartSession must fail")
	}
}

func TestSessionFileNaming(t *testing.T) {
	t.Parallel()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	name := filepath.Base(store.LogPath())
	// YYYY-MM-DD_HHMMSS_<rand6>.json
	if !strings.HasSuffix(name, ".json") {
		t.Errorf("log name %q missing .json suffix", name)
	}
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "_")
	if len(parts) != 3 {
		t.Fatalf("log name %q not in date_time_rand form", name)
	}
	if len(parts[2]) != 6 {
		t.Errorf("random suffix %q is not 6 characters", parts[2])
	}
}

func TestNewSessionKeepsOldLog(t *testing.T) {
	t.Parallel()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := store.Append(convo.Turn{Role: "user", Type: "text", Content: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	first := store.LogPath()

	store.Clear()
	if err := store.StartSession(); err != nil {
		t.Fatalf("second StartSession: %v", err)
	}
	if store.LogPath() == first {
		t.Fatal("second session reuses the first log path")
	}

	got := readTurns(t, first)
	if len(got) != 1 || got[0].Content != "first" {
		t.Errorf("previous session log modified: %+v", got)
	}
}

func TestLogImageLocalCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := convo.NewStore(filepath.Join(dir, "ai_logs"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	src := filepath.Join(dir, "capture_20260824_101500.jpg")
	if err := os.WriteFile(src, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}

	if err := store.LogImage("user", src); err != nil {
		t.Fatalf("LogImage: %v", err)
	}

	turns := readTurns(t, store.LogPath())
	if len(turns) != 1 {
		t.Fatalf("log has %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if turn.Role != "user" || turn.Type != "image" {
		t.Errorf("turn = %+v, want user image", turn)
	}

	// The relative path must resolve against the log directory.
	resolved := filepath.Join(filepath.Dir(store.LogPath()), turn.Content)
	data, err := os.ReadFile(resolved)
	if err != nil {
		t.Fatalf("image content %q does not resolve: %v", turn.Content, err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("copied image content = %q", data)
	}
}

func TestLogImageRemoteFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-jpeg"))
	}))
	defer srv.Close()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.StartSession(); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := store.LogImage("assistant", srv.URL+"/prompt/x"); err != nil {
		t.Fatalf("LogImage: %v", err)
	}

	turns := readTurns(t, store.LogPath())
	if len(turns) != 1 {
		t.Fatalf("log has %d turns, want 1", len(turns))
	}
	name := filepath.Base(turns[0].Content)
	if !strings.HasPrefix(name, "generated_") || !strings.HasSuffix(name, ".jpg") {
		t.Errorf("downloaded image name = %q, want generated_*.jpg", name)
	}

	resolved := filepath.Join(filepath.Dir(store.LogPath()), turns[0].Content)
	data, err := os.ReadFile(resolved)
	if err != nil {
		t.Fatalf("downloaded image does not resolve: %v", err)
	}
	if string(data) != "remote-jpeg" {
		t.Errorf("downloaded content = %q", data)
	}
}

func TestProjectLifecycle(t *testing.T) {
	t.Parallel()

	store, err := convo.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, ok := store.Project(); ok {
		t.Fatal("fresh store reports a project")
	}

	store.SetProject(&convo.Project{
		ID:         "p1",
		Vision:     &ai.VisionResult{ProjectTitle: "风力小车"},
		Solution:   &ai.SolutionResult{ProjectName: "风力小车", ImagePrompt: "a car"},
		PreviewURL: "https://image.pollinations.ai/prompt/x",
	})
	store.PushMessage(ai.Message{Role: "system", Content: "你是导师"})
	store.PushMessage(ai.Message{Role: "user", Content: "cheaper"})

	if got := store.Messages(); len(got) != 2 {
		t.Errorf("Messages len = %d, want 2", len(got))
	}

	p, ok := store.Project()
	if !ok {
		t.Fatal("project not stored")
	}
	payload := p.Payload()
	if payload["preview_url"] != "https://image.pollinations.ai/prompt/x" {
		t.Errorf("payload preview_url = %v", payload["preview_url"])
	}

	store.Clear()
	if _, ok := store.Project(); ok {
		t.Error("Clear did not drop the project")
	}
	if got := store.Messages(); len(got) != 0 {
		t.Errorf("Clear left %d messages", len(got))
	}
}
