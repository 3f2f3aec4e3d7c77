package ai_test

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

func TestBuildURLShape(t *testing.T) {
	t.Parallel()

	agent := ai.NewPreviewAgent(config.ImageGenConfig{
		ModelName: "flux",
		Width:     1280,
		Height:    960,
	})

	got, err := agent.BuildURL("a wind-powered cardboard car")
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}

	if !strings.HasPrefix(got, "https://image.pollinations.ai/prompt/") {
		t.Errorf("URL %q does not start with the pollinations prompt base", got)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	q := u.Query()
	if q.Get("model") != "flux" {
		t.Errorf("model = %q, want flux", q.Get("model"))
	}
	if q.Get("width") != "1280" || q.Get("height") != "960" {
		t.Errorf("size = %sx%s, want 1280x960", q.Get("width"), q.Get("height"))
	}
	if q.Get("nologo") != "true" {
		t.Errorf("nologo = %q, want true", q.Get("nologo"))
	}
	if q.Get("enhance") != "false" {
		t.Errorf("enhance = %q, want false", q.Get("enhance"))
	}
	if q.Get("seed") == "" {
		t.Error("seed parameter missing")
	}

	// Prompt path carries both style suffixes.
	decoded, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/prompt/"))
	if err != nil {
		t.Fatalf("unescape prompt path: %v", err)
	}
	if !strings.Contains(decoded, "a wind-powered cardboard car") {
		t.Errorf("prompt path %q lost the original prompt", decoded)
	}
	if !strings.Contains(decoded, "documentary photograph") {
		t.Errorf("prompt path %q lost the photorealism suffix", decoded)
	}
	if !strings.Contains(decoded, "NOT cartoon") {
		t.Errorf("prompt path %q lost the negative constraints", decoded)
	}
}

func TestBuildURLEmptyPrompt(t *testing.T) {
	t.Parallel()

	agent := ai.NewPreviewAgent(config.ImageGenConfig{Width: 1024, Height: 1024})
	_, err := agent.BuildURL("   ")
	if err == nil {
		t.Fatal("expected error for empty prompt, got nil")
	}
	var stageErr *ai.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error %T is not a StageError", err)
	}
	if stageErr.Stage != ai.StagePreview {
		t.Errorf("stage = %q, want preview", stageErr.Stage)
	}
	if stageErr.Retryable {
		t.Error("empty-prompt error must not be retryable")
	}
}

func TestBuildURLDefaultsModel(t *testing.T) {
	t.Parallel()

	agent := ai.NewPreviewAgent(config.ImageGenConfig{Width: 512, Height: 512})
	got, err := agent.BuildURL("robot")
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	if q := u.Query().Get("model"); q != "flux" {
		t.Errorf("model = %q, want flux default", q)
	}
}
