package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// previewBase is the public text-to-image endpoint the preview URL points at.
const previewBase = "https://image.pollinations.ai/prompt/"

// photoSuffix pushes the generator towards documentary-photo output instead
// of a clean render.
const photoSuffix = ", documentary photograph shot on dslr, macro lens close-up, " +
	"tangible textures, rough materials, messy wiring, " +
	"natural workshop lighting, film grain, sharp focus"

// negativeSuffix names the styles the generator must avoid. The service
// treats the trailing part of the prompt as negative guidance.
const negativeSuffix = ", NOT cartoon, NOT 3d render, NOT cgi, NOT anime, " +
	"NOT blender, no smooth plastic, no perfect shapes"

// PreviewAgent builds preview image URLs and warms them up so the browser's
// first request hits a rendered image.
type PreviewAgent struct {
	model  string
	width  int
	height int

	httpClient *http.Client
	seed       func() uint32
}

// NewPreviewAgent builds a PreviewAgent from the image generator config.
func NewPreviewAgent(cfg config.ImageGenConfig) *PreviewAgent {
	model := cfg.ModelName
	if model == "" {
		model = "flux"
	}
	return &PreviewAgent{
		model:      model,
		width:      cfg.Width,
		height:     cfg.Height,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		seed:       rand.Uint32,
	}
}

// BuildURL returns the preview URL for prompt. The prompt is extended with
// the photorealism and negative-constraint suffixes, URL-encoded, and
// parameterised with the configured size and a fresh random seed.
func (a *PreviewAgent) BuildURL(prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &StageError{Stage: StagePreview, Err: fmt.Errorf("ai: empty image prompt")}
	}

	full := prompt + photoSuffix + negativeSuffix
	return fmt.Sprintf("%s%s?model=%s&width=%d&height=%d&seed=%d&nologo=true&enhance=false",
		previewBase, url.PathEscape(full), url.QueryEscape(a.model), a.width, a.height, a.seed()), nil
}

// Prefetch issues one small GET against imageURL so the upstream service
// starts rendering before the browser asks. Best effort; failures are logged
// and swallowed.
func (a *PreviewAgent) Prefetch(ctx context.Context, imageURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		slog.Debug("preview prefetch request failed", "err", err)
		return
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Debug("preview prefetch failed", "err", err)
		return
	}
	defer resp.Body.Close()

	// Reading 1 KB is enough to trigger generation server-side.
	io.CopyN(io.Discard, resp.Body, 1024)
	slog.Debug("preview prefetch done", "status", resp.StatusCode)
}
