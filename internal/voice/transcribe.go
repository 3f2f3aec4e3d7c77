package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// ErrNoSpeech is returned when the endpoint recognised no words.
var ErrNoSpeech = errors.New("voice: no speech recognized")

// Transcriber submits WAV recordings to an OpenAI-compatible
// /audio/transcriptions endpoint.
type Transcriber struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewTranscriber creates a Transcriber from the voice configuration.
func NewTranscriber(cfg config.VoiceConfig) *Transcriber {
	return &Transcriber{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.ModelName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcribe uploads the WAV file at path and returns the recognized text.
// Empty or null transcriptions map to [ErrNoSpeech].
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("voice: read recording: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("voice: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("voice: write wav data: %w", err)
	}
	if t.model != "" {
		if err := mw.WriteField("model", t.model); err != nil {
			return "", fmt.Errorf("voice: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("voice: close multipart writer: %w", err)
	}

	endpoint := t.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("voice: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("voice: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("voice: parse JSON response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" || strings.EqualFold(text, "null") {
		return "", ErrNoSpeech
	}
	return text, nil
}
