package ai

import (
	"context"
	"net/http"
	"time"

	"github.com/openai/openai-go/option"

	oai "github.com/openai/openai-go"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// stageTimeout bounds a single upstream LLM call.
const stageTimeout = 60 * time.Second

// retrySchedule holds the delay before each retry attempt. Three attempts
// total, exponential delay between 0.5 s and 4 s.
var retrySchedule = []time.Duration{500 * time.Millisecond, 2 * time.Second}

// newClient builds an OpenAI-compatible client for one stage endpoint.
func newClient(cfg config.StageConfig) oai.Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: stageTimeout}),
		// The SDK has its own retry loop; the adapters own retries instead
		// so that the schedule matches across stages.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	return oai.NewClient(reqOpts...)
}

// withRetry runs fn up to three times, sleeping per retrySchedule between
// attempts. Only transport-level failures are retried.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !isTransport(err) || attempt >= len(retrySchedule) {
			return err
		}
		select {
		case <-time.After(retrySchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
