package ai

import (
	"errors"
	"fmt"
	"net"

	oai "github.com/openai/openai-go"
)

// Stage names one step of the remote pipeline.
type Stage string

const (
	StageVision     Stage = "vision"
	StageSolution   Stage = "solution"
	StagePreview    Stage = "preview"
	StageChat       Stage = "chat"
	StageTranscribe Stage = "transcribe"
)

// StageError is the single error type adapters surface to the scheduler.
// Retryable marks transport-level failures that were already retried inside
// the adapter; parse failures are never retryable.
type StageError struct {
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr wraps err as a *StageError, classifying retryability from the
// transport.
func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Retryable: isTransport(err), Err: err}
}

// isTransport reports whether err is a transport-level failure worth
// retrying: a network error, a timeout, or an upstream 5xx / 429.
func isTransport(err error) bool {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
