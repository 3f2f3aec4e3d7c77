// Package pipeline runs the three-stage capture flow (vision analysis,
// solution generation, preview image) and the voice refinement flow as
// single-slot background jobs, streaming progress over the event bus.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
	"github.com/sparkbox-kiosk/sparkbox/internal/convo"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
)

// User-facing status strings. The kiosk UI is Chinese; pipeline progress
// messages stay English to match the browser client's stage labels.
const (
	msgAnalyzing = "Analyzing Image..."
	msgVision    = "Vision Analysis..."
	msgSolution  = "Generating Solution..."
	msgPreview   = "Generating Preview Image..."
	msgComplete  = "Analysis Complete!"
	MsgBusy      = "系统忙，请稍后"
	MsgNoProject = "请先拍照分析图片"
)

// Stages holds the remote model calls the jobs drive. Split out as function
// values so tests can run the full job logic without network access.
type Stages struct {
	Vision     func(ctx context.Context, imagePath string) (*ai.VisionResult, error)
	Solution   func(ctx context.Context, vision *ai.VisionResult, prior *ai.SolutionResult, history []ai.Message, userMsg string) (*ai.SolutionResult, error)
	Chat       func(ctx context.Context, messages []ai.Message) (string, error)
	PreviewURL func(prompt string) (string, error)
	Prefetch   func(ctx context.Context, url string)
}

// Scheduler admits at most one job at a time. A rejected job publishes
// nothing; an accepted job publishes exactly one complete or error event
// (voice_response or voice_error for chat jobs).
type Scheduler struct {
	bus     *bus.Bus
	store   *convo.Store
	metrics *observe.Metrics
	log     *slog.Logger
	stages  Stages

	busy atomic.Bool
	wg   sync.WaitGroup
}

// New creates a Scheduler.
func New(b *bus.Bus, store *convo.Store, metrics *observe.Metrics, log *slog.Logger, stages Stages) *Scheduler {
	return &Scheduler{bus: b, store: store, metrics: metrics, log: log, stages: stages}
}

// Busy reports whether a job currently holds the slot.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// Wait blocks until the running job, if any, has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TryCapture starts the capture job for the image at imagePath. Returns
// false without side effects when another job holds the slot. onDone is
// invoked with the job's outcome after its final event is published.
func (s *Scheduler) TryCapture(ctx context.Context, imagePath string, onDone func(error)) bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		err := s.runCapture(ctx, imagePath)
		if err != nil {
			s.log.Error("capture job failed", "error", err)
			s.metrics.RecordCapture(ctx, "error")
			s.publish(bus.StateError, err.Error(), nil)
		} else {
			s.metrics.RecordCapture(ctx, "ok")
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return true
}

// TryChat starts the voice refinement job for one recognized utterance.
// When the slot is taken it publishes the busy notice and returns false.
func (s *Scheduler) TryChat(ctx context.Context, text string, onDone func(error)) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.publish(bus.StateVoiceError, MsgBusy, nil)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		err := s.runChat(ctx, text)
		if err != nil {
			s.log.Error("chat job failed", "error", err)
			s.publish(bus.StateVoiceError, err.Error(), nil)
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return true
}

func (s *Scheduler) runCapture(ctx context.Context, imagePath string) error {
	if err := s.store.StartSession(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	s.publish(bus.StateProcessing, msgAnalyzing, nil)

	s.publish(bus.StateProcessing, msgVision, nil)
	vision, err := s.timedVision(ctx, imagePath)
	if err != nil {
		return err
	}
	if err := s.store.LogImage("user", imagePath); err != nil {
		s.log.Warn("could not log capture image", "error", err)
	}

	s.publish(bus.StateProcessing, msgSolution, map[string]any{"vision": visionPayload(vision)})
	solution, err := s.timedSolution(ctx, vision, nil, nil, "")
	if err != nil {
		return err
	}
	if err := s.store.Append(convo.Turn{Role: "assistant", Type: "text", Content: renderSolution(solution)}); err != nil {
		s.log.Warn("could not log solution", "error", err)
	}

	s.publish(bus.StateProcessing, msgPreview, nil)
	url, err := s.timedPreview(ctx, solution.ImagePrompt)
	if err != nil {
		return err
	}
	if err := s.store.LogImage("assistant", url); err != nil {
		s.log.Warn("could not log preview image", "error", err)
	}

	project := &convo.Project{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		Vision:     vision,
		Solution:   solution,
		PreviewURL: url,
	}
	s.store.SetProject(project)
	s.store.PushMessage(ai.Message{Role: "system", Content: chatSystemPrompt(solution)})
	s.publish(bus.StateComplete, msgComplete, project.Payload())
	return nil
}

// runChat answers one recognized utterance with the free-text chat mode of
// the solution model. The stored project is read-only here; refinements live
// in the dialogue memory and the session log.
func (s *Scheduler) runChat(ctx context.Context, text string) error {
	if _, ok := s.store.Project(); !ok {
		return fmt.Errorf("%s", MsgNoProject)
	}

	if err := s.store.Append(convo.Turn{Role: "user", Type: "text", Content: text}); err != nil {
		s.log.Warn("could not log user turn", "error", err)
	}
	s.publish(bus.StateVoiceUser, text, nil)
	s.publish(bus.StateVoiceProcessing, "", nil)

	s.store.PushMessage(ai.Message{Role: "user", Content: text})
	reply, err := s.timedChat(ctx, s.store.Messages())
	if err != nil {
		return err
	}
	s.store.PushMessage(ai.Message{Role: "assistant", Content: reply})

	if err := s.store.Append(convo.Turn{Role: "assistant", Type: "text", Content: reply}); err != nil {
		s.log.Warn("could not log assistant turn", "error", err)
	}
	s.publish(bus.StateVoiceResponse, reply, nil)
	return nil
}

func (s *Scheduler) timedVision(ctx context.Context, imagePath string) (*ai.VisionResult, error) {
	start := time.Now()
	v, err := s.stages.Vision(ctx, imagePath)
	s.metrics.RecordStage(ctx, "vision", time.Since(start).Seconds(), err)
	return v, err
}

func (s *Scheduler) timedSolution(ctx context.Context, vision *ai.VisionResult, prior *ai.SolutionResult, history []ai.Message, userMsg string) (*ai.SolutionResult, error) {
	start := time.Now()
	sol, err := s.stages.Solution(ctx, vision, prior, history, userMsg)
	s.metrics.RecordStage(ctx, "solution", time.Since(start).Seconds(), err)
	return sol, err
}

func (s *Scheduler) timedChat(ctx context.Context, messages []ai.Message) (string, error) {
	start := time.Now()
	reply, err := s.stages.Chat(ctx, messages)
	s.metrics.RecordStage(ctx, "chat", time.Since(start).Seconds(), err)
	return reply, err
}

func (s *Scheduler) timedPreview(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url, err := s.stages.PreviewURL(prompt)
	if err == nil && s.stages.Prefetch != nil {
		s.stages.Prefetch(ctx, url)
	}
	s.metrics.RecordStage(ctx, "preview", time.Since(start).Seconds(), err)
	return url, err
}

func (s *Scheduler) publish(state bus.State, message string, data map[string]any) {
	s.metrics.RecordEvent(context.Background(), string(state))
	s.bus.Publish(bus.Event{State: state, Message: message, Data: data})
}

func visionPayload(v *ai.VisionResult) any {
	if v.Raw != nil {
		return v.Raw
	}
	return v
}
