package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
	"github.com/sparkbox-kiosk/sparkbox/internal/bus"
	"github.com/sparkbox-kiosk/sparkbox/internal/convo"
	"github.com/sparkbox-kiosk/sparkbox/internal/observe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testStore(t *testing.T) *convo.Store {
	t.Helper()
	store, err := convo.NewStore(filepath.Join(t.TempDir(), "ai_logs"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// writeCaptureImage produces a small JPEG standing in for a rectified sketch.
func writeCaptureImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func happyStages() Stages {
	return Stages{
		Vision: func(ctx context.Context, imagePath string) (*ai.VisionResult, error) {
			return &ai.VisionResult{
				ProjectTitle:       "风车",
				VisualComponents:   []string{"leaf"},
				UserIntentAnalysis: "wants a windmill",
			}, nil
		},
		Solution: func(ctx context.Context, vision *ai.VisionResult, prior *ai.SolutionResult, history []ai.Message, userMsg string) (*ai.SolutionResult, error) {
			return &ai.SolutionResult{
				ProjectName: "纸风车",
				TargetUser:  "8-10岁",
				Difficulty:  "简单",
				CoreIdea:    "风力驱动",
				Materials:   []string{"纸", "吸管"},
				Steps:       []string{"剪纸", "组装"},
				LearningOutcomes: []string{"空气动力"},
				ImagePrompt: "a paper windmill",
			}, nil
		},
		Chat: func(ctx context.Context, messages []ai.Message) (string, error) {
			return "好的，已经更新。", nil
		},
		PreviewURL: func(prompt string) (string, error) {
			return "https://image.example/p.jpg", nil
		},
	}
}

// collectUntil drains sub until a terminal state arrives or the timeout hits.
func collectUntil(t *testing.T, sub *bus.Subscription, terminal ...bus.State) []bus.Event {
	t.Helper()
	isTerminal := func(s bus.State) bool {
		for _, want := range terminal {
			if s == want {
				return true
			}
		}
		return false
	}
	var events []bus.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			events = append(events, ev)
			if isTerminal(ev.State) {
				return events
			}
		case <-deadline:
			t.Fatalf("no terminal event; got %d events", len(events))
		}
	}
}

func TestCaptureEventSequence(t *testing.T) {
	t.Parallel()

	b := bus.New()
	store := testStore(t)
	s := New(b, store, testMetrics(t), testLogger(), happyStages())

	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryCapture(context.Background(), writeCaptureImage(t), func(err error) { done <- err }) {
		t.Fatal("capture rejected on idle scheduler")
	}
	events := collectUntil(t, sub, bus.StateComplete, bus.StateError)
	if err := <-done; err != nil {
		t.Fatalf("job error: %v", err)
	}

	wantStates := []bus.State{
		bus.StateProcessing, bus.StateProcessing, bus.StateProcessing,
		bus.StateProcessing, bus.StateComplete,
	}
	if len(events) != len(wantStates) {
		t.Fatalf("got %d events, want %d", len(events), len(wantStates))
	}
	for i, want := range wantStates {
		if events[i].State != want {
			t.Errorf("event %d state = %q, want %q", i, events[i].State, want)
		}
	}
	wantMsgs := []string{msgAnalyzing, msgVision, msgSolution, msgPreview}
	for i, want := range wantMsgs {
		if events[i].Message != want {
			t.Errorf("event %d message = %q, want %q", i, events[i].Message, want)
		}
	}
	if events[2].Data["vision"] == nil {
		t.Error("solution event missing vision payload")
	}

	final := events[len(events)-1]
	if final.Message != msgComplete {
		t.Errorf("complete message = %q, want %q", final.Message, msgComplete)
	}
	if final.Data["preview_url"] != "https://image.example/p.jpg" {
		t.Errorf("complete payload preview_url = %v", final.Data["preview_url"])
	}
	if _, ok := store.Project(); !ok {
		t.Error("project not stored after capture")
	}
	if msgs := store.Messages(); len(msgs) != 1 || msgs[0].Role != "system" {
		t.Errorf("dialogue memory after capture = %v, want one system turn", msgs)
	}
}

func TestCaptureVisionFailureLogsNothing(t *testing.T) {
	t.Parallel()

	stages := happyStages()
	stages.Vision = func(ctx context.Context, imagePath string) (*ai.VisionResult, error) {
		return nil, errors.New("vision stage: bad image")
	}

	b := bus.New()
	store := testStore(t)
	s := New(b, store, testMetrics(t), testLogger(), stages)
	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryCapture(context.Background(), writeCaptureImage(t), func(err error) { done <- err }) {
		t.Fatal("capture rejected")
	}
	collectUntil(t, sub, bus.StateComplete, bus.StateError)
	if err := <-done; err == nil {
		t.Fatal("expected job error")
	}

	// The capture image turn is persisted only after the vision stage
	// succeeds, so a failed vision leaves the session log uncreated.
	if _, err := os.Stat(store.LogPath()); !os.IsNotExist(err) {
		t.Errorf("session log written despite vision failure: %v", err)
	}
}

func TestCaptureStageFailurePublishesOneError(t *testing.T) {
	t.Parallel()

	stages := happyStages()
	stages.Solution = func(ctx context.Context, vision *ai.VisionResult, prior *ai.SolutionResult, history []ai.Message, userMsg string) (*ai.SolutionResult, error) {
		return nil, errors.New("solution stage: model unavailable")
	}

	b := bus.New()
	s := New(b, testStore(t), testMetrics(t), testLogger(), stages)
	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryCapture(context.Background(), writeCaptureImage(t), func(err error) { done <- err }) {
		t.Fatal("capture rejected")
	}
	events := collectUntil(t, sub, bus.StateComplete, bus.StateError)
	if err := <-done; err == nil {
		t.Fatal("expected job error")
	}

	var completes, errs int
	for _, ev := range events {
		switch ev.State {
		case bus.StateComplete:
			completes++
		case bus.StateError:
			errs++
		}
	}
	if completes != 0 || errs != 1 {
		t.Errorf("completes = %d, errors = %d; want 0 and 1", completes, errs)
	}
}

func TestChatRequiresProject(t *testing.T) {
	t.Parallel()

	b := bus.New()
	s := New(b, testStore(t), testMetrics(t), testLogger(), happyStages())
	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryChat(context.Background(), "加一个灯", func(err error) { done <- err }) {
		t.Fatal("chat rejected on idle scheduler")
	}
	events := collectUntil(t, sub, bus.StateVoiceError, bus.StateVoiceResponse)
	<-done

	final := events[len(events)-1]
	if final.State != bus.StateVoiceError || final.Message != MsgNoProject {
		t.Errorf("final event = %v %q, want voice_error %q", final.State, final.Message, MsgNoProject)
	}
}

func TestChatRepliesWithoutTouchingProject(t *testing.T) {
	t.Parallel()

	var got []ai.Message
	stages := happyStages()
	stages.Chat = func(ctx context.Context, messages []ai.Message) (string, error) {
		got = messages
		return "可以把车轮换成瓶盖。", nil
	}

	b := bus.New()
	store := testStore(t)
	s := New(b, store, testMetrics(t), testLogger(), stages)

	// Seed the store as if a capture had completed.
	if err := store.StartSession(); err != nil {
		t.Fatal(err)
	}
	seed := &convo.Project{
		ID:         "seed",
		CreatedAt:  time.Now(),
		Vision:     &ai.VisionResult{ProjectTitle: "风车"},
		Solution:   &ai.SolutionResult{ProjectName: "纸风车", ImagePrompt: "a windmill"},
		PreviewURL: "https://image.example/seed.jpg",
	}
	store.SetProject(seed)
	store.PushMessage(ai.Message{Role: "system", Content: "你是导师"})

	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryChat(context.Background(), "加一个灯", func(err error) { done <- err }) {
		t.Fatal("chat rejected")
	}
	events := collectUntil(t, sub, bus.StateVoiceError, bus.StateVoiceResponse)
	if err := <-done; err != nil {
		t.Fatalf("chat error: %v", err)
	}

	wantStates := []bus.State{bus.StateVoiceUser, bus.StateVoiceProcessing, bus.StateVoiceResponse}
	if len(events) != len(wantStates) {
		t.Fatalf("got %d events, want %d", len(events), len(wantStates))
	}
	for i, want := range wantStates {
		if events[i].State != want {
			t.Errorf("event %d state = %q, want %q", i, events[i].State, want)
		}
	}
	if events[0].Message != "加一个灯" {
		t.Errorf("voice_user message = %q", events[0].Message)
	}
	if final := events[len(events)-1]; final.Message != "可以把车轮换成瓶盖。" {
		t.Errorf("voice_response message = %q", final.Message)
	}

	// The chat stage sees the maintained message list ending in the new text.
	if len(got) != 2 || got[0].Role != "system" || got[1].Content != "加一个灯" {
		t.Errorf("chat stage messages = %v", got)
	}
	if msgs := store.Messages(); len(msgs) != 3 || msgs[2].Role != "assistant" {
		t.Errorf("dialogue memory = %v, want system/user/assistant", msgs)
	}

	// The session log gains a user and an assistant text turn.
	data, err := os.ReadFile(store.LogPath())
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	var turns []convo.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		t.Fatalf("parse session log: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("session log turns = %+v", turns)
	}

	// The stored project is left alone; only the dialogue memory grows.
	project, _ := store.Project()
	if project != seed {
		t.Error("chat turn replaced the stored project")
	}
	if project.PreviewURL != "https://image.example/seed.jpg" || project.Solution.ProjectName != "纸风车" {
		t.Errorf("chat turn modified the stored project: %+v", project)
	}
}

func TestSchedulerSingleSlot(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stages := happyStages()
	stages.Vision = func(ctx context.Context, imagePath string) (*ai.VisionResult, error) {
		<-release
		return &ai.VisionResult{ProjectTitle: "t"}, nil
	}

	b := bus.New()
	s := New(b, testStore(t), testMetrics(t), testLogger(), stages)
	sub := b.Subscribe()
	defer sub.Cancel()

	done := make(chan error, 1)
	if !s.TryCapture(context.Background(), writeCaptureImage(t), func(err error) { done <- err }) {
		t.Fatal("first capture rejected")
	}
	if s.TryCapture(context.Background(), writeCaptureImage(t), nil) {
		t.Error("second capture accepted while busy")
	}
	if s.TryChat(context.Background(), "hi", nil) {
		t.Error("chat accepted while busy")
	}
	if !s.Busy() {
		t.Error("Busy() = false with a job in flight")
	}

	// The rejected chat must publish the busy notice.
	busyFound := false
	drain := time.After(2 * time.Second)
	for !busyFound {
		select {
		case ev := <-sub.C:
			if ev.State == bus.StateVoiceError && ev.Message == MsgBusy {
				busyFound = true
			}
		case <-drain:
			t.Fatal("busy notice never published")
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first job failed: %v", err)
	}
	s.Wait()
	if s.Busy() {
		t.Error("Busy() = true after completion")
	}
}

func TestRenderSolution(t *testing.T) {
	t.Parallel()

	text := renderSolution(&ai.SolutionResult{
		ProjectName:      "纸风车",
		TargetUser:       "8-10岁",
		Difficulty:       "简单",
		CoreIdea:         "风力驱动",
		Materials:        []string{"纸"},
		Steps:            []string{"剪纸", "组装"},
		LearningOutcomes: []string{"空气动力"},
	})
	for _, want := range []string{"【方案名称】纸风车", "【制作步骤】", "1. 剪纸", "2. 组装", "- 空气动力"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered solution missing %q:\n%s", want, text)
		}
	}
}
