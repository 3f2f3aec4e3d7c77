package ai

import (
	"strings"
	"testing"
)

func TestBuildPromptSections(t *testing.T) {
	t.Parallel()

	agent := &SolutionAgent{prompt: "你是一名创客导师。"}
	vision := &VisionResult{
		ProjectTitle:       "风力小车",
		VisualComponents:   []string{"车轮", "风扇"},
		UserIntentAnalysis: "想做一辆风力驱动的小车",
	}

	t.Run("vision only", func(t *testing.T) {
		t.Parallel()
		got, err := agent.buildPrompt(vision, nil, nil, "")
		if err != nil {
			t.Fatalf("buildPrompt: %v", err)
		}
		if !strings.HasPrefix(got, "你是一名创客导师。") {
			t.Error("prompt does not start with the instruction text")
		}
		if !strings.Contains(got, "【当前学生的草图视觉分析数据】") {
			t.Error("prompt missing the vision section header")
		}
		if !strings.Contains(got, "风力小车") {
			t.Error("prompt missing the vision payload")
		}
		for _, absent := range []string{"【当前方案】", "【对话历史】", "【学生反馈】"} {
			if strings.Contains(got, absent) {
				t.Errorf("prompt contains %s without input for it", absent)
			}
		}
	})

	t.Run("full refinement", func(t *testing.T) {
		t.Parallel()
		prior := &SolutionResult{ProjectName: "风力小车 v1", CoreIdea: "纸板车身", ImagePrompt: "a car"}
		history := []Message{
			{Role: "user", Content: "轮子太贵了"},
			{Role: "assistant", Content: "可以用瓶盖"},
		}
		got, err := agent.buildPrompt(vision, prior, history, "make it cheaper")
		if err != nil {
			t.Fatalf("buildPrompt: %v", err)
		}
		for _, want := range []string{
			"【当前方案】", "风力小车 v1",
			"【对话历史】", "user: 轮子太贵了", "assistant: 可以用瓶盖",
			"【学生反馈】", "make it cheaper", "优化方案",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("prompt missing %q", want)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		a, err := agent.buildPrompt(vision, nil, nil, "cheaper")
		if err != nil {
			t.Fatalf("buildPrompt: %v", err)
		}
		b, err := agent.buildPrompt(vision, nil, nil, "cheaper")
		if err != nil {
			t.Fatalf("buildPrompt: %v", err)
		}
		if a != b {
			t.Error("buildPrompt is not deterministic for identical inputs")
		}
	})
}

func TestParseVision(t *testing.T) {
	t.Parallel()

	content := "```json\n" + `{
  "project_title": "雨伞收纳筒",
  "visual_components": ["圆筒", "接水杯"],
  "user_intent_analysis": "收纳湿雨伞",
  "extra_field": "kept in raw"
}` + "\n```"

	res, err := parseVision(content)
	if err != nil {
		t.Fatalf("parseVision: %v", err)
	}
	if res.ProjectTitle != "雨伞收纳筒" {
		t.Errorf("ProjectTitle = %q", res.ProjectTitle)
	}
	if len(res.VisualComponents) != 2 {
		t.Errorf("VisualComponents = %v", res.VisualComponents)
	}
	if _, ok := res.Raw["extra_field"]; !ok {
		t.Error("Raw lost the extra upstream key")
	}
}

func TestParseVisionMissingKey(t *testing.T) {
	t.Parallel()

	_, err := parseVision(`{"project_title": "x", "visual_components": []}`)
	if err == nil {
		t.Fatal("expected error for missing user_intent_analysis")
	}
	se, ok := err.(*StageError)
	if !ok {
		t.Fatalf("error %T is not a StageError", err)
	}
	if se.Stage != StageVision || se.Retryable {
		t.Errorf("got stage=%q retryable=%v, want vision non-retryable", se.Stage, se.Retryable)
	}
}

func TestParseSolution(t *testing.T) {
	t.Parallel()

	content := `{
  "project_name": "雨伞收纳筒",
  "target_user": "小学生",
  "difficulty": "简单",
  "core_idea": "PVC 管加接水杯",
  "materials": ["PVC 管", "塑料杯"],
  "steps": ["切割", "打磨", "组装"],
  "learning_outcomes": ["结构设计"],
  "image_prompt": "a white pvc umbrella stand"
}`

	res, err := parseSolution(content)
	if err != nil {
		t.Fatalf("parseSolution: %v", err)
	}
	if res.ProjectName != "雨伞收纳筒" {
		t.Errorf("ProjectName = %q", res.ProjectName)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %v", res.Steps)
	}
	if res.ImagePrompt == "" {
		t.Error("ImagePrompt empty after parse")
	}
}

func TestParseSolutionEmptyImagePrompt(t *testing.T) {
	t.Parallel()

	_, err := parseSolution(`{
  "project_name": "x", "core_idea": "y", "materials": [],
  "steps": [], "learning_outcomes": [], "image_prompt": "  "
}`)
	if err == nil {
		t.Fatal("expected error for blank image_prompt")
	}
}
