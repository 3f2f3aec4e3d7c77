package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// SolutionAgent turns a vision analysis into a buildable maker-project plan,
// and refines an existing plan from voice feedback.
type SolutionAgent struct {
	client oai.Client
	model  string
	prompt string
}

// NewSolutionAgent builds a SolutionAgent from the solution stage config.
func NewSolutionAgent(cfg config.StageConfig) *SolutionAgent {
	return &SolutionAgent{
		client: newClient(cfg),
		model:  cfg.ModelName,
		prompt: cfg.Prompt,
	}
}

// Generate produces a solution for vision. prior, history, and userMsg are
// optional: when set they carry the current plan and the refinement dialogue
// into the prompt so the model optimises instead of starting over.
func (a *SolutionAgent) Generate(ctx context.Context, vision *VisionResult, prior *SolutionResult, history []Message, userMsg string) (*SolutionResult, error) {
	prompt, err := a.buildPrompt(vision, prior, history, userMsg)
	if err != nil {
		return nil, &StageError{Stage: StageSolution, Err: err}
	}

	content, err := a.complete(ctx, []oai.ChatCompletionMessageParamUnion{
		oai.UserMessage(prompt),
	})
	if err != nil {
		return nil, stageErr(StageSolution, err)
	}

	return parseSolution(content)
}

// Chat runs the free-text mode of the solution model against an accumulated
// message list (system turn first, then alternating user/assistant). The reply
// is plain text, not JSON.
func (a *SolutionAgent) Chat(ctx context.Context, messages []Message) (string, error) {
	params := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			params = append(params, oai.SystemMessage(m.Content))
		case "assistant":
			params = append(params, oai.AssistantMessage(m.Content))
		default:
			params = append(params, oai.UserMessage(m.Content))
		}
	}

	content, err := a.complete(ctx, params)
	if err != nil {
		return "", stageErr(StageChat, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", &StageError{Stage: StageChat, Err: fmt.Errorf("ai: empty chat reply")}
	}
	return content, nil
}

// complete runs one chat completion with the adapter's retry schedule.
func (a *SolutionAgent) complete(ctx context.Context, messages []oai.ChatCompletionMessageParamUnion) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(a.model),
		Messages: messages,
	}

	var content string
	err := withRetry(ctx, func(ctx context.Context) error {
		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("ai: empty choices in solution response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// buildPrompt assembles the solution prompt deterministically: instruction
// prompt, vision JSON, then the optional plan, history, and feedback blocks.
func (a *SolutionAgent) buildPrompt(vision *VisionResult, prior *SolutionResult, history []Message, userMsg string) (string, error) {
	visionJSON, err := json.MarshalIndent(visionDump(vision), "", "  ")
	if err != nil {
		return "", fmt.Errorf("ai: marshal vision data: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(a.prompt)
	sb.WriteString("\n\n【当前学生的草图视觉分析数据】\n")
	sb.Write(visionJSON)

	if prior != nil {
		priorJSON, err := json.MarshalIndent(solutionDump(prior), "", "  ")
		if err != nil {
			return "", fmt.Errorf("ai: marshal prior solution: %w", err)
		}
		sb.WriteString("\n\n【当前方案】\n")
		sb.Write(priorJSON)
	}

	if len(history) > 0 {
		sb.WriteString("\n\n【对话历史】\n")
		for _, m := range history {
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}

	if userMsg != "" {
		sb.WriteString("\n【学生反馈】\n")
		sb.WriteString(userMsg)
		sb.WriteString("\n请基于以上反馈优化方案，务必只输出纯 JSON。")
	}

	return sb.String(), nil
}

// visionDump prefers the raw upstream object so no keys are lost in transit.
func visionDump(v *VisionResult) any {
	if v.Raw != nil {
		return v.Raw
	}
	return v
}

func solutionDump(s *SolutionResult) any {
	if s.Raw != nil {
		return s.Raw
	}
	return s
}

// parseSolution extracts and validates the solution JSON object.
func parseSolution(content string) (*SolutionResult, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, &StageError{Stage: StageSolution, Err: err}
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, &StageError{Stage: StageSolution, Err: fmt.Errorf("ai: solution JSON: %w", err)}
	}
	for _, key := range []string{"project_name", "core_idea", "materials", "steps", "learning_outcomes", "image_prompt"} {
		if _, ok := full[key]; !ok {
			return nil, &StageError{Stage: StageSolution, Err: fmt.Errorf("ai: solution JSON missing %q", key)}
		}
	}

	res := &SolutionResult{Raw: full}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, &StageError{Stage: StageSolution, Err: fmt.Errorf("ai: solution JSON: %w", err)}
	}
	if strings.TrimSpace(res.ImagePrompt) == "" {
		return nil, &StageError{Stage: StageSolution, Err: fmt.Errorf("ai: solution JSON has empty image_prompt")}
	}
	return res, nil
}
