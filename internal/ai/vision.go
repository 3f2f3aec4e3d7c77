package ai

import (
	"context"
	"encoding/json"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/sparkbox-kiosk/sparkbox/internal/config"
)

// visionPromptSuffix forces the model to skip Markdown fences so the JSON
// extractor has less to clean up.
const visionPromptSuffix = "\n\n请务必只输出纯 JSON，不要包含 Markdown 标记。"

// VisionAgent calls the multimodal vision endpoint with a sketch image and
// returns the structured scene analysis.
type VisionAgent struct {
	client        oai.Client
	model         string
	prompt        string
	targetMinSize int
}

// NewVisionAgent builds a VisionAgent from the vision stage config.
func NewVisionAgent(cfg config.StageConfig) *VisionAgent {
	return &VisionAgent{
		client:        newClient(cfg),
		model:         cfg.ModelName,
		prompt:        cfg.Prompt,
		targetMinSize: cfg.TargetMinSize,
	}
}

// Analyze sends the image at imagePath to the vision model and parses the
// response into a [VisionResult]. The image is upscaled to the configured
// minimum size before upload.
func (a *VisionAgent) Analyze(ctx context.Context, imagePath string) (*VisionResult, error) {
	b64, err := encodeImageBase64(imagePath, a.targetMinSize)
	if err != nil {
		return nil, &StageError{Stage: StageVision, Err: err}
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(a.prompt+visionPromptSuffix),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/jpeg;base64," + b64,
				}),
			}),
		},
	}

	var content string
	err = withRetry(ctx, func(ctx context.Context) error {
		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("ai: empty choices in vision response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, stageErr(StageVision, err)
	}

	return parseVision(content)
}

// parseVision extracts and validates the vision JSON object.
func parseVision(content string) (*VisionResult, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, &StageError{Stage: StageVision, Err: err}
	}

	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, &StageError{Stage: StageVision, Err: fmt.Errorf("ai: vision JSON: %w", err)}
	}
	for _, key := range []string{"project_title", "visual_components", "user_intent_analysis"} {
		if _, ok := full[key]; !ok {
			return nil, &StageError{Stage: StageVision, Err: fmt.Errorf("ai: vision JSON missing %q", key)}
		}
	}

	res := &VisionResult{Raw: full}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, &StageError{Stage: StageVision, Err: fmt.Errorf("ai: vision JSON: %w", err)}
	}
	return res, nil
}
