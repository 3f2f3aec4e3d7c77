// Package ai wraps the three remote pipeline stages (vision analysis,
// solution generation, and preview image generation) plus the free-text chat
// mode used by voice refinement. Each adapter is pure modulo network: it takes
// inputs, performs one upstream call (with internal transport retries), and
// returns a structured result or a [StageError].
package ai

// Message is one turn of a chat-mode conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VisionResult is the parsed output of the vision stage. Raw preserves the
// full object as returned upstream, including keys beyond the required three.
type VisionResult struct {
	ProjectTitle       string   `json:"project_title"`
	VisualComponents   []string `json:"visual_components"`
	UserIntentAnalysis string   `json:"user_intent_analysis"`

	Raw map[string]any `json:"-"`
}

// SolutionResult is the parsed output of the solution stage. ImagePrompt is
// the sole input of the preview stage.
type SolutionResult struct {
	ProjectName      string   `json:"project_name"`
	TargetUser       string   `json:"target_user,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty"`
	CoreIdea         string   `json:"core_idea"`
	Materials        []string `json:"materials"`
	Steps            []string `json:"steps"`
	LearningOutcomes []string `json:"learning_outcomes"`
	ImagePrompt      string   `json:"image_prompt"`

	Raw map[string]any `json:"-"`
}
