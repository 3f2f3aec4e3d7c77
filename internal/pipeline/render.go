package pipeline

import (
	"fmt"
	"strings"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
)

// renderSolution formats a solution as the text block written to the session
// log and fed back into the dialogue as assistant context.
func renderSolution(s *ai.SolutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【方案名称】%s\n", s.ProjectName)
	fmt.Fprintf(&b, "【目标用户】%s\n", s.TargetUser)
	fmt.Fprintf(&b, "【难度】%s\n", s.Difficulty)
	fmt.Fprintf(&b, "【核心创意】%s\n", s.CoreIdea)

	b.WriteString("【所需材料】\n")
	for _, m := range s.Materials {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("【制作步骤】\n")
	for i, step := range s.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("【学习收获】\n")
	for _, o := range s.LearningOutcomes {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	return strings.TrimRight(b.String(), "\n")
}

// chatSystemPrompt seeds the voice dialogue with the plan the student is
// looking at, so replies stay anchored to it.
func chatSystemPrompt(s *ai.SolutionResult) string {
	return "你是一名创客导师，正在和学生讨论如何改进下面的制作方案。请用简短的中文口语回答学生的问题。\n\n" +
		renderSolution(s)
}
