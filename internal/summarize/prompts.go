package summarize

import (
	"fmt"
	"strings"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

const basePrompt = `You summarize transcripts of spoken recordings: meetings, lectures, interviews and voice notes.

Requirements:
- Start with a one sentence overview of what the recording is about
- List the main points in the order they were discussed
- Call out decisions, action items and owners when they are mentioned
- Keep names, numbers and technical terms exactly as spoken
- Use markdown: headings, bullet points, bold for key terms
- Do not invent content that is not in the transcript
- Transcripts may contain "Speaker N:" labels; they come from a heuristic, not real speaker identification`

var lengthGuidance = map[types.Length]string{
	types.LengthBrief:    "Be brief: an overview sentence and at most five bullet points.",
	types.LengthStandard: "Write a standard summary: an overview, the main points and any action items.",
	types.LengthDetailed: "Write a detailed summary: cover every topic with supporting detail, then list decisions and action items.",
}

// SystemPrompt returns the system prompt for a whole-transcript summary.
func SystemPrompt(l types.Length) string {
	return basePrompt + "\n\n" + guidance(l) + fmt.Sprintf("\nStay under %d characters.", l.MaxChars())
}

// ChunkPrompt returns the system prompt for one window of a long
// transcript. Windows are always summarized briefly.
func ChunkPrompt(index, total int) string {
	return basePrompt + "\n\n" + fmt.Sprintf(
		"This is part %d of %d of a longer transcript. Consecutive parts overlap slightly. "+
			"Summarize only this part. %s", index+1, total, guidance(types.LengthBrief))
}

// CombinePrompt returns the system prompt for merging partial summaries.
func CombinePrompt(l types.Length, parts int) string {
	return basePrompt + "\n\n" + fmt.Sprintf(
		"You are given %d partial summaries of consecutive parts of one recording, in order. "+
			"Merge them into one coherent summary: remove duplicates caused by overlapping parts, "+
			"keep chronological order and do not mention the parts. %s", parts, guidance(l)) +
		fmt.Sprintf("\nStay under %d characters.", l.MaxChars())
}

func guidance(l types.Length) string {
	if g, ok := lengthGuidance[l]; ok {
		return g
	}
	return lengthGuidance[types.LengthStandard]
}

// joinPartials formats partial summaries as the combine call's input.
func joinPartials(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Part %d ---\n%s", i+1, strings.TrimSpace(p))
	}
	return b.String()
}
