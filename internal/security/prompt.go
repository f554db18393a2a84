package security

import "strings"

// maxPromptInstructionsLen bounds the user-supplied highlight-extraction
// prompt instructions before they reach the Gemini collaborator.
const maxPromptInstructionsLen = 2000

// SanitizePromptInstructions strips control characters and caps length on
// the optional free-text prompt a user attaches to an Analyze job.
func SanitizePromptInstructions(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == ' ' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxPromptInstructionsLen {
		out = out[:maxPromptInstructionsLen]
	}
	return out
}
