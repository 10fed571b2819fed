package sanitize

import (
	"regexp"
	"strings"
)

// Replacement marks scrubbed text in the assembled context.
const Replacement = "[removed]"

// Patterns that read as instructions to the generation model rather than
// content. Matched text is replaced, never just flagged, because retrieved
// document chunks and user history both flow into the same prompt.
var injectionPatterns = []*regexp.Regexp{
	// instruction override
	regexp.MustCompile(`(?i)ignore\s+(previous|all|above|prior)\s+(instructions?|prompts?|commands?)`),
	regexp.MustCompile(`(?i)disregard\s+(all|previous|above|any)\s+(instructions?|rules|commands?)`),
	regexp.MustCompile(`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous|your\s+instructions?)`),
	// role manipulation
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\b`),
	regexp.MustCompile(`(?i)assume\s+(the\s+)?(role|identity)\s+of`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+(a|an)\b`),
	regexp.MustCompile(`(?i)from\s+now\s+on[,]?\s+you\s+(are|will)`),
	regexp.MustCompile(`(?i)new\s+(instructions?|role|personality)\s*:`),
	// system prompt leak
	regexp.MustCompile(`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|initial|hidden)\s+(prompt|instructions?)`),
	// delimiter attacks against common chat framings
	regexp.MustCompile(`\[/?(?:SYSTEM|USER|ASSISTANT|INST)\]`),
	regexp.MustCompile(`<\|(?:system|user|assistant|im_start|im_end|end)\|>`),
	regexp.MustCompile(`###\s*(?:SYSTEM|USER|ASSISTANT|INSTRUCTION)\b`),
}

// Scrub removes prompt-injection patterns from free text before it is
// concatenated into a generation prompt. The text's meaning degrades where
// matches are removed; that is acceptable, passing the match through is not.
func Scrub(text string) string {
	if text == "" {
		return text
	}
	for _, re := range injectionPatterns {
		text = re.ReplaceAllString(text, Replacement)
	}
	// Null bytes and other C0 controls have no business in prompt text.
	text = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, text)
	return text
}
