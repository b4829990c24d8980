package agent

import (
	"regexp"
	"strings"
)

// SilentToken is the reply a worker gives when nothing should be sent.
const SilentToken = "NO_REPLY"

var (
	internalBlockPattern = regexp.MustCompile(`(?is)<internal>.*?</internal>`)
	thinkingTagPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
		regexp.MustCompile(`(?is)<thought>.*?</thought>`),
	}
	finalTagPattern          = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)
	leadingBlankLinesPattern = regexp.MustCompile(`^(?:[ \t]*\r?\n)+`)
)

// CleanReply turns a worker's raw result into the text delivered to a chat.
// <internal> blocks and reasoning tags are dropped, repeated paragraphs are
// collapsed, and a silent reply yields "".
func CleanReply(text string) string {
	if text == "" {
		return ""
	}
	text = internalBlockPattern.ReplaceAllString(text, "")
	text = stripThinkingTags(text)
	text = finalTagPattern.ReplaceAllString(text, "")
	text = collapseDuplicateBlocks(text)
	text = leadingBlankLinesPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if IsSilentReply(text) {
		return ""
	}
	return text
}

func stripThinkingTags(text string) string {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return text
	}
	for _, pat := range thinkingTagPatterns {
		text = pat.ReplaceAllString(text, "")
	}
	return text
}

// collapseDuplicateBlocks removes a paragraph identical to the one before it.
func collapseDuplicateBlocks(text string) string {
	blocks := strings.Split(text, "\n\n")
	if len(blocks) <= 1 {
		return text
	}
	result := make([]string, 0, len(blocks))
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}

// IsSilentReply reports whether text is the silent token, alone or at either
// end of the text.
func IsSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if trimmed == SilentToken {
		return true
	}
	if rest, ok := strings.CutPrefix(trimmed, SilentToken); ok && !isWordChar(rest[0]) {
		return true
	}
	if before, ok := strings.CutSuffix(trimmed, SilentToken); ok && !isWordChar(before[len(before)-1]) {
		return true
	}
	return false
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
