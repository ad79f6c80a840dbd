package llm

import "strings"

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

// StripReasoning removes every <think>...</think> span, repeating until none
// remain. An unclosed opening tag drops the rest of the text; a stray closing
// tag is removed on its own. Text without tags is returned unchanged.
func StripReasoning(text string) string {
	if !strings.Contains(text, reasoningOpen) && !strings.Contains(text, reasoningClose) {
		return text
	}
	for {
		start := strings.Index(text, reasoningOpen)
		if start < 0 {
			break
		}
		rest := text[start+len(reasoningOpen):]
		end := strings.Index(rest, reasoningClose)
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + rest[end+len(reasoningClose):]
	}
	text = strings.ReplaceAll(text, reasoningClose, "")
	return strings.TrimSpace(text)
}

// CleanForSpeech strips reasoning spans and emphasis asterisks so the text
// can be stored and spoken as-is.
func CleanForSpeech(text string) string {
	text = StripReasoning(text)
	text = strings.ReplaceAll(text, "*", "")
	return strings.TrimSpace(text)
}
