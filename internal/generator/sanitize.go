package generator

import (
	"regexp"
	"strings"
)

// turnMarkerPattern matches the "[Turn N]" labels the transcript is rendered with.
var turnMarkerPattern = regexp.MustCompile(`\[Turn\s+\d+\]\s*`)

// sanitizeReply strips transcript markers a model copies from its prompt, and a
// leading "Name:" self-attribution. Returns the cleaned content and how many
// markers were removed.
func sanitizeReply(agentName, content string) (string, int) {
	count := len(turnMarkerPattern.FindAllStringIndex(content, -1))
	if count > 0 {
		content = turnMarkerPattern.ReplaceAllString(content, "")
	}

	content = strings.TrimSpace(content)
	if agentName != "" {
		prefix := agentName + ":"
		if len(content) >= len(prefix) && strings.EqualFold(content[:len(prefix)], prefix) {
			content = strings.TrimSpace(content[len(prefix):])
			count++
		}
	}
	return content, count
}
