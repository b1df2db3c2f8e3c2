// Package reply parses a model's free-text reply into the spoken message and
// an optional list of suggested user replies.
package reply

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// SuggestionSentinel marks a line carrying a JSON array of suggested replies,
// e.g. `SUGGESTIONS:["Yes, please.","Not right now."]`.
const SuggestionSentinel = "SUGGESTIONS:"

// ParsedReply is the typed form of a raw model reply. Derived, never persisted.
type ParsedReply struct {
	MessageText string
	Suggestions []string
}

// Parse splits raw into the spoken message and suggestions. It is total: it
// never fails, only degrades to empty suggestions on malformed input, and
// MessageText is empty only when raw is entirely blank.
func Parse(raw string) ParsedReply {
	var (
		textLines   []string
		suggestions []string
	)

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, SuggestionSentinel) {
			payload := strings.TrimSpace(strings.TrimPrefix(trimmed, SuggestionSentinel))
			var decoded []string
			if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
				// Malformed suggestion payloads are discarded rather than
				// leaking protocol text into the spoken message.
				slog.Debug("discarding malformed suggestions line", "error", err)
				continue
			}
			suggestions = decoded
			continue
		}

		textLines = append(textLines, trimmed)
	}

	messageText := strings.Join(textLines, " ")
	if messageText == "" {
		messageText = strings.TrimSpace(raw)
	}

	return ParsedReply{
		MessageText: messageText,
		Suggestions: suggestions,
	}
}
