// Package agent implements the conversation core: transcript markers,
// the relevance gate, and the function-calling orchestration loop that
// turns one user message into tool invocations and a final answer.
package agent

import (
	"strings"

	"github.com/cinematic-bot/cinematic/internal/llm"
)

// Transcript markers. The bot's reply message doubles as the stored
// conversation history; each line's leading marker identifies its role
// when the transcript is parsed back on a user reply.
const (
	// UserMarker precedes each user turn.
	UserMarker = "💬"
	// HistoryMarker precedes assistant answers from earlier turns.
	HistoryMarker = "☑️"
	// FinalMarker precedes the assistant's final answer of the current
	// turn. A message carrying it is a valid reply anchor.
	FinalMarker = "✅"
	// PendingMarker precedes in-progress status lines.
	PendingMarker = "⌛"
	// RejectedMarker precedes the canned refusal for off-topic input.
	RejectedMarker = "❌"
	// ToolRunMarker precedes per-tool progress lines.
	ToolRunMarker = "🎬"
)

// IsAnchor reports whether a bot message can be replied to: only
// completed transcripts carrying a final answer accept follow-ups.
func IsAnchor(content string) bool {
	return strings.Contains(content, FinalMarker)
}

// ParseHistory rebuilds the conversation from a completed transcript.
// Recognized lines keep their marker in the content, with the final
// answer rewritten to a history marker; unrecognized lines (progress,
// rejections, tool runs) are dropped.
func ParseHistory(content string) []llm.Message {
	var history []llm.Message
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, FinalMarker):
			history = append(history, llm.Message{
				Role:    llm.RoleAssistant,
				Content: strings.TrimSpace(strings.Replace(line, FinalMarker+" ", HistoryMarker+" ", 1)),
			})
		case strings.HasPrefix(line, HistoryMarker):
			history = append(history, llm.Message{
				Role:    llm.RoleAssistant,
				Content: strings.TrimSpace(line),
			})
		case strings.HasPrefix(line, UserMarker):
			history = append(history, llm.Message{
				Role:    llm.RoleUser,
				Content: strings.TrimSpace(line),
			})
		}
	}
	return history
}

// HistoryText renders parsed history plus the new user line as the
// transcript prefix every progress edit and the final render start
// from.
func HistoryText(history []llm.Message, userText string) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString(UserMarker + " " + userText + "\n")
	return b.String()
}

// historyForModel renders prior turns for the system history message,
// with markers swapped for speaker names.
func historyForModel(history []llm.Message) string {
	var lines []string
	for _, m := range history {
		line := m.Content
		line = strings.Replace(line, UserMarker+" ", "User: ", 1)
		line = strings.Replace(line, HistoryMarker+" ", "CineMatic: ", 1)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// UserText flattens all user turns plus the current message into one
// line for the relevance check.
func UserText(history []llm.Message, userText string) string {
	var parts []string
	for _, m := range history {
		if m.Role == llm.RoleUser {
			parts = append(parts, strings.TrimSpace(strings.ReplaceAll(m.Content, UserMarker, "")))
		}
	}
	parts = append(parts, userText)
	return strings.TrimSpace(strings.Join(parts, ", "))
}
