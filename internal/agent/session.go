package agent

import (
	"fmt"
	"time"

	"github.com/cinematic-bot/cinematic/internal/llm"
)

// State is the orchestration state of a session.
type State int

const (
	// StateAwaitingModel means the next step is a completion call.
	StateAwaitingModel State = iota
	// StateExecutingTool means a requested function is being run.
	StateExecutingTool
	// StateFinished means the model produced a final answer.
	StateFinished
	// StateAborted means the session hit the iteration ceiling or a
	// completion failure.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting-model"
	case StateExecutingTool:
		return "executing-tool"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// personaPrompt is the system turn opening every session. Date and
// time are substituted per message.
const personaPrompt = "You are media management assistant called CineMatic, enthusiastic, knowledgeable and passionate about all things media\nYou always run lookups to ensure correct id, do not rely on chat history, if the data you have received does not contain what you need you reply with the truthful answer of unknown, responses should all be on one line (with comma separation) and compact language, use emojis to express emotion to the user. The current date is %s, the current time is %s"

// Session is one run of the orchestration loop for a single inbound
// user message. It is owned exclusively by that run and discarded when
// the run terminates; the rendered transcript in the platform message
// is the only persistent trace.
type Session struct {
	// UserName identifies the requester; merged into every dispatch.
	UserName string
	// HistoryText is the rendered transcript prefix (prior turns plus
	// the current user line) that progress edits build on.
	HistoryText string
	// Messages is the conversation sent to the model, append-only.
	Messages []llm.Message
	// Progress accumulates per-tool status lines.
	Progress string
	// Iterations counts completed tool-call rounds.
	Iterations int
	// State is the current machine state.
	State State
	// FinalText is the terminal answer once State is StateFinished.
	FinalText string
}

// NewSession prepares a session: persona system turn, optional
// condensed prior-history turn, then the user turn.
func NewSession(userName, userText string, history []llm.Message, now time.Time) *Session {
	messages := []llm.Message{
		{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(personaPrompt, now.Format("02/01/2006"), now.Format("15:04")),
		},
	}
	if len(history) > 0 {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Message history:\n" + historyForModel(history),
		})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	return &Session{
		UserName:    userName,
		HistoryText: HistoryText(history, userText),
		Messages:    messages,
		State:       StateAwaitingModel,
	}
}

// Transcript renders the current transcript: history, progress lines,
// and the final answer once finished.
func (s *Session) Transcript() string {
	out := s.HistoryText + s.Progress
	if s.State == StateFinished {
		out += FinalMarker + " " + s.FinalText
	}
	return out
}
