package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

// maxIterations is the hard ceiling on tool-call rounds per session.
const maxIterations = 10

// progressResultLimit caps tool output shown in progress lines. The
// model always receives the full result.
const progressResultLimit = 150

// maxCompletionTokens bounds each model reply.
const maxCompletionTokens = 512

// ErrIterationLimit is returned when a session aborts at the ceiling.
var ErrIterationLimit = errors.New("iteration limit reached")

// Reporter delivers transcript updates to the conversation surface.
// Progress calls are fire and forget; only the terminal render is
// awaited.
type Reporter interface {
	Report(ctx context.Context, content string) error
}

// Loop is the orchestration state machine, shared read-only across
// concurrent sessions.
type Loop struct {
	completer llm.Completer
	registry  *tools.Registry
	model     string
	logger    *slog.Logger
}

// NewLoop creates the orchestration loop.
func NewLoop(completer llm.Completer, registry *tools.Registry, model string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{completer: completer, registry: registry, model: model, logger: logger}
}

// Run drives one session to a terminal state. Tool failures feed back
// to the model as function results; only completion failures and the
// iteration ceiling abort. The terminal transcript is always rendered,
// with the success marker only on a finished session.
func (l *Loop) Run(ctx context.Context, sess *Session, reporter Reporter) error {
	defer func() {
		// Terminal render. Unlike progress updates this is awaited, so
		// the surface always ends on the last known state.
		if err := reporter.Report(ctx, sess.Transcript()); err != nil {
			l.logger.Warn("terminal render failed", "error", err)
		}
	}()

	for sess.Iterations < maxIterations {
		sess.State = StateAwaitingModel

		resp, err := l.completer.Complete(ctx, llm.Request{
			Model:        l.model,
			MaxTokens:    maxCompletionTokens,
			Messages:     sess.Messages,
			Functions:    l.registry.Definitions(),
			FunctionCall: "auto",
		})
		if err != nil {
			sess.State = StateAborted
			return err
		}

		reply := resp.First()
		if reply.FunctionCall == nil {
			sess.State = StateFinished
			sess.FinalText = reply.Content
			return nil
		}

		sess.State = StateExecutingTool
		name := reply.FunctionCall.Name
		rawArgs := reply.FunctionCall.Arguments

		l.reportAsync(ctx, reporter,
			sess.HistoryText+sess.Progress+fmt.Sprintf("%s Running function %s with arguments %s", PendingMarker, name, rawArgs))

		result := l.execute(ctx, sess, name, rawArgs)

		sess.Progress += fmt.Sprintf("%s Ran function %s %s\n", ToolRunMarker, name, truncateResult(result))
		l.reportAsync(ctx, reporter, sess.HistoryText+sess.Progress)

		sess.Messages = append(sess.Messages, llm.Message{
			Role:    llm.RoleFunction,
			Name:    name,
			Content: result,
		})
		sess.Iterations++
	}

	sess.State = StateAborted
	return ErrIterationLimit
}

// execute dispatches one function call. Every failure mode, including
// unknown names and malformed arguments, is returned as result text so
// the model can recover.
func (l *Loop) execute(ctx context.Context, sess *Session, name, rawArgs string) string {
	args, err := decodeArgs(rawArgs)
	if err != nil {
		l.logger.Debug("malformed function arguments", "function", name, "error", err)
		return fmt.Sprintf("Invalid arguments: %v", err)
	}

	result, err := l.registry.Dispatch(ctx, name, args, sess.UserName)
	if err != nil {
		l.logger.Debug("function returned error", "function", name, "error", err)
		return err.Error()
	}
	return result
}

// reportAsync fires a progress update without blocking the loop. An
// update may race the next loop step; ordering is not guaranteed.
func (l *Loop) reportAsync(ctx context.Context, reporter Reporter, content string) {
	go func() {
		if err := reporter.Report(ctx, content); err != nil {
			l.logger.Debug("progress update failed", "error", err)
		}
	}()
}

// decodeArgs parses the model-produced argument JSON into the flat
// string map handlers take. Non-string values are stringified.
func decodeArgs(raw string) (map[string]string, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	args := make(map[string]string, len(parsed))
	for k, v := range parsed {
		if s, ok := v.(string); ok {
			args[k] = s
		} else {
			args[k] = fmt.Sprint(v)
		}
	}
	return args, nil
}

// truncateResult caps tool output for progress lines, marking the cut.
func truncateResult(s string) string {
	runes := []rune(s)
	if len(runes) <= progressResultLimit {
		return s
	}
	return string(runes[:progressResultLimit]) + "..."
}
