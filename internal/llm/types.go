// Package llm implements a chat completion client for OpenAI-compatible
// endpoints, including function calling and multi-sample completions.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message roles in a chat completion conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message is one entry in a chat conversation.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// FunctionCall is the model's request to invoke a registered function.
// Arguments is the raw JSON string produced by the model; it may be
// malformed and must be validated by the caller.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionDef describes one callable function advertised to the model.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a chat completion request.
type Request struct {
	Model     string        `json:"model"`
	Messages  []Message     `json:"messages"`
	Functions []FunctionDef `json:"functions,omitempty"`
	// FunctionCall controls function invocation; "auto" lets the model
	// decide. Left empty when no functions are supplied.
	FunctionCall string  `json:"function_call,omitempty"`
	N            int     `json:"n,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Choice is one sampled completion.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a chat completion response.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// First returns the first choice's message, or a zero Message when the
// response carries no choices.
func (r *Response) First() Message {
	if len(r.Choices) == 0 {
		return Message{}
	}
	return r.Choices[0].Message
}

// CompletionError wraps a failure to obtain a completion after all
// retry attempts. It is the only LLM-side error that aborts a
// conversation turn.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed for model %s: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Completer is the interface consumed by the agent loop and tools.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Recorder receives usage data for every successful completion.
type Recorder interface {
	Record(ctx context.Context, model string, usage Usage)
}
