package memories

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

// Few-shot transcripts teaching the cheap model how to read and
// rewrite memory summaries. The examples keep summaries terse and
// show removal as well as addition.
var readExamples = []llm.Message{
	{Role: llm.RoleUser, Content: "You are a memory access assistant, you view a memory file and query it for information"},
	{Role: llm.RoleUser, Content: "memories:requested all 7 abc movies, enjoyed eastworld"},
	{Role: llm.RoleUser, Content: "user requested abc movie 2?"},
	{Role: llm.RoleAssistant, Content: "yes user requested abc 2"},
	{Role: llm.RoleUser, Content: "user requested eastworld?"},
	{Role: llm.RoleAssistant, Content: "no user has not requested eastworld, but they mentioned they enjoyed it"},
	{Role: llm.RoleUser, Content: "the above are examples, do you understand?"},
	{Role: llm.RoleAssistant, Content: "yes I understand those are examples and future messages are the real ones"},
}

var writeExamples = []llm.Message{
	{Role: llm.RoleUser, Content: "You are a memory writer assistant, you view a memory file and update it with information, you write extremely brief summaries"},
	{Role: llm.RoleUser, Content: "memories:enjoyed movie puppet 1, wants series eastworld"},
	{Role: llm.RoleUser, Content: "Add 'loved movie stingate 1995'"},
	{Role: llm.RoleAssistant, Content: "enjoyed movie puppet 1 and loved movie stingate 1995, wants series eastworld"},
	{Role: llm.RoleUser, Content: "Add 'doesnt want series eastworld'"},
	{Role: llm.RoleAssistant, Content: "enjoyed movie puppet 1 and loved movie stingate 1995"},
	{Role: llm.RoleUser, Content: "the above are examples, do you understand?"},
	{Role: llm.RoleAssistant, Content: "yes I understand those are examples and future messages are the real ones"},
}

// Service exposes the memory functions to the model.
type Service struct {
	store     *Store
	completer llm.Completer
	model     string
	logger    *slog.Logger
}

// NewService creates the memories service.
func NewService(store *Store, completer llm.Completer, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, completer: completer, model: model, logger: logger}
}

// Tools returns the memory function definitions.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "memory_get",
			Description: "Queries the user's memory file for information about them, their preferences and past requests",
			Params: []tools.Param{
				{Name: "query", Description: "A question about the user, for example \"Has the user requested Cats?\"", Required: true},
			},
			Handler: s.Get,
		},
		{
			Name:        "memory_update",
			Description: "Adds a fact about the user to their memory file, for example that they requested or enjoyed a piece of media",
			Params: []tools.Param{
				{Name: "memory", Description: "The fact to remember, phrased briefly, for example \"loved movie Stingate 1995\"", Required: true},
			},
			Handler: s.Update,
		},
	}
}

// Get answers a question against the user's stored memories.
func (s *Service) Get(ctx context.Context, args map[string]string) (string, error) {
	userName := args[tools.UserNameArg]
	query := args["query"]
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	summary, err := s.store.Summary(ctx, userName)
	if err != nil {
		return "", err
	}
	if summary == "" {
		return "no memories", nil
	}

	messages := append(append([]llm.Message{}, readExamples...),
		llm.Message{Role: llm.RoleUser, Content: "memories:" + summary},
		llm.Message{Role: llm.RoleUser, Content: query},
	)
	resp, err := s.completer.Complete(ctx, llm.Request{Model: s.model, Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.First().Content, nil
}

// Update folds a new fact into the user's memory summary.
func (s *Service) Update(ctx context.Context, args map[string]string) (string, error) {
	userName := args[tools.UserNameArg]
	memory := args["memory"]
	if memory == "" {
		return "", fmt.Errorf("memory is required")
	}

	summary, err := s.store.Summary(ctx, userName)
	if err != nil {
		return "", err
	}

	messages := append(append([]llm.Message{}, writeExamples...),
		llm.Message{Role: llm.RoleUser, Content: "memories:" + summary},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Add '%s'", memory)},
	)
	resp, err := s.completer.Complete(ctx, llm.Request{Model: s.model, Messages: messages})
	if err != nil {
		return "", err
	}

	updated := strings.TrimSpace(resp.First().Content)
	if err := s.store.SetSummary(ctx, userName, updated); err != nil {
		return "", err
	}
	return "Memory updated", nil
}
