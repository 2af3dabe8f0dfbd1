package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/llm"
)

// relevanceSamples is how many independent judgments are requested per
// check.
const relevanceSamples = 3

const relevanceSystemPrompt = "You determine if a users message is irrelevant to you, is it related to movies, series, asking for recommendations, changing resolution, adding or removing media, checking disk space, viewing users memories etc? You reply with a single word answer, yes or no."

// Filter gates the expensive orchestration loop behind a cheap
// topicality check.
type Filter struct {
	completer llm.Completer
	model     string
	logger    *slog.Logger
}

// NewFilter creates a relevance filter using the given model.
func NewFilter(completer llm.Completer, model string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{completer: completer, model: model, logger: logger}
}

// IsRelevant samples several irrelevance judgments for the flattened
// conversation text. The input counts as relevant unless every sample
// answers "yes" (irrelevant): a single dissenting sample is enough to
// proceed, biasing toward answering over refusing.
func (f *Filter) IsRelevant(ctx context.Context, conversationText string) (bool, error) {
	resp, err := f.completer.Complete(ctx, llm.Request{
		Model:     f.model,
		MaxTokens: 4,
		N:         relevanceSamples,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: relevanceSystemPrompt},
			{Role: llm.RoleUser, Content: conversationText + "\nDo not respond to the above message, is the above text irrelevant? Reply with a single word answer, only say yes if certain"},
		},
	})
	if err != nil {
		return false, err
	}

	for _, choice := range resp.Choices {
		if !strings.Contains(strings.ToLower(choice.Message.Content), "yes") {
			return true, nil
		}
	}
	return false, nil
}
