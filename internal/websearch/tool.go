package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/httpkit"
	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

// maxPageChars caps how much scraped page text is fed to the model.
const maxPageChars = 4096

// noAnswerFallback is returned when no result page yields an answer.
const noAnswerFallback = "Could not find an answer to your question"

// Service answers free-text questions by searching the web and reading
// result pages through a cheap model until one of them answers.
type Service struct {
	searcher   *Searcher
	completer  llm.Completer
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService creates the web search service.
func NewService(searcher *Searcher, completer llm.Completer, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searcher:   searcher,
		completer:  completer,
		model:      model,
		httpClient: httpkit.NewClient(),
		logger:     logger,
	}
}

// Tool returns the web_search function definition.
func (s *Service) Tool() tools.Tool {
	return tools.Tool{
		Name:        "web_search",
		Description: "Search web for query",
		Params: []tools.Param{
			{Name: "query", Description: "A query for information to be answered", Required: true},
		},
		Handler: s.Answer,
	}
}

// Answer searches for the query and walks the results until a page
// yields an answer. Pages that fail to fetch or whose content the
// model judges insufficient are skipped.
func (s *Service) Answer(ctx context.Context, args map[string]string) (string, error) {
	query := args["query"]
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}

	for _, result := range results {
		text := s.fetchText(ctx, result.URL)
		if text == "" {
			continue
		}
		if len(text) > maxPageChars {
			text = text[:maxPageChars]
		}

		prompt := fmt.Sprintf("%s\nAbove is the summary of the website %s, give an answer to '%s', if the context is insufficient, reply 'no answer'", text, result.URL, query)
		resp, err := s.completer.Complete(ctx, llm.Request{
			Model:    s.model,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})
		if err != nil {
			return "", err
		}

		answer := strings.TrimSpace(resp.First().Content)
		if !isNoAnswer(answer) {
			return answer, nil
		}
	}

	return noAnswerFallback, nil
}

func isNoAnswer(answer string) bool {
	switch strings.ToLower(answer) {
	case "no answer", "no answer.", "no answer!":
		return true
	}
	return false
}

func (s *Service) fetchText(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("fetch failed", "url", pageURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpkit.DrainAndClose(resp.Body, 2048)
		return ""
	}

	// A page can be arbitrarily large; read a bounded prefix.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	return pageText(string(raw))
}
