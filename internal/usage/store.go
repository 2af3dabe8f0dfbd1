// Package usage provides persistent token usage and cost tracking for
// chat completion calls. Records are append-only; the store doubles as
// the llm recorder hook.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cinematic-bot/cinematic/internal/llm"
)

// Per-1k-token prices in USD. Models are matched by substring so dated
// snapshots like gpt-4-0613 pick up the base model's price.
var pricing = map[string]struct{ prompt, completion float64 }{
	"gpt-3.5-turbo": {0.002, 0.002},
	"gpt-4":         {0.03, 0.06},
}

// Cost computes the USD cost of one completion. Unknown models are
// priced as gpt-4, the most expensive tier.
func Cost(model string, promptTokens, completionTokens int) float64 {
	price := pricing["gpt-4"]
	for name, p := range pricing {
		if strings.Contains(model, name) {
			price = p
			break
		}
	}
	return float64(promptTokens)*price.prompt/1000 + float64(completionTokens)*price.completion/1000
}

// Record is one completion's usage.
type Record struct {
	ID               string
	Timestamp        time.Time
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Summary holds aggregated totals.
type Summary struct {
	TotalRecords          int
	TotalPromptTokens     int64
	TotalCompletionTokens int64
	TotalCostUSD          float64
}

// Store is an append-only SQLite ledger. Safe for concurrent use;
// SQLite serializes writes.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a usage store at the given database path.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id                TEXT PRIMARY KEY,
		timestamp         TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		cost_usd          REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements the completion usage hook. Failures are logged and
// swallowed; bookkeeping must never fail a conversation.
func (s *Store) Record(ctx context.Context, model string, u llm.Usage) {
	rec := Record{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		Model:            model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CostUSD:          Cost(model, u.PromptTokens, u.CompletionTokens),
	}
	if err := s.insert(ctx, rec); err != nil {
		s.logger.Warn("recording usage failed", "model", model, "error", err)
	}
}

func (s *Store) insert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, timestamp, model, prompt_tokens, completion_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.Format(time.RFC3339Nano), r.Model,
		r.PromptTokens, r.CompletionTokens, r.CostUSD)
	return err
}

// Summarize aggregates all records since the given time. A zero time
// aggregates everything.
func (s *Store) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM usage_records WHERE timestamp >= ?`,
		since.UTC().Format(time.RFC3339Nano)).
		Scan(&sum.TotalRecords, &sum.TotalPromptTokens, &sum.TotalCompletionTokens, &sum.TotalCostUSD)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize usage: %w", err)
	}
	return sum, nil
}

// ByModel aggregates usage per model since the given time.
func (s *Store) ByModel(ctx context.Context, since time.Time) (map[string]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM usage_records WHERE timestamp >= ?
		GROUP BY model`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("usage by model: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Summary)
	for rows.Next() {
		var model string
		var sum Summary
		if err := rows.Scan(&model, &sum.TotalRecords, &sum.TotalPromptTokens,
			&sum.TotalCompletionTokens, &sum.TotalCostUSD); err != nil {
			return nil, err
		}
		out[model] = sum
	}
	return out, rows.Err()
}
