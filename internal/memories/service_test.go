package memories

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

type cannedCompleter struct {
	reply   string
	lastReq llm.Request
}

func (m *cannedCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.lastReq = req
	return &llm.Response{
		Choices: []llm.Choice{{Message: llm.Message{Role: llm.RoleAssistant, Content: m.reply}}},
	}, nil
}

func newTestService(t *testing.T, reply string) (*Service, *cannedCompleter, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	mc := &cannedCompleter{reply: reply}
	return NewService(store, mc, "gpt-3.5-turbo", nil), mc, store
}

func TestGet_NoMemories(t *testing.T) {
	svc, mc, _ := newTestService(t, "should not be called")

	out, err := svc.Get(context.Background(), map[string]string{
		tools.UserNameArg: "alice",
		"query":           "has the user requested Dune?",
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != "no memories" {
		t.Errorf("out = %q", out)
	}
	if len(mc.lastReq.Messages) != 0 {
		t.Error("model should not be called when there are no memories")
	}
}

func TestGet_QueriesStoredSummary(t *testing.T) {
	svc, mc, store := newTestService(t, "yes user requested Dune")
	ctx := context.Background()
	store.SetSummary(ctx, "alice", "requested Dune, enjoyed Blade Runner")

	out, err := svc.Get(ctx, map[string]string{
		tools.UserNameArg: "alice",
		"query":           "has the user requested Dune?",
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != "yes user requested Dune" {
		t.Errorf("out = %q", out)
	}

	msgs := mc.lastReq.Messages
	if len(msgs) < 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if got := msgs[len(msgs)-2].Content; got != "memories:requested Dune, enjoyed Blade Runner" {
		t.Errorf("memories message = %q", got)
	}
	if got := msgs[len(msgs)-1].Content; got != "has the user requested Dune?" {
		t.Errorf("query message = %q", got)
	}
}

func TestUpdate_StoresRewrittenSummary(t *testing.T) {
	svc, mc, store := newTestService(t, "requested Dune, loved movie Stingate 1995")
	ctx := context.Background()
	store.SetSummary(ctx, "alice", "requested Dune")

	out, err := svc.Update(ctx, map[string]string{
		tools.UserNameArg: "alice",
		"memory":          "loved movie Stingate 1995",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if out != "Memory updated" {
		t.Errorf("out = %q", out)
	}

	got, _ := store.Summary(ctx, "alice")
	if got != "requested Dune, loved movie Stingate 1995" {
		t.Errorf("stored summary = %q", got)
	}

	last := mc.lastReq.Messages[len(mc.lastReq.Messages)-1].Content
	if !strings.Contains(last, "Add 'loved movie Stingate 1995'") {
		t.Errorf("prompt = %q", last)
	}
}

func TestTools_Names(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ts := svc.Tools()
	if len(ts) != 2 || ts[0].Name != "memory_get" || ts[1].Name != "memory_update" {
		t.Errorf("tools = %+v", ts)
	}
}
