package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionJSON(content string) string {
	resp := Response{
		ID:    "chatcmpl-test",
		Model: "gpt-4-0613",
		Choices: []Choice{
			{Message: Message{Role: RoleAssistant, Content: content}, FinishReason: "stop"},
		},
		Usage: Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestComplete_Success(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionJSON("hello there")))
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.Complete(context.Background(), Request{
		Model:    "gpt-4-0613",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := resp.First().Content; got != "hello there" {
		t.Errorf("content = %q, want %q", got, "hello there")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4-0613" {
		t.Errorf("model = %q", gotReq.Model)
	}
}

func TestComplete_RetriesThreeTimesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{Model: "gpt-4-0613"})
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *CompletionError", err)
	}
	if ce.Model != "gpt-4-0613" {
		t.Errorf("CompletionError.Model = %q", ce.Model)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestComplete_RecoversOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write([]byte(completionJSON("recovered")))
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.Complete(context.Background(), Request{Model: "gpt-3.5-turbo"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.First().Content != "recovered" {
		t.Errorf("content = %q", resp.First().Content)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

type captureRecorder struct {
	model string
	usage Usage
	hits  int
}

func (r *captureRecorder) Record(_ context.Context, model string, usage Usage) {
	r.model = model
	r.usage = usage
	r.hits++
}

func TestComplete_RecordsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("ok")))
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	c := NewClient("sk-test", WithBaseURL(srv.URL), WithRecorder(rec))
	if _, err := c.Complete(context.Background(), Request{Model: "gpt-4-0613"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if rec.hits != 1 {
		t.Fatalf("recorder hits = %d, want 1", rec.hits)
	}
	if rec.model != "gpt-4-0613" {
		t.Errorf("recorded model = %q", rec.model)
	}
	if rec.usage.TotalTokens != 15 {
		t.Errorf("recorded total tokens = %d, want 15", rec.usage.TotalTokens)
	}
}

func TestComplete_ParsesFunctionCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Response{
			Model: "gpt-4-0613",
			Choices: []Choice{{
				Message: Message{
					Role: RoleAssistant,
					FunctionCall: &FunctionCall{
						Name:      "media_lookup",
						Arguments: `{"format":"movie","searches":"Dune"}`,
					},
				},
				FinishReason: "function_call",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.Complete(context.Background(), Request{Model: "gpt-4-0613"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	fc := resp.First().FunctionCall
	if fc == nil {
		t.Fatal("expected function call")
	}
	if fc.Name != "media_lookup" {
		t.Errorf("function name = %q", fc.Name)
	}
	if fc.Arguments != `{"format":"movie","searches":"Dune"}` {
		t.Errorf("arguments = %q", fc.Arguments)
	}
}

func TestInfoQuery(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(completionJSON("parsed answer")))
	}))
	defer srv.Close()

	c := NewClient("sk-test", WithBaseURL(srv.URL))
	got, err := InfoQuery(context.Background(), c, "gpt-3.5-turbo", "you are a parser", "parse this")
	if err != nil {
		t.Fatalf("InfoQuery: %v", err)
	}
	if got != "parsed answer" {
		t.Errorf("answer = %q", got)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != RoleSystem || gotReq.Messages[1].Role != RoleUser {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}
