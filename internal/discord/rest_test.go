package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRestCreateReply(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/123/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Message{ID: "999", ChannelID: "123"})
	}))
	defer srv.Close()

	rest := NewRest("tok", WithRestBaseURL(srv.URL))
	msg, err := rest.CreateReply(context.Background(), "123", "456", "hello")
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if msg.ID != "999" {
		t.Errorf("message id = %q", msg.ID)
	}
	if gotAuth != "Bot tok" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody["content"] != "hello" {
		t.Errorf("content = %v", gotBody["content"])
	}
	ref, ok := gotBody["message_reference"].(map[string]any)
	if !ok || ref["message_id"] != "456" {
		t.Errorf("message_reference = %v", gotBody["message_reference"])
	}
}

func TestRestEditMessage(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rest := NewRest("tok", WithRestBaseURL(srv.URL))
	if err := rest.EditMessage(context.Background(), "123", "999", "updated"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/channels/123/messages/999" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Access"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	rest := NewRest("tok", WithRestBaseURL(srv.URL))
	_, err := rest.GetMessage(context.Background(), "123", "999")
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
