package httpkit

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestNewClient_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithUserAgent("cinematic-test/1.0"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	DrainAndClose(resp.Body, 4096)

	if got != "cinematic-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", got, "cinematic-test/1.0")
	}
}

func TestNewClient_DoesNotOverrideExplicitUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithUserAgent("default-ua"))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit-ua")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	DrainAndClose(resp.Body, 4096)

	if got != "explicit-ua" {
		t.Errorf("User-Agent = %q, want %q", got, "explicit-ua")
	}
}

type fakeTransport struct {
	calls    atomic.Int32
	failures int
	err      error
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if int(n) <= f.failures {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func TestRetryTransport_RetriesRefusedConnection(t *testing.T) {
	base := &fakeTransport{
		failures: 2,
		err:      &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
	}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	DrainAndClose(resp.Body, 64)

	if got := base.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetryTransport_GivesUpAfterCount(t *testing.T) {
	base := &fakeTransport{
		failures: 10,
		err:      &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH},
	}
	rt := &retryTransport{base: base, count: 2, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if got := base.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", got)
	}
}

func TestRetryTransport_SkipsNonRewindableBody(t *testing.T) {
	base := &fakeTransport{
		failures: 10,
		err:      &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
	}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/", io.NopCloser(strings.NewReader("body")))
	req.GetBody = nil
	_, err := rt.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := base.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry without GetBody)", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"host unreachable", syscall.EHOSTUNREACH, true},
		{"net unreachable", syscall.ENETUNREACH, true},
		{"reset", syscall.ECONNRESET, false},
		{"generic", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("server said no"))
	got := ReadErrorBody(body, 1024)
	if got != "server said no" {
		t.Errorf("ReadErrorBody = %q", got)
	}
}
