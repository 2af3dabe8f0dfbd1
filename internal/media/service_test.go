package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cinematic-bot/cinematic/internal/arr"
	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/tools"
)

// mockCompleter returns canned replies and records what it was asked.
type mockCompleter struct {
	reply    string
	requests []llm.Request
}

func (m *mockCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	return &llm.Response{
		Choices: []llm.Choice{{Message: llm.Message{Role: llm.RoleAssistant, Content: m.reply}}},
	}, nil
}

func newRadarrStub(t *testing.T, mux *http.ServeMux) *arr.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return arr.NewClient(arr.Radarr, srv.URL, "key")
}

func args(kv ...string) map[string]string {
	m := map[string]string{tools.UserNameArg: "alice"}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func TestLookup_AsksParserModelWithBasics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"}]`))
	})
	mux.HandleFunc("/api/v3/movie/lookup", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Cats","year":2019,"status":"released","tmdbId":545611,"tags":[]}]`))
	})
	radarr := newRadarrStub(t, mux)

	mc := &mockCompleter{reply: "{Cats;unavailable;release 2019;tmdbId 545611}"}
	svc := New(radarr, nil, mc, "gpt-3.5-turbo", nil)

	out, err := svc.Lookup(context.Background(),
		args("format", "movie", "searches", "Cats", "query", "What is Cats movie tmdbId?"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !strings.Contains(out, "tmdbId 545611") {
		t.Errorf("answer = %q", out)
	}

	if len(mc.requests) != 1 {
		t.Fatalf("parser calls = %d, want 1", len(mc.requests))
	}
	prompt := mc.requests[0].Messages[1].Content
	for _, want := range []string{"Cats", "status released year 2019", "unavailable on the server", "tmdbId 545611", ";title", ";year", ";availability"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("parser prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestLookup_NoResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v3/movie/lookup", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Lookup(context.Background(),
		args("format", "movie", "searches", "Zzyzx", "query", "on server?"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !strings.Contains(out, "No results") {
		t.Errorf("out = %q", out)
	}
}

func TestLookup_UnknownFormat(t *testing.T) {
	svc := New(nil, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)
	_, err := svc.Lookup(context.Background(), args("format", "vinyl"))
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestAdd_NewMovieTaggedWithUser(t *testing.T) {
	var posted arr.Record
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"}]`))
	})
	mux.HandleFunc("/api/v3/movie/lookup/tmdb", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Cats","year":2019,"tmdbId":545611}`))
	})
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected %s /api/v3/movie", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&posted)
		w.Write([]byte(`{}`))
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Add(context.Background(),
		args("format", "movie", "db_id", "545611", "quality", "1080p"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.Contains(out, "Added Cats in 1080p") {
		t.Errorf("out = %q", out)
	}
	if posted["qualityProfileId"] != float64(4) {
		t.Errorf("qualityProfileId = %v", posted["qualityProfileId"])
	}
	tags, _ := posted["tags"].([]any)
	if len(tags) != 1 || tags[0] != float64(7) {
		t.Errorf("tags = %v", posted["tags"])
	}
}

func TestAdd_ExistingMovieOnlyTagged(t *testing.T) {
	var put arr.Record
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"},{"id":8,"label":"added-bob"}]`))
	})
	mux.HandleFunc("/api/v3/movie/lookup/tmdb", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":12,"title":"Dune","year":2021,"tmdbId":438631,"tags":[8]}`))
	})
	mux.HandleFunc("/api/v3/movie/12", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":12,"title":"Dune","tags":[8]}`))
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&put)
			w.Write([]byte(`{}`))
		}
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Add(context.Background(),
		args("format", "movie", "db_id", "438631", "quality", "1080p"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.Contains(out, "already on the server") {
		t.Errorf("out = %q", out)
	}
	tags, _ := put["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("tags after update = %v", put["tags"])
	}
}

func TestSetRes(t *testing.T) {
	var put arr.Record
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie/6", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":6,"title":"Iron Man 2","qualityProfileId":5}`))
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&put)
			w.Write([]byte(`{}`))
		}
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.SetRes(context.Background(),
		args("format", "movie", "id", "6", "quality", "720p"))
	if err != nil {
		t.Fatalf("SetRes: %v", err)
	}
	if !strings.Contains(out, "720p") {
		t.Errorf("out = %q", out)
	}
	if put["qualityProfileId"] != float64(3) {
		t.Errorf("qualityProfileId = %v", put["qualityProfileId"])
	}
}

func TestRemove_SoleRequesterDeletes(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"}]`))
	})
	mux.HandleFunc("/api/v3/movie/12", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":12,"title":"Dune","tags":[7]}`))
		case http.MethodDelete:
			deleted = true
			w.WriteHeader(http.StatusOK)
		}
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Remove(context.Background(), args("format", "movie", "id", "12"))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !deleted {
		t.Error("expected DELETE")
	}
	if !strings.Contains(out, "Removed Dune from the server") {
		t.Errorf("out = %q", out)
	}
}

func TestRemove_OtherRequestersKeepMedia(t *testing.T) {
	var put arr.Record
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"},{"id":8,"label":"added-bob"}]`))
	})
	mux.HandleFunc("/api/v3/movie/12", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":12,"title":"Dune","tags":[7,8]}`))
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&put)
			w.Write([]byte(`{}`))
		case http.MethodDelete:
			t.Error("media deleted despite another requester")
		}
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Remove(context.Background(), args("format", "movie", "id", "12"))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !strings.Contains(out, "remains on the server") {
		t.Errorf("out = %q", out)
	}
	tags, _ := put["tags"].([]any)
	if len(tags) != 1 || tags[0] != float64(8) {
		t.Errorf("tags after update = %v", put["tags"])
	}
}

func TestWanted_SelfAndNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"label":"added-alice"},{"id":8,"label":"added-bob"}]`))
	})
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"title":"Dune","year":2021,"tags":[7]},
			{"id":2,"title":"Cats","year":2019,"tags":[8]},
			{"id":3,"title":"Heat","year":1995,"tags":[]}
		]`))
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	self, err := svc.Wanted(context.Background(), args("format", "movie", "user", "self"))
	if err != nil {
		t.Fatalf("Wanted self: %v", err)
	}
	if self != "Dune (2021)" {
		t.Errorf("self = %q", self)
	}

	none, err := svc.Wanted(context.Background(), args("format", "movie", "user", "none"))
	if err != nil {
		t.Fatalf("Wanted none: %v", err)
	}
	if none != "Heat (1995)" {
		t.Errorf("none = %q", none)
	}
}

func TestDownloads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/queue", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"title":"Dune Part Two","status":"downloading","timeleft":"00:12:00"}]}`))
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Downloads(context.Background(), args())
	if err != nil {
		t.Fatalf("Downloads: %v", err)
	}
	if !strings.Contains(out, "Dune Part Two downloading time left 00:12:00") {
		t.Errorf("out = %q", out)
	}
}

func TestDownloads_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/queue", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[]}`))
	})
	radarr := newRadarrStub(t, mux)
	svc := New(radarr, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)

	out, err := svc.Downloads(context.Background(), args())
	if err != nil {
		t.Fatalf("Downloads: %v", err)
	}
	if out != "Nothing is downloading" {
		t.Errorf("out = %q", out)
	}
}

func TestTools_CatalogShape(t *testing.T) {
	svc := New(nil, nil, &mockCompleter{}, "gpt-3.5-turbo", nil)
	ts := svc.Tools()

	want := []string{"media_lookup", "media_add", "media_setres", "media_remove", "media_wanted", "media_downloads"}
	if len(ts) != len(want) {
		t.Fatalf("tool count = %d, want %d", len(ts), len(want))
	}
	for i, name := range want {
		if ts[i].Name != name {
			t.Errorf("tool[%d] = %q, want %q", i, ts[i].Name, name)
		}
	}
	if len(ts[5].Params) != 0 {
		t.Errorf("media_downloads should take no parameters, got %d", len(ts[5].Params))
	}
}
