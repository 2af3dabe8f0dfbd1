package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cinematic-bot/cinematic/internal/config"
)

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.Contains(buf.String(), "version:") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.Contains(buf.String(), `"go_version"`) {
		t.Errorf("json output = %q", buf.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "Usage: cinematic") {
		t.Errorf("usage output = %q", buf.String())
	}
}

func TestAssembleRegistryOrder(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.OpenAI.APIKey = "test"
	cfg.Radarr.URL = "http://localhost:7878"
	cfg.Sonarr.URL = "http://localhost:8989"
	cfg.Search.Enabled = true

	comps, err := assemble(cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer comps.close()

	want := []string{
		"web_search",
		"media_lookup",
		"media_add",
		"media_setres",
		"media_remove",
		"media_wanted",
		"media_downloads",
		"memory_get",
		"memory_update",
	}
	got := comps.registry.List()
	if len(got) != len(want) {
		t.Fatalf("registry has %d tools, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Errorf("tool[%d] = %q, want %q", i, tool.Name, want[i])
		}
	}
}

func TestAssembleWithoutSearch(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.OpenAI.APIKey = "test"
	cfg.Radarr.URL = "http://localhost:7878"
	cfg.Search.Enabled = false

	comps, err := assemble(cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer comps.close()

	for _, tool := range comps.registry.List() {
		if tool.Name == "web_search" {
			t.Error("web_search registered despite search being disabled")
		}
	}
}
