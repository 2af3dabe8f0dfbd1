// Package config handles CineMatic configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/cinematic/config.yaml, /etc/cinematic/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cinematic", "config.yaml"))
	}

	paths = append(paths, "/etc/cinematic/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CineMatic configuration.
type Config struct {
	Discord  DiscordConfig `yaml:"discord"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Radarr   ArrConfig     `yaml:"radarr"`
	Sonarr   ArrConfig     `yaml:"sonarr"`
	Search   SearchConfig  `yaml:"search"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// DiscordConfig defines the Discord bot connection settings.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// CommandPrefix gates messages on a leading prefix instead of a
	// mention. Intended for development; empty means mention-gated.
	CommandPrefix string `yaml:"command_prefix"`
}

// OpenAIConfig defines the completion service settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // defaults to the public API endpoint

	// Model runs the orchestration loop (function calling).
	Model string `yaml:"model"`
	// RelevanceModel runs the cheap pre-check classification.
	RelevanceModel string `yaml:"relevance_model"`
	// LookupModel condenses media lookup results and memory queries.
	LookupModel string `yaml:"lookup_model"`
}

// ArrConfig defines a Radarr or Sonarr connection.
type ArrConfig struct {
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api"`
	AuthUser string `yaml:"authuser"`
	AuthPass string `yaml:"authpass"`
}

// SearchConfig defines web search settings for the web_search tool.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
	// BaseURL overrides the search endpoint (for tests and self-hosted
	// instances). Empty uses the public DuckDuckGo HTML endpoint.
	BaseURL string `yaml:"base_url"`
	// MaxResults caps how many result pages are scraped per query.
	MaxResults int `yaml:"max_results"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required to serve are present.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Radarr.URL == "" && c.Sonarr.URL == "" {
		return fmt.Errorf("at least one of radarr.url or sonarr.url is required")
	}
	return nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:          "gpt-4-0613",
			RelevanceModel: "gpt-3.5-turbo",
			LookupModel:    "gpt-3.5-turbo",
		},
		Search: SearchConfig{
			Enabled:    true,
			MaxResults: 8,
		},
		DataDir:  "data",
		LogLevel: "info",
	}
}
