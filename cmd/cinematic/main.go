// CineMatic is a Discord media management bot.
//
// It bridges Discord chat with a function-calling language model and
// the Radarr/Sonarr media managers: users mention the bot to look up,
// add, reconfigure, and remove movies and series, ask what the servers
// hold, search the web, and have the bot remember their preferences.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	cinematic serve            Connect to Discord and serve messages
//	cinematic init [dir]       Initialize a working directory with defaults
//	cinematic ask <question>   Run a single question through the agent loop
//	cinematic usage            Print token usage and cost totals
//	cinematic version          Print version and build information
//	cinematic -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cinematic-bot/cinematic/internal/agent"
	"github.com/cinematic-bot/cinematic/internal/arr"
	"github.com/cinematic-bot/cinematic/internal/buildinfo"
	"github.com/cinematic-bot/cinematic/internal/config"
	"github.com/cinematic-bot/cinematic/internal/discord"
	"github.com/cinematic-bot/cinematic/internal/httpkit"
	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/media"
	"github.com/cinematic-bot/cinematic/internal/memories"
	"github.com/cinematic-bot/cinematic/internal/tools"
	"github.com/cinematic-bot/cinematic/internal/usage"
	"github.com/cinematic-bot/cinematic/internal/websearch"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand; the flag
// package relies on package-level globals, which makes it impossible
// to call run() concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: cinematic ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "usage":
		return runUsage(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "CineMatic - Discord Media Management Bot")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: cinematic [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to Discord and serve messages")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Run a single question through the agent loop")
	fmt.Fprintln(w, "  usage        Print token usage and cost totals")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/cinematic/config.yaml, /etc/cinematic/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// components holds everything assembled from config that both serve
// and ask need.
type components struct {
	completer  *llm.Client
	registry   *tools.Registry
	memStore   *memories.Store
	usageStore *usage.Store
	radarr     *arr.Client
	sonarr     *arr.Client
	closers    []func() error
}

func (c *components) close() {
	for _, fn := range c.closers {
		_ = fn()
	}
}

// assemble builds the clients, stores, services, and the tool registry
// from configuration.
func assemble(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	usageStore, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"), logger)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	c.usageStore = usageStore
	c.closers = append(c.closers, usageStore.Close)

	llmOpts := []llm.Option{
		llm.WithLogger(logger),
		llm.WithRecorder(usageStore),
		llm.WithHTTPClient(httpkit.NewClient(
			httpkit.WithTimeout(2*time.Minute),
			httpkit.WithLogger(logger),
		)),
	}
	if cfg.OpenAI.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	c.completer = llm.NewClient(cfg.OpenAI.APIKey, llmOpts...)

	memStore, err := memories.NewStore(filepath.Join(cfg.DataDir, "memories.db"))
	if err != nil {
		c.close()
		return nil, fmt.Errorf("open memories store: %w", err)
	}
	c.memStore = memStore
	c.closers = append(c.closers, memStore.Close)

	arrHTTP := httpkit.NewClient(
		httpkit.WithTimeout(30*time.Second),
		httpkit.WithUserAgent(buildinfo.UserAgent()),
		httpkit.WithRetry(2, time.Second),
		httpkit.WithLogger(logger),
	)
	if cfg.Radarr.URL != "" {
		c.radarr = arr.NewClient(arr.Radarr, cfg.Radarr.URL, cfg.Radarr.APIKey,
			arr.WithHTTPClient(arrHTTP),
			arr.WithLogger(logger),
			arr.WithBasicAuth(cfg.Radarr.AuthUser, cfg.Radarr.AuthPass))
	}
	if cfg.Sonarr.URL != "" {
		c.sonarr = arr.NewClient(arr.Sonarr, cfg.Sonarr.URL, cfg.Sonarr.APIKey,
			arr.WithHTTPClient(arrHTTP),
			arr.WithLogger(logger),
			arr.WithBasicAuth(cfg.Sonarr.AuthUser, cfg.Sonarr.AuthPass))
	}

	var catalog []tools.Tool

	if cfg.Search.Enabled {
		searchOpts := []websearch.SearcherOption{websearch.WithLogger(logger)}
		if cfg.Search.BaseURL != "" {
			searchOpts = append(searchOpts, websearch.WithEndpoint(cfg.Search.BaseURL))
		}
		searcher := websearch.NewSearcher(cfg.Search.MaxResults, searchOpts...)
		search := websearch.NewService(searcher, c.completer, cfg.OpenAI.LookupModel, logger)
		catalog = append(catalog, search.Tool())
	}

	mediaSvc := media.New(c.radarr, c.sonarr, c.completer, cfg.OpenAI.LookupModel, logger)
	catalog = append(catalog, mediaSvc.Tools()...)

	memSvc := memories.NewService(memStore, c.completer, cfg.OpenAI.LookupModel, logger)
	catalog = append(catalog, memSvc.Tools()...)

	registry, err := tools.NewRegistry(catalog...)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	c.registry = registry

	return c, nil
}

// runServe connects the gateway and serves messages until the process
// receives an interrupt.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info("starting cinematic",
		"version", buildinfo.Version,
		"config", cfgPath,
	)

	comps, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := discord.NewRest(cfg.Discord.Token, discord.WithRestLogger(logger))
	me, err := rest.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("discord authentication failed: %w", err)
	}
	logger.Info("discord authenticated", "user", me.Username, "user_id", me.ID)

	loop := agent.NewLoop(comps.completer, comps.registry, cfg.OpenAI.Model, logger)
	filter := agent.NewFilter(comps.completer, cfg.OpenAI.RelevanceModel, logger)

	var syncers []discord.TagSyncer
	if comps.radarr != nil {
		syncers = append(syncers, comps.radarr)
	}
	if comps.sonarr != nil {
		syncers = append(syncers, comps.sonarr)
	}

	bridge := discord.NewBridge(discord.BridgeConfig{
		Messenger:     rest,
		Runner:        loop,
		Relevance:     filter,
		Store:         comps.memStore,
		Completer:     comps.completer,
		NameModel:     cfg.OpenAI.Model,
		TagSyncers:    syncers,
		BotUserID:     me.ID,
		CommandPrefix: cfg.Discord.CommandPrefix,
		Logger:        logger,
	})

	gateway := discord.NewGateway(cfg.Discord.Token, discord.WithGatewayLogger(logger))
	go gateway.Run(ctx)

	bridge.Start(ctx, gateway.Messages())

	logger.Info("cinematic stopped")
	return nil
}

// runAsk runs a single question through the relevance gate and the
// agent loop, printing the transcript to stdout.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, slog.LevelWarn)
	logger.Info("config loaded", "path", cfgPath)

	comps, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.close()

	filter := agent.NewFilter(comps.completer, cfg.OpenAI.RelevanceModel, logger)
	relevant, err := filter.IsRelevant(ctx, question)
	if err != nil {
		return fmt.Errorf("relevance check: %w", err)
	}
	if !relevant {
		fmt.Fprintln(stdout, "Not a media question.")
		return nil
	}

	loop := agent.NewLoop(comps.completer, comps.registry, cfg.OpenAI.Model, logger)
	sess := agent.NewSession("cli", question, nil, time.Now())

	err = loop.Run(ctx, sess, nopReporter{})
	fmt.Fprint(stdout, sess.Transcript())
	if !strings.HasSuffix(sess.Transcript(), "\n") {
		fmt.Fprintln(stdout)
	}
	return err
}

// nopReporter discards intermediate renders; the final transcript is
// printed by runAsk once the loop terminates.
type nopReporter struct{}

func (nopReporter) Report(context.Context, string) error { return nil }

// runUsage prints aggregated token usage and cost.
func runUsage(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"), slog.Default())
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer store.Close()

	total, err := store.Summarize(ctx, time.Time{})
	if err != nil {
		return err
	}
	byModel, err := store.ByModel(ctx, time.Time{})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Completions: %d\n", total.TotalRecords)
	fmt.Fprintf(stdout, "Prompt tokens: %d\n", total.TotalPromptTokens)
	fmt.Fprintf(stdout, "Completion tokens: %d\n", total.TotalCompletionTokens)
	fmt.Fprintf(stdout, "Total cost: $%.4f\n", total.TotalCostUSD)

	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		sum := byModel[m]
		fmt.Fprintf(stdout, "  %-24s %d calls, $%.4f\n", m, sum.TotalRecords, sum.TotalCostUSD)
	}
	return nil
}
