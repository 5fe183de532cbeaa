// Package main is the matome CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/corpus"
	"github.com/hyperjump/matome/internal/dedupe"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/knowledge"
	"github.com/hyperjump/matome/internal/llm"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/mutate"
	"github.com/hyperjump/matome/internal/scoring"
	"github.com/hyperjump/matome/internal/selection"
	"github.com/hyperjump/matome/internal/server"
	"github.com/hyperjump/matome/internal/storage"
	"github.com/hyperjump/matome/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/matome/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "matome server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "analyze":
		runAnalyze()
	case "mutate":
		runMutate()
	case "themes":
		runThemes()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("matome version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (assignment passes, LLM calls, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Knowledge.Watch && components.Knowledge != nil {
		w := knowledge.NewWatcher(components.Knowledge, logger)
		if err := w.Start(watchCtx); err != nil {
			logger.Warn("knowledge watcher failed to start", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Engine,
		components.Mutator,
		components.Store,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	query := fs.String("query", "", "refined query describing the analysis focus")
	keywords := fs.String("keywords", "", "comma-separated external keywords")
	maxThemes := fs.Int("max-themes", 0, "cap on proposed candidate themes (0 = default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: matome analyze [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	docs, err := corpus.NewLoader(logger).Load(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load corpus: %v\n", err)
		os.Exit(1)
	}

	req := &engine.AnalyzeRequest{
		Documents:    docs,
		RefinedQuery: *query,
		Keywords:     splitCSV(*keywords),
		MaxThemes:    *maxThemes,
	}
	result, err := components.Engine.Analyze(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printThemes(result.Themes, result.Summary)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printThemes(themes models.ThemeSet, summary models.RunSummary) {
	fmt.Printf("documents:  %d analyzed, %d assigned\n", summary.TotalDocuments, summary.DocumentsAssigned)
	fmt.Printf("themes:     %d considered, %d selected\n", summary.ThemesConsidered, summary.ThemesSelected)
	fmt.Printf("confidence: %.3f average\n", summary.AverageConfidence)
	if summary.NoThemesReason != "" {
		fmt.Printf("note:       %s\n", summary.NoThemesReason)
	}
	for i, theme := range themes {
		fmt.Printf("\n%d. %s (confidence %.3f, %d docs, frequency %d)\n",
			i+1, theme.Name, theme.ConfidenceScore, theme.DocumentCount, theme.Frequency)
		fmt.Printf("   %s\n", theme.Description)
		if len(theme.Keywords) > 0 {
			fmt.Printf("   keywords: %s\n", strings.Join(theme.Keywords, ", "))
		}
		if theme.BooleanQuery != "" {
			fmt.Printf("   query:    %s\n", theme.BooleanQuery)
		}
		for _, sample := range theme.SamplePosts {
			fmt.Printf("   > %s\n", truncateLine(sample, 120))
		}
	}
}

func truncateLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// mutationPayload mirrors the server's mutation request body.
type mutationPayload struct {
	Request   string `json:"request,omitempty"`
	Operation string `json:"operation,omitempty"`
	Target    string `json:"target,omitempty"`
	Recluster bool   `json:"recluster,omitempty"`
}

func runMutate() {
	fs := flag.NewFlagSet("mutate", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8765", "server URL")
	session := fs.String("session", "", "session id (required)")
	operation := fs.String("operation", "", "explicit operation: add_theme, remove_theme, modify_theme, create_sub_theme")
	target := fs.String("target", "", "target theme name for explicit operations")
	recluster := fs.Bool("recluster", false, "re-assign documents when modifying a theme")
	_ = fs.Parse(os.Args[2:])

	if *session == "" {
		fmt.Println("Usage: matome mutate --session <id> [flags] [request text]")
		os.Exit(1)
	}
	request := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if request == "" && *operation == "" {
		fmt.Println("Provide a natural-language request or an --operation")
		os.Exit(1)
	}

	payload := mutationPayload{
		Request:   request,
		Operation: *operation,
		Target:    *target,
		Recluster: *recluster,
	}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("%s/api/v1/sessions/%s/mutations", *serverURL, *session)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Mutation failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Revision int64             `json:"revision"`
		Themes   models.ThemeSet   `json:"themes"`
		Summary  models.RunSummary `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("revision %d\n", out.Revision)
	printThemes(out.Themes, out.Summary)
}

func runThemes() {
	fs := flag.NewFlagSet("themes", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8765", "server URL")
	session := fs.String("session", "", "session id (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *session == "" {
		fmt.Println("Usage: matome themes --session <id> [flags]")
		os.Exit(1)
	}
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/sessions/%s/themes", *serverURL, *session))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Fetch failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var record storage.ThemeSetRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(record)
	case "text":
		fmt.Printf("session %s, revision %d\n", record.SessionID, record.Revision)
		printThemes(record.Themes, record.Summary)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8765", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status struct {
		Sessions  int64 `json:"sessions"`
		LivePools int   `json:"live_pools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sessions:   %d   # analysis sessions stored\n", status.Sessions)
	fmt.Printf("live_pools: %d   # sessions with an in-memory document pool\n", status.LivePools)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Embedder  embedding.Embedder
	Knowledge *knowledge.Base
	Engine    *engine.Engine
	Mutator   *mutate.Mutator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Knowledge != nil {
		_ = c.Knowledge.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var inner embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embedder", zap.Error(err))
		inner = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		inner = onnxEmbedder
	}

	var redisCache *embedding.RedisCache
	if cfg.Embedding.RedisAddr != "" {
		ttl := time.Duration(cfg.Embedding.RedisTTLHours) * time.Hour
		redisCache, err = embedding.NewRedisCache(
			cfg.Embedding.RedisAddr,
			cfg.Embedding.RedisPassword,
			cfg.Embedding.RedisDB,
			ttl,
			logger,
		)
		if err != nil {
			logger.Warn("redis embedding cache unavailable", zap.String("addr", cfg.Embedding.RedisAddr), zap.Error(err))
			redisCache = nil
		}
	}
	embedder := embedding.NewCachingEmbedder(inner, cfg.Embedding.CacheSize, redisCache, logger)

	var kb *knowledge.Base
	if cfg.Knowledge.ThemesPath != "" {
		kb, err = knowledge.NewBase(cfg.Knowledge.ThemesPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize knowledge base: %w", err)
		}
	}

	var proposer llm.ThemeProposer
	var queries llm.QueryBuilder
	var resolver llm.TargetResolver
	if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
		client := llm.NewClient(apiKey, cfg.LLM.Model, cfg.LLM.MaxTokens, logger)
		proposer = llm.NewClaudeProposer(client, logger)
		queries = llm.NewClaudeQueryBuilder(client, logger)
		resolver = llm.NewClaudeResolver(client, logger)
	} else {
		logger.Warn("LLM API key not set, theme proposal and query generation disabled",
			zap.String("env", cfg.LLM.APIKeyEnv))
	}

	assigner := assign.NewAssigner(&cfg.Analysis.Assign, logger)
	scorer := scoring.NewScorer(&cfg.Analysis.Scoring, logger)
	selector := selection.NewSelector(&cfg.Analysis.Selection, logger)
	dedup := dedupe.NewDeduplicator(&cfg.Analysis.Dedupe, logger)

	eng := engine.NewEngine(assigner, scorer, selector, dedup, embedder, proposer, queries, kb, logger).
		WithKnowledgeContext(cfg.Knowledge.ContextTop)
	mut := mutate.NewMutator(nil, assigner, scorer, embedder, proposer, queries, resolver, logger)

	return &Components{
		Store:     store,
		Embedder:  embedder,
		Knowledge: kb,
		Engine:    eng,
		Mutator:   mut,
	}, nil
}

func printUsage() {
	fmt.Println(`matome - Theme discovery and refinement for social listening

Usage:
  matome server [flags]             Start the HTTP server
  matome analyze [flags] <files>    Discover themes in a corpus of documents
  matome mutate [flags] [request]   Apply a mutation to a session's themes
  matome themes [flags]             Show a session's current themes
  matome status [flags]             Show server status
  matome version                    Show version
  matome help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/matome/config.yaml)
  --debug            Enable debug logging (assignment passes, LLM calls, etc.)

Analyze Flags:
  --config string     Config file path
  --query string      Refined query describing the analysis focus
  --keywords string   Comma-separated external keywords
  --max-themes int    Cap on proposed candidate themes
  --output string     Output format: text or json (default: text)

Mutate Flags:
  --server string     Server URL (default: http://localhost:8765)
  --session string    Session id (required)
  --operation string  Explicit operation: add_theme, remove_theme, modify_theme, create_sub_theme
  --target string     Target theme name for explicit operations
  --recluster         Re-assign documents when modifying a theme

Themes/Status Flags:
  --server string     Server URL (default: http://localhost:8765)
  --session string    Session id (themes only)
  --output string     Output format: text or json (themes only)

Examples:
  matome server
  matome analyze --query "customer complaints" --keywords support,pricing posts.json
  matome mutate --session 3f2a... "add a theme about shipping delays"
  matome mutate --session 3f2a... --operation remove_theme --target "Pricing Concerns"
  matome themes --session 3f2a...
  matome status`)
}
