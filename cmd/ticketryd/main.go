package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apiPkg "github.com/ticketry-io/ticketry/internal/api"
	"github.com/ticketry-io/ticketry/internal/config"
	"github.com/ticketry-io/ticketry/internal/embedding"
	"github.com/ticketry-io/ticketry/internal/logbuf"
	"github.com/ticketry-io/ticketry/internal/notify"
	"github.com/ticketry-io/ticketry/internal/pipeline"
	"github.com/ticketry-io/ticketry/internal/provider"
	"github.com/ticketry-io/ticketry/internal/session"
	"github.com/ticketry-io/ticketry/internal/syncjob"
	"github.com/ticketry-io/ticketry/internal/ticketcache"
	"github.com/ticketry-io/ticketry/internal/tracker"
	"github.com/ticketry-io/ticketry/internal/vectorindex"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("ticketryd starting", "project", cfg.Tracker.ProjectKey)

	// 1. Text-generation provider
	var llm provider.Provider
	switch cfg.Provider.Type {
	case "anthropic":
		var opts []provider.AnthropicOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Provider.Model))
		}
		llm = provider.NewAnthropic(cfg.Provider.APIKey, opts...)
	default: // "openai" or empty
		var opts []provider.OpenAIOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithModel(cfg.Provider.Model))
		}
		llm = provider.NewOpenAI(cfg.Provider.APIKey, opts...)
	}
	logger.Info("provider initialized", "type", llm.Name(), "model", cfg.Provider.Model)

	// 2. Embedder
	var embedOpts []embedding.Option
	if cfg.Embedding.BaseURL != "" {
		embedOpts = append(embedOpts, embedding.WithBaseURL(cfg.Embedding.BaseURL))
	}
	if cfg.Embedding.Model != "" {
		embedOpts = append(embedOpts, embedding.WithModel(cfg.Embedding.Model))
	}
	embedder := embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Dimension, embedOpts...)

	// 3. Vector index and ticket cache
	os.MkdirAll(cfg.DataDir, 0o755)
	index := vectorindex.New(cfg.Embedding.Dimension,
		filepath.Join(cfg.DataDir, "tickets.idx"),
		filepath.Join(cfg.DataDir, "tickets_meta.json"),
		logger.With("component", "index"))
	if err := index.Load(); err != nil {
		logger.Error("failed to load vector index", "error", err)
		os.Exit(1)
	}
	logger.Info("vector index ready", "records", index.Count())

	cache, err := ticketcache.Open(filepath.Join(cfg.DataDir, "tickets.db"))
	if err != nil {
		logger.Error("failed to open ticket cache", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	// 4. Tracker client and notification sinks
	trk := tracker.New(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.APIToken, cfg.Tracker.ProjectKey)

	var sinks []notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken))
	}
	if cfg.Notify.SlackToken != "" {
		slackSink, err := notify.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
		if err != nil {
			logger.Error("failed to init slack sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, slackSink)
	}
	var notifier *notify.Dispatcher
	if len(sinks) > 0 {
		notifier = notify.NewDispatcher(sinks, logger.With("component", "notify"))
		logger.Info("notifications enabled", "sinks", len(sinks))
	}

	// 5. Pipeline
	sessions := session.NewStore()
	pipe := pipeline.New(llm, embedder, index, trk, cache, sessions, notifier, pipeline.Options{
		MaxResults:         cfg.Search.MaxResults,
		Threshold:          cfg.Search.Threshold,
		DuplicateThreshold: cfg.Search.DuplicateThreshold,
		ProjectKey:         cfg.Tracker.ProjectKey,
	}, logger.With("component", "pipeline"))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Background sync job
	jql := fmt.Sprintf("project = %s ORDER BY updated DESC", cfg.Tracker.ProjectKey)
	job := syncjob.New(trk, embedder, index, cache, jql, logger.With("component", "sync"))
	go safeGo(logger, "sync-job", func() {
		job.Start(ctx, time.Duration(cfg.Sync.Interval), cfg.Sync.OnStartup)
	})

	// 7. API server
	apiSrv := apiPkg.NewServer(pipe, job, cache, index, sessions, logBuf, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"))
	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := index.Persist(); err != nil {
		logger.Warn("final index persist failed", "error", err)
	}
	logger.Info("ticketryd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
