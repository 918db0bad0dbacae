// Command lexigraphd runs the vocabulary graph daemon: the HTTP API, the
// generation worker, and the metrics endpoint, all over one SQLite file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexigraph/pkg/apply"
	"lexigraph/pkg/generate"
	"lexigraph/pkg/llm"
	"lexigraph/pkg/metrics"
	"lexigraph/pkg/server"
	"lexigraph/pkg/store"
	"lexigraph/pkg/trace"
	"lexigraph/pkg/worker"
)

type config struct {
	addr          string
	dbPath        string
	adminKey      string
	provider      string
	model         string
	openAIKey     string
	ollamaURL     string
	pollInterval  time.Duration
	staleTaskAge  time.Duration
	sentenceCount int
	traceFile     string
	enableMetrics bool
}

func configFromEnv() config {
	return config{
		addr:         envOr("LEXIGRAPH_ADDR", ":8080"),
		dbPath:       envOr("LEXIGRAPH_DB", "lexigraph.db"),
		adminKey:     os.Getenv("LEXIGRAPH_ADMIN_KEY"),
		provider:     envOr("LEXIGRAPH_PROVIDER", "openai"),
		model:        os.Getenv("LEXIGRAPH_MODEL"),
		openAIKey:    os.Getenv("OPENAI_API_KEY"),
		ollamaURL:    envOr("LEXIGRAPH_OLLAMA_URL", "http://localhost:11434"),
		pollInterval: envDuration("LEXIGRAPH_POLL_INTERVAL", time.Second),
		// Like the queue's RequeueStale knob: zero leaves the recovery
		// sweep off unless the operator opts in.
		staleTaskAge:  envDuration("LEXIGRAPH_STALE_TASK_AGE", 0),
		sentenceCount: envInt("LEXIGRAPH_SENTENCE_COUNT", 3),
		traceFile:     os.Getenv("LEXIGRAPH_TRACE_FILE"),
		enableMetrics: envOr("LEXIGRAPH_METRICS", "true") == "true",
	}
}

func loadConfig() config {
	cfg := configFromEnv()

	flag.StringVar(&cfg.addr, "addr", cfg.addr, "listen address")
	flag.StringVar(&cfg.dbPath, "db", cfg.dbPath, "SQLite database path")
	flag.Parse()

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func buildClient(cfg config) (llm.Client, error) {
	var client llm.Client
	switch cfg.provider {
	case "openai":
		if cfg.openAIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required with the openai provider")
		}
		var opts []llm.OpenAIOption
		if cfg.model != "" {
			opts = append(opts, llm.WithModel(cfg.model))
		}
		client = llm.NewOpenAIClient(cfg.openAIKey, opts...)
	case "ollama":
		client = llm.NewOllamaClient(cfg.ollamaURL, cfg.model)
	default:
		return nil, fmt.Errorf("unknown provider %q (expected openai or ollama)", cfg.provider)
	}
	return llm.NewBreakerClient(client), nil
}

func run() error {
	cfg := loadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	st, err := store.NewSQLiteStore(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}
	gen := generate.NewGenerator(client)

	collector := metrics.Collector(metrics.NewNoopCollector())
	var metricsHandler http.Handler
	if cfg.enableMetrics {
		pc := metrics.NewCollector()
		collector = pc
		metricsHandler = promhttp.HandlerFor(pc.Registry(), promhttp.HandlerOpts{})
	}

	exporter := trace.Exporter(&trace.NoopExporter{})
	if cfg.traceFile != "" {
		fe, err := trace.NewFileExporter(cfg.traceFile)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		exporter = fe
		defer fe.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.New(st, gen, worker.Config{
		PollInterval:  cfg.pollInterval,
		StaleTaskAge:  cfg.staleTaskAge,
		SentenceCount: cfg.sentenceCount,
	},
		worker.WithMetrics(collector),
		worker.WithExporter(exporter),
		worker.WithLogger(logger),
	)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(ctx)
	}()

	go refreshGraphGauges(ctx, st, collector, logger)

	engine := apply.NewEngine(st, logger)
	srv := server.New(st, engine, cfg.adminKey,
		server.WithMetrics(collector),
		server.WithMetricsHandler(metricsHandler),
		server.WithLogger(logger),
	)

	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.addr, "db", cfg.dbPath, "provider", cfg.provider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		stop()
		<-workerDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-workerDone
	return nil
}

// refreshGraphGauges keeps the graph size gauges current. Counting rows
// every interval is cheap at this dataset's scale.
func refreshGraphGauges(ctx context.Context, st *store.SQLiteStore, collector metrics.Collector, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		counts, err := st.GraphCounts(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("graph count refresh failed", "error", err)
		} else {
			collector.SetGraphCount(ctx, "concepts", counts.Concepts)
			collector.SetGraphCount(ctx, "versions", counts.Versions)
			collector.SetGraphCount(ctx, "phrases", counts.Phrases)
			collector.SetGraphCount(ctx, "edges", counts.Edges)
			collector.SetGraphCount(ctx, "sentences", counts.Sentences)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lexigraphd:", err)
		os.Exit(1)
	}
}
