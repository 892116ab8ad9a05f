package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rathix/workflow-engine/internal/config"
	"github.com/rathix/workflow-engine/internal/engine"
	"github.com/rathix/workflow-engine/internal/eventstore"
	eventmemstore "github.com/rathix/workflow-engine/internal/eventstore/memstore"
	"github.com/rathix/workflow-engine/internal/eventstore/postgres"
	"github.com/rathix/workflow-engine/internal/httpapi"
	"github.com/rathix/workflow-engine/internal/metrics"
	"github.com/rathix/workflow-engine/internal/notifysvc"
	notifymemstore "github.com/rathix/workflow-engine/internal/notifysvc/memstore"
	"github.com/rathix/workflow-engine/internal/outbound"
)

const defaultAddr = ":8080"

// runConfig holds all process configuration.
type runConfig struct {
	ListenAddr      string
	BasePath        string
	RulesPath       string
	LogFormat       string
	NotifyInterval  time.Duration
	ShutdownTimeout time.Duration
}

func main() {
	cfg, err := loadRunConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadRunConfig(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)

	cfg := runConfig{}
	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", defaultAddr), "listen address")
	fs.StringVar(&cfg.BasePath, "base-path", getEnv("BASE_PATH", ""), "URL prefix to strip when mounted behind a reverse proxy")
	fs.StringVar(&cfg.RulesPath, "rules", getEnv("RULES_PATH", "rules.yaml"), "path to the engine rule file")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "json"), "log format (json or text)")

	notifyIntervalStr := getEnv("NOTIFY_INTERVAL", "1m")
	fs.StringVar(&notifyIntervalStr, "notify-interval", notifyIntervalStr, "notification executor sweep interval")

	shutdownTimeoutStr := getEnv("SHUTDOWN_TIMEOUT", "10s")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}

	interval, err := time.ParseDuration(notifyIntervalStr)
	if err != nil || interval <= 0 {
		return runConfig{}, fmt.Errorf("invalid notify interval %q", notifyIntervalStr)
	}
	cfg.NotifyInterval = interval

	shutdownTimeout, err := time.ParseDuration(shutdownTimeoutStr)
	if err != nil || shutdownTimeout <= 0 {
		return runConfig{}, fmt.Errorf("invalid shutdown timeout %q", shutdownTimeoutStr)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return runConfig{}, fmt.Errorf("unsupported log format %q: must be \"json\" or \"text\"", cfg.LogFormat)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func setupLogger(format string) *slog.Logger {
	return setupLoggerWithWriter(format, os.Stdout)
}

func setupLoggerWithWriter(format string, writer io.Writer) *slog.Logger {
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(writer, nil)
	} else {
		handler = slog.NewJSONHandler(writer, nil)
	}
	return slog.New(handler)
}

// run loads config, wires the engine and notification service, and serves
// HTTP until ctx is cancelled.
func run(ctx context.Context, rc runConfig) error {
	logger := setupLogger(rc.LogFormat)
	slog.SetDefault(logger)

	ruleCfg, errs := config.Load(rc.RulesPath)
	if ruleCfg == nil {
		return fmt.Errorf("failed to load rule file %s: %v", rc.RulesPath, errs)
	}
	for _, e := range errs {
		logger.Warn("rule file validation issue", "error", e)
	}
	config.ApplyEnv(ruleCfg)

	store, closeStore, err := openEventStore(ctx, ruleCfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer closeStore()

	outboundClient := outbound.New(ruleCfg.Engine.TorqueURL, ruleCfg.Engine.TorqueAPIKey)
	queue := outbound.NewQueue(outboundClient, outbound.WithQueueLogger(logger))
	outbox := outbound.NewOutbox(queue)

	eng, err := engine.FromConfig(ruleCfg, store, outbox, engine.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	notifyStore := notifymemstore.New()
	notifyClient := outbound.New(ruleCfg.Engine.WebhooksURL, ruleCfg.Engine.WebhooksAPIKey)
	executor := notifysvc.NewExecutor(notifyStore, notifysvc.PassthroughView{}, notifyClient,
		channelEndpoints(ruleCfg.Notifications), notifysvc.WithExecutorLogger(logger))
	factory := notifysvc.NewFactory(notifyStore, notifysvc.IdentityAddressResolver{},
		notifysvc.WithOnCreate(func(ctx context.Context, d notifysvc.Dispatch) {
			if err := executor.SendSingle(ctx, d.ID); err != nil {
				logger.Warn("opportunistic delivery failed", "dispatch_id", d.ID, "error", err)
			}
		}),
		notifysvc.WithFactoryLogger(logger))

	notifyCtx, notifyCancel := context.WithCancel(ctx)
	defer notifyCancel()
	go executor.Run(notifyCtx, rc.NotifyInterval)

	watcherCtx, watcherCancel := context.WithCancel(ctx)
	defer watcherCancel()
	watcher := config.NewWatcher(rc.RulesPath, func(newCfg *config.Config, errs []error) {
		for _, e := range errs {
			logger.Warn("rule file reload validation issue", "error", e)
		}
		if config.ReconcileNotifications(executor, ruleCfg, newCfg) {
			logger.Info("notification channel routing reloaded")
			ruleCfg = newCfg
		}
	}, logger)
	go watcher.Run(watcherCtx)

	checks := []httpapi.SubsystemCheck{
		{Name: "event_store", Check: func(ctx context.Context) error {
			_, err := store.Events(ctx, "liveness:0")
			return err
		}},
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(httpapi.Deps{
		Engine:      eng,
		Factory:     factory,
		Executor:    executor,
		OutboxFlush: func() { outbox.Flush(context.WithoutCancel(ctx)) },
		Checks:      checks,
		APIKey:      ruleCfg.Engine.APIKey,
		Logger:      logger,
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	if rc.BasePath != "" {
		handler = httpapi.NewBasePathHandler(rc.BasePath, mux)
	}

	srv := &http.Server{Addr: rc.ListenAddr, Handler: handler}

	serverError := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", rc.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		watcherCancel()
		notifyCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rc.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		queue.Wait()
		logger.Info("server stopped")
	case err := <-serverError:
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// openEventStore opens the postgres-backed store when dsn is set,
// otherwise falls back to the in-memory store for standalone/dev use.
func openEventStore(ctx context.Context, dsn string) (eventstore.Store, func(), error) {
	if dsn == "" {
		return eventmemstore.New(), func() {}, nil
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func channelEndpoints(nc config.NotificationsConfig) map[notifysvc.Channel]notifysvc.ChannelEndpoints {
	out := make(map[notifysvc.Channel]notifysvc.ChannelEndpoints, len(nc.Channels))
	for name, cc := range nc.Channels {
		out[notifysvc.Channel(name)] = notifysvc.ChannelEndpoints{Single: cc.SingleURL, Batch: cc.BatchURL}
	}
	return out
}
