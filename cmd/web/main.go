package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"rfm-dashboard/internal/amqp"
	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/ledger"
	"rfm-dashboard/internal/middleware"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/server"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/ui/templates"
	"rfm-dashboard/internal/version"
)

const (
	renderTimeout = 10 * time.Second
	cacheMaxAge   = "no-cache"
)

// dashboardHandler renders the page with the filter widgets of the current
// snapshot. Before the first load the widgets are empty and the page shows
// the unavailable state on its first refresh.
func dashboardHandler(analytics *services.Analytics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		opts, err := analytics.FilterOptions()
		if err != nil && !errors.Is(err, services.ErrNotLoaded) {
			logger.Error("filter options", "error", err)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(opts).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// startReloadConsumer subscribes to reload requests when AMQP is configured
// and returns a function that stops it.
func startReloadConsumer(cfg config.AMQPConfig, analytics *services.Analytics, logger *slog.Logger) (func(context.Context) error, error) {
	if cfg.URL == "" {
		return func(context.Context) error { return nil }, nil
	}

	client, err := amqp.NewClient(cfg.URL, cfg.Exchange, cfg.Queue, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := client.Run(ctx, func(ctx context.Context, msg *amqp.ReloadMessage) error {
			ctx = observability.WithRequestID(ctx, msg.ID)
			return analytics.Reload(ctx)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reload consumer stopped", "error", err)
		}
	}()

	return func(shutdownCtx context.Context) error {
		cancel()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
		return client.Close()
	}, nil
}

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "config file (YAML)")
	flag.Parse()

	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", version.String(),
		"ledger", cfg.Ledger.Source,
		"addr", cfg.Address(),
	)

	analytics := services.NewAnalytics(services.Options{
		CacheDir: cfg.Ledger.CacheDir,
		StubSeed: cfg.Ledger.StubSeed,
		Logger:   logger,
	})

	src := ledger.OpenSource(cfg.Ledger.Source, ledger.SourceOptions{
		Table:    cfg.Ledger.Table,
		DemoRows: cfg.Ledger.DemoRows,
		DemoSeed: cfg.Ledger.StubSeed,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.LoadTimeout)
	start := time.Now()
	err = analytics.Load(ctx, src)
	cancel()
	if err != nil {
		logger.Error("failed to load ledger", "source", src.Name(), "error", err)
		os.Exit(1)
	}
	logger.Info("ledger loaded", "source", src.Name(), "duration", time.Since(start))

	stopConsumer, err := startReloadConsumer(cfg.AMQP, analytics, logger)
	if err != nil {
		logger.Error("failed to start reload consumer", "error", err)
		os.Exit(1)
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(analytics, logger),
	}

	srv := server.NewServer(analytics, logger, templateHandlers, cfg.Ledger.LoadTimeout)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)
	gracefulServer.RegisterShutdownHook("reload-consumer", stopConsumer)
	gracefulServer.RegisterShutdownHook("background-reloads", srv.Shutdown)

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
