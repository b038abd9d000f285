package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_go/internal/app"
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/infra/feed"
	"market_go/internal/ledger"
	"market_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func configPath() string {
	if p := os.Getenv("MARKET_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, configPath()); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config
	event.Warmup()

	// 4. Read model
	book := bootstrap.Book
	book.StartProcessor(ctx)

	// 5. Sequencer. The gateway is created after it, so outcomes reach the
	// gateway through a late-bound publisher.
	var gateway *feed.Server
	seq, err := bootstrap.NewSequencer(ctx, func(r execution.Receipt, cs *ledger.ChangeSet) {
		book.Enqueue(ctx, service.Update{Receipt: r, Changes: cs})
		if gateway != nil {
			gateway.Publish(r)
		}
	})
	if err != nil {
		slog.Error("❌ Recovery failed", slog.Any("error", err))
		os.Exit(1)
	}

	gateway = feed.NewServer(seq, book, bootstrap.Metrics)
	go gateway.Run(ctx)

	// Start Sequencer in its own goroutine (The Hotpath Loop)
	go seq.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started", slog.Uint64("next_seq", seq.NextSeq()))

	if err := bootstrap.SeedMarkets(ctx, seq); err != nil {
		slog.Error("❌ Market setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 6. Gateway and metrics endpoints
	servers := []*http.Server{
		{Addr: cfg.Server.ListenAddr, Handler: gateway.Handler(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: cfg.Server.MetricsAddr, Handler: metricsMux(bootstrap), ReadHeaderTimeout: 5 * time.Second},
	}
	for _, srv := range servers {
		go func(srv *http.Server) {
			slog.Info("🌐 HTTP server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server failed", slog.String("addr", srv.Addr), slog.Any("error", err))
			}
		}(srv)
	}

	slog.InfoContext(ctx, "✨ Marketplace node fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown failed", slog.String("addr", srv.Addr), slog.Any("error", err))
		}
	}
}

func metricsMux(b *app.Bootstrap) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", b.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
