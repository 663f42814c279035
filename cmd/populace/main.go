package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/populace/internal/config"
	"github.com/udisondev/populace/internal/messaging"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("populace starting",
		"config", cfgPath,
		"log_level", cfg.LogLevel,
		"role", cfg.Role)

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	role, _ := cfg.ParseRole()
	if err := a.session.SetRole(ctx, role, nil); err != nil {
		return fmt.Errorf("entering role %s: %w", role, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.session.Run(gctx)
	})

	if a.wanderer != nil {
		g.Go(func() error {
			slog.Info("starting local agent", "name", cfg.Agent.Name, "tick", cfg.Agent.Tick)
			if err := a.wanderer.Start(gctx); err != nil {
				return fmt.Errorf("local agent: %w", err)
			}
			return nil
		})
	}

	if a.client != nil {
		g.Go(func() error {
			err := a.client.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			// Host is gone: keep playing alone with a fresh population.
			slog.Warn("lost connection to host, continuing unconnected", "error", err)
			a.bus.SetTransport(nil)
			if err := a.session.SetRole(gctx, messaging.RoleUnconnected, nil); err != nil {
				return fmt.Errorf("leaving observer role: %w", err)
			}
			return nil
		})
	}

	if a.reporter != nil {
		g.Go(func() error {
			slog.Info("starting position reporter", "interval", cfg.Network.ReportInterval)
			if err := a.reporter.Start(gctx); err != nil {
				return fmt.Errorf("position reporter: %w", err)
			}
			return nil
		})
	}

	if a.httpServer != nil {
		g.Go(func() error {
			slog.Info("starting http server", "addr", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("populace stopped")
	return nil
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
