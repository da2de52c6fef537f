package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uptime/app/internal/auth"
	"uptime/app/internal/cache"
	"uptime/app/internal/config"
	"uptime/app/internal/database"
	"uptime/app/internal/handlers"
	"uptime/app/internal/models"
	"uptime/app/internal/ratelimit"
	"uptime/app/internal/stats"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if err := run(cfg, store); err != nil {
		log.Printf("Exiting: %v", err)
		store.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, store *database.Store) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lifecycle := stats.NewLifecycle(store, store, nil)
	if err := lifecycle.OnProcessStart(ctx); err != nil {
		return err
	}

	// A panic below still gets its Crash event recorded before unwinding
	defer func() {
		if r := recover(); r != nil {
			recordCrash(lifecycle, cfg.StoreTimeout, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	engine := stats.NewEngine(store, stats.EngineOptions{
		GapPolicy: cfg.GapPolicy,
		Timeout:   cfg.StoreTimeout,
	})

	latest := cache.New[*models.Snapshot](cfg.SnapshotInterval)
	defer latest.Stop()

	publisher := stats.NewPublisher(engine, store, stats.PublisherOptions{
		Interval:  cfg.SnapshotInterval,
		Timeout:   cfg.StoreTimeout,
		Logs:      store,
		LogKeep:   cfg.LogKeep,
		OnPublish: handlers.OnPublish(latest),
	})
	if cfg.EnablePublisher {
		if err := publisher.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if publisher.Running() {
			_ = publisher.Stop()
		}
	}()

	loginLimiter := ratelimit.New(ratelimit.Config{
		TokensPerMinute: 10,
		MaxTokens:       10,
		ErrorMessage:    "Too many login attempts. Please try again later.",
	})
	defer loginLimiter.Stop()
	authMgr := auth.NewAuth(cfg.AuthUser, cfg.AuthHash, loginLimiter)

	if cfg.File != "" {
		go watchConfig(ctx, cfg, store, publisher, authMgr)
	}

	var apiLimiter *ratelimit.Limiter
	if cfg.RatePerMinute > 0 {
		apiLimiter = ratelimit.New(ratelimit.Config{
			TokensPerMinute: cfg.RatePerMinute,
			ErrorMessage:    "Too many requests. Please slow down.",
		})
		defer apiLimiter.Stop()
	}

	serveErr := make(chan error, 1)
	var srv *http.Server
	if cfg.EnableHTTP {
		srv = &http.Server{
			Addr: ":" + cfg.Port,
			Handler: handlers.SetupRoutes(handlers.Deps{
				Store:      store,
				Engine:     engine,
				Publisher:  publisher,
				Auth:       authMgr,
				Limiter:    apiLimiter,
				Latest:     latest,
				Lifecycle:  lifecycle,
				TrustProxy: cfg.TrustProxy,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("Server starting on port %s", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	case err := <-serveErr:
		recordCrash(lifecycle, cfg.StoreTimeout, fmt.Sprintf("http server: %v", err))
		return fmt.Errorf("server failed: %w", err)
	}

	if publisher.Running() {
		_ = publisher.Stop()
	}
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		cancel()
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := lifecycle.OnProcessStop(sctx); err != nil {
		return err
	}
	return nil
}

// recordCrash writes the Crash event on a fresh context; the caller's may
// already be cancelled
func recordCrash(l *stats.Lifecycle, timeout time.Duration, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.OnProcessCrash(ctx, reason); err != nil {
		log.Printf("Failed to record crash: %v", err)
	}
}

// watchConfig applies hot-reloadable settings from the YAML config file
func watchConfig(ctx context.Context, cfg *config.Config, store *database.Store, p *stats.Publisher, a *auth.Auth) {
	err := config.Watch(ctx, cfg.File, func(next *config.Config) {
		p.SetInterval(next.SnapshotInterval)
		a.Reload(next.AuthUser, next.AuthHash)
		_ = store.InsertLog(ctx, database.LogLevelInfo, database.LogCategorySystem, "Config reloaded",
			fmt.Sprintf("file=%s, snapshot_interval=%s", next.File, next.SnapshotInterval))
		if next.GapPolicy != cfg.GapPolicy {
			msg := fmt.Sprintf("Gap policy change to %q takes effect after restart", next.GapPolicy)
			log.Println(msg)
			_ = store.InsertLog(ctx, database.LogLevelWarn, database.LogCategorySystem, msg, "")
		}
	})
	if err != nil {
		log.Printf("Config watch stopped: %v", err)
	}
}
