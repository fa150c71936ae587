package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"inkpost/internal/util"
	"inkpost/services/blog/internal/bootstrap"
	"inkpost/services/blog/internal/config"
	"inkpost/services/blog/internal/server"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	deps, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer deps.Close()

	httpServer, err := server.New(server.Config{
		App:            deps.App,
		WriteLimiter:   deps.WriteLimiter,
		TrustedProxies: deps.TrustedProxies,
		DevSignIn:      cfg.DevSignIn,
		CORSOrigins:    cfg.CORSOrigins,
		Health:         deps.Store.Ping,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("blog server listening", "addr", addr, "session_store", cfg.SessionStore, "require_session", cfg.SessionRequired())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("blog server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
