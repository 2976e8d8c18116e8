package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/platform"
	"github.com/PathanWasim/GhostVault-sub002/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "config file path")
	dir := flag.String("dir", "", "vault directory (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := platform.DisableCoreDumps(); err != nil {
		logger.Warn("could not disable core dumps", zap.Error(err))
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *dir != "" {
		cfg.Dir = *dir
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	app, err := core.Open(cfg, logger)
	if err != nil {
		logger.Fatal("open vault", zap.Error(err))
	}
	defer app.Close()

	srv, err := server.New(app, platform.NewKeychain(), logger)
	if err != nil {
		logger.Fatal("server", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
