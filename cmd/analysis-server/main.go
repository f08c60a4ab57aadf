package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/builder"
	appcfg "github.com/SKUDURRRRR/chessanalytics-sub001/internal/config"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/obslog"
	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/transport/httpapi"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(rootCtx, cfg)
	if err != nil {
		obslog.L().Fatal("wiring failed", zap.Error(err))
	}
	defer deps.Close()

	deps.Queue.Start(rootCtx)

	app := httpapi.NewFiberApp(httpapi.NewHandler(deps.Queue, deps.Repo, cfg.Variant))

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case <-rootCtx.Done():
		obslog.L().Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceSec)*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		obslog.L().Warn("http shutdown", zap.Error(err))
	}
}
