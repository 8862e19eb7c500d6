package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/detector"
	"github.com/sublingo/sublingo/internal/httpapi"
	"github.com/sublingo/sublingo/internal/ledger"
	"github.com/sublingo/sublingo/internal/notify"
	"github.com/sublingo/sublingo/internal/provider"
	"github.com/sublingo/sublingo/internal/queue"
	"github.com/sublingo/sublingo/internal/service"
	"github.com/sublingo/sublingo/internal/storage"
	"github.com/sublingo/sublingo/internal/worker"
	"github.com/sublingo/sublingo/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer store.Close()

	settings := config.NewStore(store)
	hub := notify.NewHub()
	ledg := ledger.New(store, hub)
	registry := provider.NewRegistry(settings)
	defer registry.Close()

	trans := worker.New(ledg, registry, settings, hub)
	q := queue.New(cfg.WorkerCount)
	ledg.SetDispatcher(q)
	q.Start(trans.Execute)
	defer q.Stop()

	ctx := context.Background()
	if err := ledg.Resume(ctx); err != nil {
		log.Error("Failed to resume unfinished requests: %v", err)
	}

	det := detector.New(store, ledg, settings)
	scheduler := cron.New()
	scan := service.NewScanService(store, det, settings, scheduler, cfg.ScanCron)
	if dirs := splitDirs(cfg.MediaDirs); len(dirs) > 0 {
		scan.SetMediaDirs(dirs)
	}
	if err := scan.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule library scan: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := httpapi.NewServer(ledg, registry, settings, hub, scan)
	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe(cfg.HTTPAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete: %v", err)
	}
}

func splitDirs(raw string) []string {
	var dirs []string
	for _, dir := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(dir); trimmed != "" {
			dirs = append(dirs, trimmed)
		}
	}
	return dirs
}
