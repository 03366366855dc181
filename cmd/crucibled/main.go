package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"crucible/internal/analysis"
	"crucible/internal/config"
	"crucible/internal/daemon"
	"crucible/internal/events"
	"crucible/internal/fixup"
	"crucible/internal/logging"
	"crucible/internal/pipeline"
	"crucible/internal/review"
	"crucible/internal/services/reasoner"
	"crucible/internal/stage"
	"crucible/internal/storage"
	"crucible/internal/tasks"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := storage.Open(cfg)
	if err != nil {
		logger.Error("open artifact store", logging.Error(err))
		return
	}

	client := reasoner.NewClient(cfg.Reasoner.APIKey,
		reasoner.WithBaseURL(cfg.Reasoner.BaseURL),
		reasoner.WithModel(cfg.Reasoner.Model),
		reasoner.WithTimeout(time.Duration(cfg.Reasoner.TimeoutSeconds)*time.Second),
	)

	handlers := []stage.Handler{
		analysis.New(client),
		review.New(client),
		fixup.New(client),
	}
	names := make([]string, len(handlers))
	for i, handler := range handlers {
		names[i] = handler.Name()
	}

	registry := tasks.NewRegistry(names, cfg.Pipeline.RetainLimit)
	broadcaster := events.NewBroadcaster(registry.Get, cfg.Pipeline.SubscriberBuffer, logger)

	runner, err := pipeline.NewRunner(cfg, registry, broadcaster, store, handlers, logger)
	if err != nil {
		logger.Error("create pipeline", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, registry, broadcaster, runner, store, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}
	logger.Info("crucibled listening", logging.String("address", d.Addr()))

	d.Wait()
	logger.Info("crucibled shutting down")
	d.Stop()
}
