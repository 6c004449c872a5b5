package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"cadence/internal/config"
	"cadence/internal/costguard"
	"cadence/internal/daemon"
	"cadence/internal/dispatch"
	"cadence/internal/lifecycle"
	"cadence/internal/logging"
	"cadence/internal/notifications"
	"cadence/internal/retryplan"
	"cadence/internal/store"
	"cadence/internal/worker"
	"cadence/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/cadence/config.toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open scheduling store", logging.Error(err))
		return
	}

	notifier := notifications.NewService(cfg)
	planner := retryplan.New(cfg)
	controller := lifecycle.New(cfg, st, planner, notifier, logger)
	guard := costguard.New(cfg, st, logger)
	client := worker.NewClient(cfg)
	dispatcher := dispatch.New(cfg, st, guard, client, controller, notifier, logger)
	manager := workflow.NewManager(cfg, st, dispatcher, logger)

	d, err := daemon.New(cfg, st, logger, manager, controller)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.Close()
		return
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon run", logging.Error(err))
		return
	}
	logger.Info("cadenced shutting down")
}
