package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/vendor-outreach/internal/app"
	"github.com/unclebandit/vendor-outreach/internal/config"
	"github.com/unclebandit/vendor-outreach/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatal(err)
	}
	appLog := logger.GetAppLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("failed to start worker")
	}
	defer a.Close()

	if cfg.StoreDriver == "memory" {
		appLog.Warn("memory store is private to this process, tasks queued elsewhere are not visible")
	}

	// With a broker the change feed is consumed here; otherwise the server does it.
	if !a.InProcessFeed() {
		if err := a.Orchestrator.Subscribe(a.Feed); err != nil {
			appLog.WithError(err).Fatal("failed to subscribe to status changes")
		}
	}

	d, err := a.Dispatcher(ctx)
	if err != nil {
		appLog.WithError(err).Fatal("failed to build dispatcher")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })

	appLog.WithField("worker_id", d.WorkerID).Info("worker running, waiting for tasks...")
	if err := g.Wait(); err != nil {
		appLog.WithError(err).Error("worker stopped with error")
	}
}
