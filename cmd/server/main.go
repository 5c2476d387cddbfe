// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/vendor-outreach/internal/app"
	"github.com/unclebandit/vendor-outreach/internal/config"
	"github.com/unclebandit/vendor-outreach/internal/controller"
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
		appLog.WithError(err).Fatal("failed to start")
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Without a broker nobody else sees our events, so the orchestrator runs here.
	if a.InProcessFeed() {
		if err := a.Orchestrator.Subscribe(a.Feed); err != nil {
			appLog.WithError(err).Fatal("failed to subscribe orchestrator")
		}
	}
	// Likewise a separate worker cannot see an in-memory task store.
	if cfg.StoreDriver == "memory" {
		d, err := a.Dispatcher(ctx)
		if err != nil {
			appLog.WithError(err).Fatal("failed to build dispatcher")
		}
		g.Go(func() error { return d.Run(gctx) })
	}

	vendorController := &controller.VendorController{
		Lifecycle:    a.Lifecycle,
		Orchestrator: a.Orchestrator,
		Tasks:        a.Tasks,
		Audit:        a.Audit,
		Health:       a.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	vendorController.Register(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		appLog.WithField("addr", cfg.HTTPAddr).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLog.WithError(err).Error("server stopped with error")
	}
	appLog.Info("server stopped")
}
