// Package app wires stores, the change feed and the campaign services from config.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/vendor-outreach/internal/config"
	"github.com/unclebandit/vendor-outreach/internal/db"
	"github.com/unclebandit/vendor-outreach/internal/enrichment"
	"github.com/unclebandit/vendor-outreach/internal/generator"
	"github.com/unclebandit/vendor-outreach/internal/handler"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/queue"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/scheduler"
	"github.com/unclebandit/vendor-outreach/internal/service"
	"github.com/unclebandit/vendor-outreach/internal/transport"
	"github.com/unclebandit/vendor-outreach/internal/worker"
)

type App struct {
	Config *config.Config
	DB     *sql.DB // nil with the memory driver

	Vendors repository.VendorStore
	Tasks   repository.TaskRepositoryInterface
	Audit   repository.AuditRepositoryInterface
	Feed    queue.Queue

	Orchestrator *service.Orchestrator
	Lifecycle    *service.LifecycleService

	log     *logrus.Logger
	closers []func() error
}

// New opens the configured stores and change feed. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, log: logger.GetAppLogger()}

	switch cfg.StoreDriver {
	case "memory":
		a.Vendors = repository.NewInMemoryVendorRepository()
		a.Tasks = repository.NewInMemoryTaskRepository()
		a.Audit = repository.NewInMemoryAuditRepository()
	default:
		conn, err := db.Open(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)
		a.Vendors = &repository.VendorRepository{DB: conn}
		a.Tasks = &repository.TaskRepository{DB: conn}
		a.Audit = &repository.AuditRepository{DB: conn}
	}

	if cfg.AMQPURL != "" {
		rq, err := queue.NewRabbitMQQueue(cfg.AMQPURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Feed = rq
		a.closers = append(a.closers, rq.Close)
	} else {
		a.Feed = queue.NewInMemoryQueue()
	}

	hours := a.Hours()
	a.Orchestrator = &service.Orchestrator{
		Vendors:      a.Vendors,
		Tasks:        a.Tasks,
		Audit:        a.Audit,
		Enricher:     enrichment.NewScraper(),
		Hours:        hours,
		FollowUpHour: cfg.Hours.FollowUpHour,
	}
	a.Lifecycle = &service.LifecycleService{Vendors: a.Vendors, Audit: a.Audit, Queue: a.Feed}
	return a, nil
}

// InProcessFeed reports whether change events are delivered inside this process only.
func (a *App) InProcessFeed() bool {
	_, ok := a.Feed.(*queue.InMemoryQueue)
	return ok
}

func (a *App) Hours() scheduler.BusinessHours {
	h := a.Config.Hours
	return scheduler.BusinessHours{
		OpenHour:         h.OpenHour,
		CloseHour:        h.CloseHour,
		UrgentSlotHour:   h.UrgentSlotHour,
		StandardSlotHour: h.StandardSlotHour,
		Location:         h.Location(),
	}
}

func (a *App) generator(ctx context.Context) (service.ContentGenerator, error) {
	if a.Config.GenAI.APIKey == "" {
		a.log.Info("GENAI_API_KEY not set, drafting from templates")
		return generator.TemplateGenerator{}, nil
	}
	return generator.NewGenAIGenerator(ctx, a.Config.GenAI.APIKey, a.Config.GenAI.Model)
}

func (a *App) transport() service.Transport {
	s := a.Config.SMTP
	if s.Host == "" {
		a.log.Warn("SMTP_HOST not set, outbound email is only logged")
		return transport.LogTransport{}
	}
	return transport.NewSMTPTransport(s.Host, s.Port, s.Username, s.Password, s.From)
}

// Dispatcher builds the task handlers and the dispatcher that runs them.
func (a *App) Dispatcher(ctx context.Context) (*worker.Dispatcher, error) {
	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}
	tr := a.transport()

	d := a.Config.Dispatch
	return &worker.Dispatcher{
		Tasks: a.Tasks,
		Handlers: handler.Registry{
			model.TaskGenerate: &handler.GenerateHandler{Vendors: a.Vendors, Generator: gen, Audit: a.Audit, Hours: a.Hours()},
			model.TaskSend:     &handler.SendHandler{Vendors: a.Vendors, Transport: tr, Audit: a.Audit, Outreach: a.Orchestrator},
			model.TaskFollowUp: &handler.FollowUpHandler{Vendors: a.Vendors, Transport: tr, Audit: a.Audit, Copy: handler.DefaultCopybook()},
		},
		Audit:       a.Audit,
		WorkerID:    d.WorkerID,
		Limit:       d.Limit,
		MaxRetries:  d.MaxRetries,
		Interval:    d.Interval,
		TickTimeout: d.TickTimeout,
		ClaimLease:  d.ClaimLease,
	}, nil
}

// Health pings the database when there is one.
func (a *App) Health(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
