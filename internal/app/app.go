// Package app assembles the gate service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gate-service/internal/approval"
	"gate-service/internal/config"
	"gate-service/internal/db"
	"gate-service/internal/events"
	httpapi "gate-service/internal/http"
	"gate-service/internal/metrics"
	"gate-service/internal/notify"
	"gate-service/internal/registry"
	"gate-service/internal/repository"
	"gate-service/internal/service"
)

type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	DB        *gorm.DB
	Repo      *repository.GateRepository
	Owners    registry.Store
	Matcher   *registry.Matcher
	Approvals approval.Store

	// Sink delivers synchronously; Alerts queues for the frame loop.
	Sink   notify.Sink
	Alerts *notify.Async

	Hub    *events.Hub
	Events *events.Multi

	// EventQueue feeds Events from the frame loop without blocking it.
	EventQueue *events.Async

	Service *service.GateService

	closers []func()
}

// New opens every backend named by cfg. Close releases them in reverse order.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.Registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.Metrics = m

	gdb, err := db.Connect(cfg.Database, a.Log)
	if err != nil {
		return err
	}
	a.DB = gdb
	a.onClose(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.Migrate(gdb, a.Log); err != nil {
		return err
	}
	a.Repo = repository.NewGateRepository(gdb)

	a.Owners = a.ownerStore()
	a.Matcher = registry.NewMatcher(a.Owners, cfg.Registry.CacheTTL, a.Log)

	approvals, err := a.approvalStore(ctx)
	if err != nil {
		return err
	}
	a.Approvals = approvals

	sink, err := NewSink(cfg.Notify, a.Log)
	if err != nil {
		return err
	}
	a.Sink = sink
	a.Alerts = notify.NewAsync(sink, cfg.Notify.QueueSize, cfg.Notify.Timeout, a.Metrics, a.Log)
	a.onClose(a.Alerts.Close)

	a.Service = service.NewGateService(a.Owners, a.Matcher, a.Approvals, a.Sink, a.Repo, a.Log)

	a.Hub = events.NewHub(a.Log)
	a.onClose(a.Hub.Close)
	a.Events = events.NewMulti(a.Log, events.Recorder(a.Service), a.Hub)
	if err := a.brokers(ctx); err != nil {
		return err
	}
	a.EventQueue = events.NewAsync(a.Events, cfg.Events.QueueSize, cfg.Events.Timeout, a.Log)
	a.onClose(a.EventQueue.Close)
	return nil
}

func (a *App) ownerStore() registry.Store {
	if a.Config.Registry.Backend == config.BackendDatabase {
		return a.Repo
	}
	return registry.NewFileStore(a.Config.Registry.Path)
}

func (a *App) approvalStore(ctx context.Context) (approval.Store, error) {
	cfg := a.Config
	switch cfg.Approval.Backend {
	case config.BackendDatabase:
		return a.Repo, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return approval.NewRedisStore(client, cfg.Redis.Prefix), nil
	default:
		return approval.NewFileStore(cfg.Approval.Path, a.Log), nil
	}
}

func (a *App) brokers(ctx context.Context) error {
	cfg := a.Config.Events
	if cfg.MQTTBroker != "" {
		p, err := events.ConnectMQTT(ctx, events.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, a.Log)
		if err != nil {
			return err
		}
		a.onClose(p.Close)
		a.Events.Add(p)
	}
	if cfg.NATSURL != "" {
		p, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubject, a.Log)
		if err != nil {
			return err
		}
		a.onClose(p.Close)
		a.Events.Add(p)
	}
	return nil
}

// NewSink builds the configured owner notification channel.
func NewSink(cfg config.Notify, log zerolog.Logger) (notify.Sink, error) {
	switch cfg.Backend {
	case "", "none":
		log.Warn().Msg("owner notifications disabled")
		return notify.Noop{}, nil
	case "telegram":
		return notify.NewTelegramSink(cfg.TelegramToken, cfg.Timeout), nil
	case "webhook":
		return notify.NewWebhookSink(cfg.WebhookURL, cfg.Timeout), nil
	default:
		return nil, errors.New("unknown notify backend " + cfg.Backend)
	}
}

// Router builds the HTTP API. states may be nil when no frame loop runs.
func (a *App) Router(states httpapi.StateProvider) *gin.Engine {
	h := httpapi.NewHandler(a.Service, a.Hub, states, a.Log)
	return httpapi.NewRouter(h, httpapi.RouterOptions{
		HTTP:         a.Config.HTTP,
		Gatherer:     a.Registry,
		SnapshotsDir: a.Config.Snapshots.Dir,
	}, a.Log)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
