package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pawhaven/config"
	"pawhaven/internal/database"
	"pawhaven/internal/events"
	"pawhaven/internal/metrics"
	"pawhaven/internal/repository"
	"pawhaven/internal/service"
	"pawhaven/internal/ws"
	"pawhaven/pkg/payment"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// App holds the wired components shared by the HTTP server and reservectl.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	DB       *gorm.DB                // nil with the memory driver
	Memory   *repository.MemoryStore // set only with the memory driver
	Store    repository.ReconciliationStore
	Gateway  payment.Gateway
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Hub      *ws.Hub
	Events   events.Publisher

	DeviceTokens  *repository.DeviceTokenRepository
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Reconciler    *service.Reconciler
	Sweeper       *service.Sweeper
	Payments      *service.PaymentService
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Hub: ws.NewHub()}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	var (
		notifRepo service.NotificationWriter
		tokenRepo service.DeviceTokenStore
		auditRepo service.AuditWriter
	)
	if strings.ToLower(cfg.Database.Driver) == "memory" {
		a.Memory = repository.NewMemoryStore()
		a.Store = a.Memory
		log.Warn("using in-memory store; state is lost on exit")
	} else {
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if cfg.Database.RunMigrations {
			if err := database.Migrate(db, cfg.Database.Driver); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		a.DB = db
		a.Store = repository.NewGormStore(db)
		a.DeviceTokens = repository.NewDeviceTokenRepository(db)
		notifRepo = repository.NewNotificationRepository(db)
		tokenRepo = a.DeviceTokens
		auditRepo = repository.NewAuditLogRepository(db)
	}

	switch cfg.Payment.Provider {
	case "stub":
		a.Gateway = payment.NewStubGateway()
	default:
		a.Gateway = payment.NewPaystackClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Timeout).
			WithObserver(a.Metrics.ObserveGateway)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.Events = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		a.Events = events.NopPublisher{}
	}

	fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath, log)
	switch {
	case fcm != nil:
		log.Info("push notifications enabled")
	case cfg.Firebase.ServiceAccountPath != "":
		log.Warn("push notifications disabled: failed to init (check service account file)")
	default:
		log.Info("push notifications disabled: set FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}
	a.Notifications = service.NewNotificationService(notifRepo, tokenRepo, fcm, a.Hub, log)
	a.Audit = service.NewAuditService(auditRepo, log)

	timeout := cfg.Database.CallTimeout
	a.Reconciler = service.NewReconciler(a.Store, a.Notifications, a.Audit, a.Events, a.Metrics, log, timeout)
	a.Sweeper = service.NewSweeper(a.Store, a.Notifications, a.Audit, a.Events, a.Metrics, log,
		cfg.Cron.ExpiryWindow, cfg.Cron.BatchSize, timeout)
	payments, err := service.NewPaymentService(a.Store, a.Gateway, a.Audit, cfg.Payment, log, timeout)
	if err != nil {
		return nil, err
	}
	a.Payments = payments
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
