package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"student-records/internal/auth"
	"student-records/internal/cache"
	"student-records/internal/config"
	"student-records/internal/db"
	"student-records/internal/health"
	"student-records/internal/kafka"
	"student-records/internal/logger"
	"student-records/internal/messaging"
	"student-records/internal/metrics"
	"student-records/internal/middleware"
	"student-records/internal/student"
	"student-records/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type App struct {
	config  *config.Config
	router  chi.Router
	server  *http.Server
	logger  *slog.Logger
	db      *bun.DB
	meters  *sdkmetric.MeterProvider
	closers []io.Closer
}

// publisher is implemented by the NATS and Kafka producers.
type publisher interface {
	student.Publisher
	io.Closer
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewWithServiceContext(ServiceName, Version, cfg.Env)
	slog.SetDefault(log)
	log.Info("config loaded", "env", cfg.Env, "commit", GitCommit, "build_time", BuildTime)

	meters, err := telemetry.InitMeterProvider(context.Background(), cfg.Telemetry, ServiceName, Version, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		_ = telemetry.Shutdown(context.Background(), meters, log)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	app := &App{
		config: cfg,
		router: chi.NewRouter(),
		logger: log,
		db:     database,
		meters: meters,
	}

	if err := db.RunMigrations(context.Background(), database, student.Models()...); err != nil {
		app.close()
		_ = telemetry.Shutdown(context.Background(), meters, log)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := app.setup(); err != nil {
		app.close()
		_ = telemetry.Shutdown(context.Background(), meters, log)
		return nil, err
	}

	log.Info("application initialized successfully")
	return app, nil
}

func (a *App) setup() error {
	cfg := a.config

	meter := otel.Meter(ServiceName)
	appMetrics, err := metrics.New(meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	if err := appMetrics.RegisterServiceInfo(meter, ServiceName, Version, cfg.Env); err != nil {
		a.logger.Warn("failed to register service info", "error", err)
	}

	policies, err := parsePolicies(cfg.Records)
	if err != nil {
		return err
	}

	checks := map[string]health.Pinger{"database": a.db}

	var views student.ViewCache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.New(cfg.Redis)
		if err != nil {
			a.logger.Warn("student view cache disabled", "error", err)
		} else {
			a.closers = append(a.closers, redisCache)
			views = cache.NewStudentViews(redisCache)
			checks["cache"] = health.PingerFunc(redisCache.Ping)
		}
	}

	var events student.Publisher
	if producer := a.newPublisher(); producer != nil {
		a.closers = append(a.closers, producer)
		events = producer
	}

	repo := student.NewRepository(a.db, appMetrics)
	service := student.NewService(repo, student.Options{
		Validator:     student.NewValidator(nil),
		Identifiers:   student.NewPrefixGenerator(cfg.Records.IdentifierPrefix),
		Policies:      policies,
		CascadeDelete: cfg.Records.CascadeDelete,
		Publisher:     events,
		Cache:         views,
		Logger:        a.logger,
		Metrics:       appMetrics,
	})
	studentHandler := student.NewHandler(service, a.logger, cfg.Records.MaxUploadBytes)

	a.router.Use(chimiddleware.RequestID)
	a.router.Use(chimiddleware.Recoverer)
	a.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	health.NewHandler(checks, appMetrics).RegisterRoutes(a.router)

	a.router.Route("/api", func(r chi.Router) {
		if cfg.Auth.JWTSecret != "" {
			tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
			r.Use(auth.Middleware(tokens, a.logger))
		} else {
			a.logger.Warn("JWT secret not configured, /api is unauthenticated")
		}
		studentHandler.RegisterRoutes(r)
	})

	return nil
}

// newPublisher connects the configured event transport. A failed connection
// disables events instead of failing startup.
func (a *App) newPublisher() publisher {
	cfg := a.config
	switch cfg.Events.Driver {
	case "nats":
		producer, err := messaging.NewProducer(cfg.NATS.URL, cfg.NATS.Subject, a.logger)
		if err != nil {
			a.logger.Warn("failed to initialize NATS producer", "error", err)
			return nil
		}
		return producer
	case "kafka":
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, a.logger)
		if err != nil {
			a.logger.Warn("failed to initialize kafka producer", "error", err)
			return nil
		}
		return producer
	case "", "none":
		return nil
	default:
		a.logger.Warn("unknown events driver, events disabled", "driver", cfg.Events.Driver)
		return nil
	}
}

func parsePolicies(cfg config.RecordsConfig) (student.Policies, error) {
	policies := student.DefaultPolicies()
	if cfg.PhotoUpdatePolicy != "" {
		p, err := student.ParseUpdatePolicy(cfg.PhotoUpdatePolicy)
		if err != nil {
			return policies, fmt.Errorf("records.photo_update_policy: %w", err)
		}
		policies.Photo = p
	}
	if cfg.ExtensionUpdatePolicy != "" {
		p, err := student.ParseUpdatePolicy(cfg.ExtensionUpdatePolicy)
		if err != nil {
			return policies, fmt.Errorf("records.extension_update_policy: %w", err)
		}
		policies.Extension = p
	}
	return policies, nil
}

func (a *App) Run() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  seconds(a.config.Server.ReadTimeout, 15),
		WriteTimeout: seconds(a.config.Server.WriteTimeout, 15),
		IdleTimeout:  seconds(a.config.Server.IdleTimeout, 60),
	}

	a.logger.Info("server starting", "port", a.config.Server.Port)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.close()
	if tErr := telemetry.Shutdown(ctx, a.meters, a.logger); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
	db.Close(a.db)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
