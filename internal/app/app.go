// Package app assembles the client core for a configuration: backend adapters
// for the selected mode, the session manager, the study facade, the activity
// pipeline and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"studygenie/internal/activity"
	"studygenie/internal/activity/kafka"
	"studygenie/internal/backend"
	"studygenie/internal/backend/kratos"
	"studygenie/internal/backend/memory"
	"studygenie/internal/backend/postgres"
	"studygenie/internal/backend/tokenstore"
	"studygenie/internal/platform/config"
	"studygenie/internal/platform/httpserver"
	"studygenie/internal/platform/metrics"
	"studygenie/internal/platform/redis"
	"studygenie/internal/session"
	"studygenie/internal/study/service"
	httptransport "studygenie/internal/transport/http"
)

const activityBuffer = 256

// expiryWatcher is implemented by auth adapters that detect lapsed sessions by
// polling.
type expiryWatcher interface {
	WatchExpiry(ctx context.Context, interval time.Duration) error
}

// App owns every long-lived component.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Sessions *session.Manager
	Study    *service.Service
	Activity *activity.Publisher
	// Events is the presenter for HTTP clients; nil when another presenter was
	// supplied.
	Events *httptransport.EventHub

	Auth backend.AuthBackend
	Data backend.DataBackend

	presenter session.Presenter
	watcher   expiryWatcher
	closers   []func()
}

type Option func(*App)

// WithPresenter replaces the event stream presenter, for the CLI.
func WithPresenter(p session.Presenter) Option {
	return func(a *App) {
		a.presenter = p
	}
}

// New builds the application for cfg. Close releases what New opened, also
// when New fails halfway.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if err := a.initActivity(ctx); err != nil {
		return nil, err
	}
	if err := a.initBackend(ctx); err != nil {
		return nil, err
	}

	if a.presenter == nil {
		a.Events = httptransport.NewEventHub(logger)
		a.presenter = a.Events
	}
	a.Sessions = session.New(a.Auth, a.Data,
		session.WithPresenter(a.presenter),
		session.WithLogger(logger),
		session.WithMetrics(a.Metrics),
		session.WithActivity(a.Activity),
		session.WithRoutes(cfg.Routes),
	)
	a.closers = append(a.closers, a.Sessions.Close)
	if a.Events != nil {
		a.closers = append(a.closers, a.Events.Watch(a.Sessions))
	}

	a.Study = service.New(a.Sessions, a.Data,
		service.WithLogger(logger),
		service.WithMetrics(a.Metrics),
		service.WithActivity(a.Activity),
		service.WithBucket(cfg.Storage.Bucket),
	)
	return a, nil
}

func (a *App) initActivity(ctx context.Context) error {
	opts := []activity.Option{
		activity.WithAsyncBuffer(activityBuffer),
		activity.WithLogger(a.Logger),
		activity.WithMetrics(a.Metrics),
	}
	if len(a.Config.Kafka.Brokers) > 0 {
		sink, err := kafka.New(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("activity kafka sink: %w", err)
		}
		a.closers = append(a.closers, sink.Close)
		if err := sink.Ping(ctx); err != nil {
			a.Logger.WarnContext(ctx, "kafka brokers unreachable, activity delivery will retry", "error", err)
		}
		if a.Config.Kafka.CreateTopic {
			if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
				return fmt.Errorf("activity kafka topic: %w", err)
			}
		}
		opts = append(opts, activity.WithSink(sink))
		a.Logger.InfoContext(ctx, "activity events forwarded to kafka", "topic", a.Config.Kafka.Topic)
	}
	a.Activity = activity.NewPublisher(activity.NewInMemoryStore(), opts...)
	a.closers = append(a.closers, a.Activity.Close)
	return nil
}

func (a *App) initBackend(ctx context.Context) error {
	switch a.Config.Backend.Mode {
	case config.BackendDisabled:
		a.Logger.WarnContext(ctx, "no backend configured, every call will be rejected")
		a.Auth, a.Data = backend.Disabled{}, backend.Disabled{}
		return nil
	case config.BackendMemory:
		tokens, err := a.tokenStore(ctx)
		if err != nil {
			return err
		}
		data := memory.NewData()
		a.Data = data
		a.Auth = memory.NewAuth(data,
			memory.WithSigningKey(a.Config.Session.SigningKey),
			memory.WithSessionTTL(a.Config.Session.TokenTTL),
			memory.WithTokenStore(tokens),
			memory.WithAutoConfirm(a.Config.Session.AutoConfirm),
		)
		return nil
	case config.BackendRemote:
		tokens, err := a.tokenStore(ctx)
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, a.Config.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if a.Config.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
		}
		store := postgres.New(pool)
		a.Data = store

		auth := kratos.New(a.Config.Kratos.PublicURL, tokens,
			kratos.WithLogger(a.Logger),
			kratos.WithTimeout(a.Config.Kratos.Timeout),
			kratos.WithProfileProvisioner(store),
		)
		a.Auth = auth
		a.watcher = auth
		return nil
	default:
		return fmt.Errorf("unknown backend mode %q", a.Config.Backend.Mode)
	}
}

// tokenStore returns the Redis-backed store when Redis is configured, so the
// session survives restarts, and an in-memory one otherwise.
func (a *App) tokenStore(ctx context.Context) (tokenstore.Store, error) {
	client, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return tokenstore.NewInMemory(), nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return tokenstore.NewRedis(client.Client, a.Config.Session.Device), nil
}

// Start restores the persisted session. A failed restore is logged and the
// app continues unauthenticated.
func (a *App) Start(ctx context.Context) error {
	if err := a.Sessions.Start(ctx); err != nil {
		a.Logger.WarnContext(ctx, "session restore failed, continuing signed out", "error", err)
	}
	return nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   a.Logger,
		Sessions: httptransport.NewSessionHandler(a.Sessions, a.Logger),
		Study:    httptransport.NewStudyHandler(a.Study, a.Logger),
		Activity: httptransport.NewActivityHandler(a.Sessions, a.Activity, a.Logger),
		Events:   a.Events,
		Gatherer: a.Registry,
	})
}

// Serve runs the HTTP server and background watchers until ctx is cancelled
// or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := httpserver.New(a.Config.Server.Addr, a.Handler(), a.Config.Server.ReadHeaderTimeout)
	g.Go(func() error {
		a.Logger.InfoContext(ctx, "serving", "addr", a.Config.Server.Addr, "backend", a.Config.Backend.Mode)
		return httpserver.Run(ctx, srv, a.Config.Server.ShutdownTimeout)
	})
	if a.watcher != nil {
		g.Go(func() error {
			err := a.watcher.WatchExpiry(ctx, a.Config.Kratos.ExpiryCheckInterval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (a *App) Close() {
	closers := a.closers
	a.closers = nil
	for _, closeFn := range slices.Backward(closers) {
		closeFn()
	}
}
