package cmd

import (
	"context"
	"os"

	"example.com/backstage/dairy/config"
	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/backend/postgres"
	"example.com/backstage/dairy/internal/backend/rest"
	"example.com/backstage/dairy/internal/cache"
	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/services"
	"example.com/backstage/dairy/internal/session"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app holds the collaborators every command needs
type app struct {
	cfg       config.Config
	client    backend.Client
	auth      backend.Authenticator
	cache     *cache.RedisCache
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
	publisher messaging.Publisher
	session   *session.Session
	trips     *services.TripTracker
}

// newApp loads configuration and connects what it can. Optional
// components that fail to start are logged and replaced by their
// disabled form.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}
	configureLogging(cfg)

	client, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		client:  client,
		metrics: metrics.NewMetrics(),
		trips:   services.NewTripTracker(),
	}
	if auth, ok := client.(backend.Authenticator); ok {
		a.auth = auth
	}

	a.cache, err = cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		a.cache, _ = cache.NewRedisCache(config.RedisConfig{})
	}

	a.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		a.tracer = tracing.Noop()
	}

	a.publisher, err = messaging.NewPublisher(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, delivery events will be dropped")
		a.publisher = messaging.Discard{}
	}

	store := session.NewStore(a.cache, profile, cfg.Session.IdentityFile)
	a.session = session.New(client, a.auth, store)
	if err := a.session.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore saved session")
	}

	return a, nil
}

func newBackend(cfg config.Config) (backend.Client, error) {
	if !cfg.Backend.Configured(cfg.DB) {
		log.Warn().Str("driver", cfg.Backend.Driver).Msg("Backend not configured, running with a disabled backend")
		return backend.NewDisabled(), nil
	}

	if cfg.Backend.Driver == config.DriverPostgres {
		db, err := postgres.Open(cfg.DB)
		if err != nil {
			return nil, err
		}
		return postgres.NewClient(db), nil
	}

	return rest.NewClient(rest.Options{
		URL:          cfg.Backend.URL,
		AnonKey:      cfg.Backend.AnonKey,
		FunctionsURL: cfg.Backend.FunctionsEndpoint(),
		Timeout:      cfg.Backend.Timeout,
	}), nil
}

func configureLogging(cfg config.Config) {
	if cfg.Logging.Format == "json" && cfg.Environment != "development" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
}

// deps are the shared collaborators handed to the services
func (a *app) deps() services.Deps {
	return services.Deps{
		Cache:     a.cache,
		Metrics:   a.metrics,
		Tracer:    a.tracer,
		Publisher: a.publisher,
		Trips:     a.trips,
	}
}

// services acts as the signed-in identity
func (a *app) services() *services.Services {
	return services.New(a.session.Backend(), a.deps())
}

// Close releases connections
func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close publisher")
	}
	if a.cache.Enabled() {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis cache")
		}
	}
	a.tracer.Close()
}
