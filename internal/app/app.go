// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/favicon-resolver/internal/api"
	"github.com/JakeFAU/favicon-resolver/internal/cache"
	"github.com/JakeFAU/favicon-resolver/internal/config"
	"github.com/JakeFAU/favicon-resolver/internal/extract"
	collyfetcher "github.com/JakeFAU/favicon-resolver/internal/fetcher/colly"
	"github.com/JakeFAU/favicon-resolver/internal/fetcher/headless"
	"github.com/JakeFAU/favicon-resolver/internal/hash/md5"
	"github.com/JakeFAU/favicon-resolver/internal/headless/detector"
	"github.com/JakeFAU/favicon-resolver/internal/icon"
	"github.com/JakeFAU/favicon-resolver/internal/logging"
	gcsstore "github.com/JakeFAU/favicon-resolver/internal/storage/gcs"
	localstore "github.com/JakeFAU/favicon-resolver/internal/storage/local"
	memorystore "github.com/JakeFAU/favicon-resolver/internal/storage/memory"
	pgstore "github.com/JakeFAU/favicon-resolver/internal/storage/postgres"
	redisstore "github.com/JakeFAU/favicon-resolver/internal/storage/redis"
)

const shutdownTimeout = 10 * time.Second

// App holds the shared, long-lived services for the application. It is
// built once at startup and handed to the CLI commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	cache    *cache.IconCache
	resolver *icon.Resolver
	server   *api.Server
	closers  []func() error
}

// New builds every service described by cfg. It fails fast when a
// configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	if cfg.Cache.Enabled {
		store, closer, err := newStore(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache store: %w", err)
		}
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
		iconCache, err := cache.New(store, md5.New(), cache.Config{HotMaxBytes: cfg.Cache.MemoryMaxBytes}, logging.Component(logger, "cache"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init icon cache: %w", err)
		}
		a.cache = iconCache
		a.closers = append(a.closers, func() error {
			iconCache.Close()
			return nil
		})
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.FetchTimeout(),
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	}, logging.Component(logger, "fetcher"))

	var renderer icon.PageRenderer
	if cfg.Headless.Enabled {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			renderer = r
			a.closers = append(a.closers, func() error {
				r.Close()
				return nil
			})
		}
	}

	discoverer := icon.NewDiscoverer(fetcher, extract.NewGoquery(), renderer, logging.Component(logger, "discovery"))
	if renderer != nil && cfg.Headless.DetectSPA {
		discoverer.SetRenderPolicy(detector.NewHeuristic(cfg.Headless.BodyLengthThreshold))
	}
	validator := icon.NewValidator(fetcher, icon.ValidatorConfig{
		ProbeTimeout:   cfg.ProbeTimeout(),
		MaxConcurrency: cfg.Validator.MaxConcurrency,
	}, logging.Component(logger, "validator"))

	var iconCache icon.IconCache
	if a.cache != nil {
		iconCache = a.cache
	}
	resolveTimeout := 2*cfg.FetchTimeout() + cfg.ProbeTimeout()
	a.resolver = icon.NewResolver(
		discoverer,
		validator,
		fetcher,
		iconCache,
		icon.ResolverConfig{Caching: cfg.Cache.Enabled, ResolveTimeout: resolveTimeout},
		logging.Component(logger, "resolver"),
	)
	a.server = api.NewServer(a.resolver, api.Options{
		CacheMaxAge:    cfg.CacheMaxAge(),
		RequestTimeout: resolveTimeout,
	}, logging.Component(logger, "api"))

	logger.Info("application services initialized",
		zap.Bool("caching", cfg.Cache.Enabled),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("headless", renderer != nil),
	)
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Resolver returns the icon resolver.
func (a *App) Resolver() *icon.Resolver {
	return a.resolver
}

// FindIcons lists every validated icon for requestedURL.
func (a *App) FindIcons(ctx context.Context, requestedURL string) ([]icon.ValidatedIcon, error) {
	return a.resolver.FindIcons(ctx, requestedURL)
}

// BestIcon returns the preferred icon for requestedURL.
func (a *App) BestIcon(ctx context.Context, requestedURL string) (icon.ValidatedIcon, error) {
	return a.resolver.BestIcon(ctx, requestedURL)
}

// Purge drops the cached icon for requestedURL.
func (a *App) Purge(ctx context.Context, requestedURL string) error {
	return a.resolver.Purge(ctx, requestedURL)
}

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// CacheEnabled reports whether an icon cache was configured.
func (a *App) CacheEnabled() bool {
	return a.cache != nil
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases every backend in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func newStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		logger.Info("using local cache store", zap.String("dir", cfg.Dir))
		store, err := localstore.New(localstore.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.BackendMemory:
		logger.Info("using in-memory cache store")
		return memorystore.NewBlobStore(), nil, nil
	case config.BackendGCS:
		logger.Info("using gcs cache store", zap.String("bucket", cfg.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendRedis:
		logger.Info("using redis cache store", zap.String("addr", cfg.Redis.Addr))
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendPostgres:
		logger.Info("using postgres cache store", zap.String("table", cfg.Postgres.Table))
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error {
			store.Close()
			return nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
