package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/qkgalias/capstone-hub/internal/config"
	"github.com/qkgalias/capstone-hub/internal/dashboard"
	"github.com/qkgalias/capstone-hub/internal/httpapi"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/material/postgres"
	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/internal/ordering"
	"github.com/qkgalias/capstone-hub/internal/platform/migrations"
	"github.com/qkgalias/capstone-hub/internal/session"
	"github.com/qkgalias/capstone-hub/supabase/client"
)

const (
	shutdownTimeout    = 10 * time.Second
	limiterCleanupTick = time.Minute
	limiterIdleTTL     = 10 * time.Minute
)

// Deps encapsulates external dependencies. Nil fields are built from the
// config.
type Deps struct {
	Identity session.IdentityProvider
	Stores   dashboard.StoreFactory
	DB       *sql.DB
}

// Application ties the hub's components together and manages their lifecycle.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	db     *sql.DB
	ownsDB bool

	Metrics    *metrics.Metrics
	Catalog    *ordering.Catalog
	MaxColumns int
	Gateway    *session.Gateway
	Boards     *dashboard.Workspaces
	API        *httpapi.Server
}

// New builds a fully initialised application.
func New(ctx context.Context, cfg *config.Config, deps Deps, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("capstone-hub", cfg.LogLevel, cfg.LogFormat)
	}
	a := &Application{cfg: cfg, log: log, Metrics: metrics.New(), db: deps.DB}

	cats, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	a.Catalog = ordering.NewCatalog(cats.Categories, cats.Fallback)
	a.MaxColumns = cats.MaxColumns

	var sb *client.Client
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		sb, err = client.New(client.Config{
			URL:     cfg.SupabaseURL,
			APIKey:  cfg.SupabaseAnonKey,
			Timeout: cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create supabase client: %w", err)
		}
	} else {
		log.Warn("SUPABASE_URL or SUPABASE_ANON_KEY not set; login disabled")
	}

	idp := deps.Identity
	if idp == nil && sb != nil {
		idp = sb.Auth()
	}
	a.Gateway = session.NewGateway(session.Config{
		Email:     cfg.LoginEmail,
		Username:  cfg.LoginUsername,
		URL:       cfg.SupabaseURL,
		APIKey:    cfg.SupabaseAnonKey,
		JWTSecret: cfg.SupabaseJWTSecret,
	}, idp, log)

	stores := deps.Stores
	if stores == nil {
		stores, err = a.storeFactory(ctx, sb)
		if err != nil {
			return nil, err
		}
	}

	a.Boards = dashboard.NewWorkspaces(stores, dashboard.Options{
		Catalog:    a.Catalog,
		MaxColumns: a.MaxColumns,
		Metrics:    a.Metrics,
		Logger:     log,
	})
	a.API = httpapi.New(httpapi.Config{
		LoginPath:      cfg.LoginPath,
		AllowedOrigins: cfg.AllowedOrigins,
		LoginRate:      cfg.LoginRate,
		LoginBurst:     cfg.LoginBurst,
	}, a.Gateway, a.Boards, a.Metrics, log)

	return a, nil
}

func (a *Application) storeFactory(ctx context.Context, sb *client.Client) (dashboard.StoreFactory, error) {
	switch a.cfg.Store {
	case config.StorePostgres:
		if a.db == nil {
			db, err := postgres.Open(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			a.db, a.ownsDB = db, true
		}
		store := material.Instrument(postgres.New(a.db), config.StorePostgres, a.Metrics)
		return func(*session.Session) material.Store { return store }, nil

	default:
		if sb == nil {
			return func(*session.Session) material.Store { return nil }, nil
		}
		base := material.NewSupabaseStore(sb)
		return func(s *session.Session) material.Store {
			return material.Instrument(base.WithAccessToken(s.AccessToken), config.StoreSupabase, a.Metrics)
		}, nil
	}
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func (a *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.API.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.API.LoginLimiter().StartCleanup(cleanupCtx, limiterCleanupTick, limiterIdleTTL)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.log.WithField("addr", a.cfg.Addr).WithField("store", a.cfg.Store).Info("hub listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	return err
}

// Migrate applies the embedded schema to the configured database.
func (a *Application) Migrate(ctx context.Context) error {
	if a.db == nil {
		return errors.New("migrate: no database configured")
	}
	return migrations.Apply(ctx, a.db)
}

// Close releases the database handle when the application opened it.
func (a *Application) Close() error {
	if a.db != nil && a.ownsDB {
		return a.db.Close()
	}
	return nil
}
