// Package app wires configuration, storage, the breed client and the rules engine together.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"spycats/internal/breeds"
	"spycats/internal/config"
	"spycats/internal/db"
	"spycats/internal/engine"
	"spycats/internal/metrics"
	"spycats/internal/migrate"
	"spycats/internal/server"
)

// Overrides holds values from flags or the environment that win over spycats.yml.
type Overrides struct {
	DBDriver  string
	DBDSN     string
	BreedsURL string
	APIKey    string
	LogLevel  string
	LogFormat string
	Addr      string
	BasePath  string
}

// ResolveConfig loads spycats.yml from the workspace (defaults when absent) and applies overrides.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.Driver, o.DBDriver)
	set(&cfg.Database.DSN, o.DBDSN)
	set(&cfg.Breeds.URL, o.BreedsURL)
	set(&cfg.Breeds.APIKey, o.APIKey)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Log.Format, o.LogFormat)
	set(&cfg.Server.Addr, o.Addr)
	set(&cfg.Server.BasePath, o.BasePath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is an opened, migrated service instance.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Engine  engine.Engine
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// SchemaVersion is the migration level after Open.
	SchemaVersion int
}

// Open connects to the configured database, applies migrations and builds the engine.
// A nil src uses the HTTP breed client from cfg.Breeds.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger, src breeds.Source) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := db.Config{Workspace: workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	dialect, err := dbCfg.Dialect()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	version, err := migrate.Migrate(conn, dialect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if src == nil {
		client := breeds.New(cfg.Breeds.URL)
		client.APIKey = cfg.Breeds.APIKey
		if cfg.Breeds.Timeout.Duration > 0 {
			client.Timeout = cfg.Breeds.Timeout.Duration
		}
		src = client
	}
	m := metrics.New()
	e := engine.New(conn, dialect, src)
	e.Metrics = m
	e.Logger = logger
	logger.DebugContext(ctx, "database ready", "driver", string(dialect), "schema_version", version)
	return &App{
		Config:        cfg,
		DB:            conn,
		Dialect:       dialect,
		Engine:        e,
		Logger:        logger,
		Metrics:       m,
		SchemaVersion: version,
	}, nil
}

// Handler builds the HTTP API for this instance.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:   a.Engine,
		BasePath: a.Config.Server.BasePath,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}
