// Package app wires together configuration, the tsdb client, and the local
// store into a single Deps struct that commands receive at runtime.
package app

import (
	"log/slog"
	"os"

	"github.com/dheyman/epiflux/internal/config"
	"github.com/dheyman/epiflux/internal/store"
	"github.com/dheyman/epiflux/internal/tsdb"
)

// Deps holds all runtime dependencies injected into command Run functions.
type Deps struct {
	Config *config.Config
	Client *tsdb.Client
	Store  *store.Store
	Logger *slog.Logger
}

// New builds a Deps from resolved config. The store is opened eagerly since
// every command that touches the merge ledger or district cache needs it;
// callers must call Deps.Close when done.
func New(cfg *config.Config) (*Deps, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg)}))

	client := tsdb.NewClient(
		cfg.TSDBURL,
		cfg.Database,
		cfg.Precision,
		tsdb.Auth{User: cfg.TSDBUser, Password: cfg.TSDBPassword},
		cfg.Timeout,
		cfg.Rate,
		cfg.Debug,
		logger,
	)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	return &Deps{
		Config: cfg,
		Client: client,
		Store:  st,
		Logger: logger,
	}, nil
}

// logLevel maps the config's Debug/Verbose/Quiet flags to a slog level:
// Debug wins outright, Quiet silences everything but warnings and above.
func logLevel(cfg *config.Config) slog.Level {
	switch {
	case cfg.Debug:
		return slog.LevelDebug
	case cfg.Quiet:
		return slog.LevelWarn
	case cfg.Verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// Close releases the store's file handle. Safe to call on a nil Deps.
func (d *Deps) Close() error {
	if d == nil || d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
