// Package storage provides the QuoteStore adapters: a JSON document on disk
// and an SQLite database.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

// Store is a QuoteStore that can report its health and be closed.
type Store interface {
	ports.QuoteStore
	ports.HealthChecker
	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	switch driver {
	case "", config.StorageDriverJSON:
		return NewJSONFileStore(cfg.Path, logger), nil
	case config.StorageDriverSQLite, "sqlite3":
		return OpenSQLite(ctx, cfg.Path, cfg.BusyTimeout, logger)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
