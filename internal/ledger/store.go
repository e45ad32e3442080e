package ledger

import (
	"context"
	"fmt"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
)

// Store is the persistence backend of the ledger
type Store interface {
	// Get returns the record for id, or nil when there is none
	Get(ctx context.Context, id string) (*Record, error)

	// Upsert creates or replaces the record with the same ItemID
	Upsert(ctx context.Context, record Record) error

	// List returns every record in insertion order
	List(ctx context.Context) ([]Record, error)

	Close() error
}

// Open creates the Store selected by cfg.Driver
func Open(cfg config.LedgerConfig) (Store, error) {
	switch cfg.Driver {
	case config.LedgerDriverCSV, "":
		return NewCSVStore(cfg.Path)
	case config.LedgerDriverSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s", cfg.Driver)
	}
}
