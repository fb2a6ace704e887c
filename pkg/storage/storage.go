// Package storage persists ledger documents as YAML files.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

var tracer = otel.Tracer("comptine/storage")

// Loaded is a decoded ledger file.
type Loaded struct {
	Store *ledger.Store
	// Month is the budget month the file was last viewed at, zero when unset.
	Month ledger.Month
}

// LedgerStore defines the interface for ledger persistence.
type LedgerStore interface {
	// Load reads the ledger. A store that holds nothing yet returns an empty
	// ledger in the configured currency.
	Load(ctx context.Context) (*Loaded, error)

	// Save writes snap, replacing what was stored before.
	Save(ctx context.Context, snap *ledger.Snapshot, month ledger.Month) error
}

// StorageType identifies the storage backend.
type StorageType string

const (
	StorageTypeFile   StorageType = "file"
	StorageTypeMemory StorageType = "memory"
)

// Config holds storage configuration.
type Config struct {
	Type     StorageType
	Path     string
	Currency string
}

// New creates a LedgerStore based on configuration.
func New(cfg Config, logger *slog.Logger) (LedgerStore, error) {
	switch cfg.Type {
	case StorageTypeMemory:
		return NewMemoryStore(cfg.Currency), nil
	case StorageTypeFile, "":
		return NewFileStore(cfg.Path, cfg.Currency, logger)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
