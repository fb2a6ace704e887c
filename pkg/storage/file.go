package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// FileStore implements LedgerStore on a single YAML file.
type FileStore struct {
	path     string
	currency string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewFileStore creates a file store, making sure the parent directory exists.
func NewFileStore(path, currency string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger file path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	return &FileStore{path: path, currency: currency, logger: logger}, nil
}

// Path is the ledger file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the ledger file. A missing file yields an empty ledger.
func (s *FileStore) Load(ctx context.Context) (*Loaded, error) {
	_, span := tracer.Start(ctx, "storage.Load")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.path", s.path))

	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("ledger file not found, starting empty", slog.String("path", s.path))
		return &Loaded{Store: ledger.NewStore(s.currency)}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	store, month, err := Decode(data, s.currency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}

	snap := store.Snapshot()
	span.SetAttributes(
		attribute.Int("ledger.accounts", len(snap.Accounts())),
		attribute.Int("ledger.operations", snap.OperationCount()),
	)
	s.logger.Debug("ledger loaded",
		slog.String("path", s.path),
		slog.Int("accounts", len(snap.Accounts())),
		slog.Int("operations", snap.OperationCount()),
	)
	return &Loaded{Store: store, Month: month}, nil
}

// Save encodes snap and replaces the ledger file atomically.
func (s *FileStore) Save(ctx context.Context, snap *ledger.Snapshot, month ledger.Month) error {
	_, span := tracer.Start(ctx, "storage.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.path", s.path),
		attribute.Int64("ledger.generation", int64(snap.Generation())),
	)

	data, err := Encode(snap, month)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}

	s.logger.Debug("ledger saved", slog.String("path", s.path), slog.Int("bytes", len(data)))
	return nil
}

// writeFileAtomic writes to a temporary file in the same directory and renames
// it over path, so readers never see a partial ledger.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) // Cleanup on error
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set ledger permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
