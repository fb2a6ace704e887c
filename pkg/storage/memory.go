package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// MemoryStore keeps the encoded ledger in memory. It goes through the same
// codec as FileStore.
type MemoryStore struct {
	mu       sync.Mutex
	currency string
	data     []byte
	saves    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(currency string) *MemoryStore {
	return &MemoryStore{currency: currency}
}

// Load decodes the last saved ledger, or returns an empty one.
func (s *MemoryStore) Load(_ context.Context) (*Loaded, error) {
	s.mu.Lock()
	data := slices.Clone(s.data)
	s.mu.Unlock()
	if data == nil {
		return &Loaded{Store: ledger.NewStore(s.currency)}, nil
	}
	store, month, err := Decode(data, s.currency)
	if err != nil {
		return nil, err
	}
	return &Loaded{Store: store, Month: month}, nil
}

// Save encodes snap and keeps the result.
func (s *MemoryStore) Save(_ context.Context, snap *ledger.Snapshot, month ledger.Month) error {
	data, err := Encode(snap, month)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Bytes returns the last saved document.
func (s *MemoryStore) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data)
}

// Saves counts successful Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
