package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/metrics"
	"github.com/FACorreiaa/comptine/pkg/money"
	"github.com/FACorreiaa/comptine/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, *ledger.Snapshot, ledger.Month) error {
	return errors.New("disk full")
}

type runs struct {
	mu      sync.Mutex
	results []string
}

func (r *runs) AutosaveRun(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *runs) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func TestScheduler_SaveNow(t *testing.T) {
	ctx := context.Background()
	stack := history.NewStack(ledger.NewStore(money.EUR), discard())
	mem := storage.NewMemoryStore(money.EUR)
	rec := &runs{}
	feb := ledger.NewMonth(2024, time.February)
	s := NewScheduler(stack, mem, discard()).
		WithRecorder(rec).
		WithMonth(func() ledger.Month { return feb })

	result, err := s.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.AutosaveSkipped, result, "a fresh ledger is clean")

	require.NoError(t, stack.Apply(history.NewAddAccount("Checking")))
	result, err = s.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.AutosaveSaved, result)
	assert.True(t, stack.IsClean())
	assert.Equal(t, 1, mem.Saves())

	loaded, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, feb, loaded.Month)
	_, ok := loaded.Store.AccountByName("Checking")
	assert.True(t, ok)

	result, err = s.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.AutosaveSkipped, result)
	assert.Equal(t, 1, mem.Saves())

	assert.Equal(t, []string{metrics.AutosaveSkipped, metrics.AutosaveSaved, metrics.AutosaveSkipped}, rec.all())
}

func TestScheduler_SaveFailureKeepsLedgerDirty(t *testing.T) {
	stack := history.NewStack(ledger.NewStore(money.EUR), discard())
	require.NoError(t, stack.Apply(history.NewAddAccount("Checking")))

	s := NewScheduler(stack, failingSaver{}, discard())
	result, err := s.SaveNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, metrics.AutosaveFailed, result)
	assert.False(t, stack.IsClean())
}

func TestScheduler_StartRunsJob(t *testing.T) {
	stack := history.NewStack(ledger.NewStore(money.EUR), discard())
	require.NoError(t, stack.Apply(history.NewAddAccount("Checking")))

	mem := storage.NewMemoryStore(money.EUR)
	m := metrics.New(prometheus.NewRegistry())
	s := NewScheduler(stack, mem, discard()).WithRecorder(m)

	require.NoError(t, s.Start("@every 1s"))
	defer s.Stop()

	assert.Eventually(t, func() bool { return mem.Saves() == 1 }, 5*time.Second, 50*time.Millisecond)
	assert.True(t, stack.IsClean())
}

func TestScheduler_RunNow(t *testing.T) {
	stack := history.NewStack(ledger.NewStore(money.EUR), discard())
	require.NoError(t, stack.Apply(history.NewAddAccount("Checking")))

	mem := storage.NewMemoryStore(money.EUR)
	s := NewScheduler(stack, mem, discard())
	s.RunNow()

	assert.Eventually(t, func() bool { return mem.Saves() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(history.NewStack(ledger.NewStore(money.EUR), discard()), storage.NewMemoryStore(money.EUR), discard())
	err := s.Start("every now and then")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid autosave schedule")
}
