package categorization

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

func newTestService(caseInsensitive bool) *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), caseInsensitive)
}

func TestService_PlanRules(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertRule(0, ledger.Rule{Prefix: "CB CARREFOUR", CategoryID: f.groceries.ID}))
	require.NoError(t, f.store.InsertRule(1, ledger.Rule{Prefix: "CB SNCF", CategoryID: f.transport.ID}))

	market := f.add(t, ledger.Date(2024, 3, 2), "CB CARREFOUR MARKET", "-54.20", nil)
	train := f.add(t, ledger.Date(2024, 3, 3), "CB SNCF", "-30", nil)
	f.add(t, ledger.Date(2024, 3, 4), "VIR SALAIRE", "2000", nil)
	f.add(t, ledger.Date(2024, 3, 5), "CB CARREFOUR CITY", "-10", &f.transport.ID)

	svc := newTestService(false)
	snap := f.store.Snapshot()

	assert.Len(t, svc.Uncategorized(snap), 3)

	assignments := svc.PlanRules(snap)
	require.Len(t, assignments, 2)
	assert.Equal(t, Assignment{OperationID: market.ID, CategoryID: f.groceries.ID, RuleIndex: 0}, assignments[0])
	assert.Equal(t, Assignment{OperationID: train.ID, CategoryID: f.transport.ID, RuleIndex: 1}, assignments[1])
}

func TestService_Categorize(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertRule(0, ledger.Rule{Prefix: "cb carrefour", CategoryID: f.groceries.ID}))

	t.Run("exact case", func(t *testing.T) {
		_, ok := newTestService(false).Categorize(f.store.Snapshot(), "CB CARREFOUR")
		assert.False(t, ok)
	})

	t.Run("case insensitive", func(t *testing.T) {
		got, ok := newTestService(true).Categorize(f.store.Snapshot(), "CB CARREFOUR")
		require.True(t, ok)
		assert.Equal(t, f.groceries.ID, got)
	})

	t.Run("engine follows the snapshot", func(t *testing.T) {
		svc := newTestService(false)
		before := f.store.Snapshot()
		assert.Equal(t, 1, svc.Engine(before).RuleCount())
		assert.Same(t, svc.Engine(before), svc.Engine(before))

		require.NoError(t, f.store.InsertRule(1, ledger.Rule{Prefix: "PRLV", CategoryID: f.transport.ID}))
		assert.Equal(t, 2, svc.Engine(f.store.Snapshot()).RuleCount())
	})
}

func TestService_Suggest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InsertRule(0, ledger.Rule{Prefix: "CB SNCF", CategoryID: f.transport.ID}))

	f.add(t, ledger.Date(2024, 3, 1), "CB CARREFOUR 01/03", "-20", &f.groceries.ID)
	pending := f.add(t, ledger.Date(2024, 3, 8), "CB CARREFOUR 08/03", "-25", nil)
	train := f.add(t, ledger.Date(2024, 3, 9), "CB SNCF 09/03", "-30", nil)

	svc := newTestService(false)
	snap := f.store.Snapshot()

	t.Run("from history", func(t *testing.T) {
		got, err := svc.Suggest(snap, pending.ID, 3)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, f.groceries.ID, got[0].CategoryID)
		assert.False(t, got[0].FromRule)
	})

	t.Run("rule first", func(t *testing.T) {
		got, err := svc.Suggest(snap, train.ID, 3)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, f.transport.ID, got[0].CategoryID)
		assert.True(t, got[0].FromRule)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := svc.Suggest(snap, uuid.New(), 3)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("description not in the ledger", func(t *testing.T) {
		got := svc.SuggestDescription(snap, "CB CARREFOUR 15/03", 1)
		require.Len(t, got, 1)
		assert.Equal(t, f.groceries.ID, got[0].CategoryID)

		assert.Empty(t, svc.SuggestDescription(snap, "VIR NOTAIRE", 3))
	})
}
