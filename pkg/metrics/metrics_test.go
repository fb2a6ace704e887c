package metrics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

func TestMetrics_ObservesStack(t *testing.T) {
	m := New(prometheus.NewRegistry())
	s := history.NewStack(ledger.NewStore(money.EUR), slog.New(slog.NewTextHandler(io.Discard, nil)), history.WithObserver(m))

	add := history.NewAddAccount("Checking")
	require.NoError(t, s.Apply(add))
	require.NoError(t, s.Apply(history.NewRenameAccount(add.Account.ID, "Joint")))
	require.NoError(t, s.Undo())
	require.NoError(t, s.Redo())
	require.NoError(t, s.Undo())
	require.Error(t, s.Apply(history.NewRenameAccount(uuid.New(), "Ghost")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsApplied.WithLabelValues("add_account")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsApplied.WithLabelValues("rename_account")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsUndone.WithLabelValues("rename_account")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsRedone.WithLabelValues("rename_account")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsFailed.WithLabelValues("rename_account", "apply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.undoDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redoDepth))
	assert.Equal(t, 2, testutil.CollectAndCount(m.applyDuration))
}

func TestMetrics_ImportApplied(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ImportApplied(history.ImportSummary{Rows: 10, Imported: 6, Duplicates: 2, Invalid: 2, Uncategorized: 3})
	m.ImportApplied(history.ImportSummary{Rows: 1, Imported: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.imports))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.importedRows.WithLabelValues("imported")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.importedRows.WithLabelValues("duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.importedRows.WithLabelValues("invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importedRows.WithLabelValues("uncategorized")))
}

func TestMetrics_AutosaveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.AutosaveRun(AutosaveSkipped, 0)
	m.AutosaveRun(AutosaveFailed, time.Millisecond)
	m.AutosaveRun(AutosaveSaved, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.autosaves.WithLabelValues(AutosaveSaved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autosaves.WithLabelValues(AutosaveSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autosaves.WithLabelValues(AutosaveFailed)))
	assert.Greater(t, testutil.ToFloat64(m.lastAutosave), 0.0)
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
