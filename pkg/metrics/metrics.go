// Package metrics exposes prometheus collectors for the command stack,
// the importer and the autosave job.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/comptine/internal/domain/history"
)

const namespace = "comptine"

// Metrics implements history.Observer and the importer's Recorder.
type Metrics struct {
	commandsApplied *prometheus.CounterVec
	commandsUndone  *prometheus.CounterVec
	commandsRedone  *prometheus.CounterVec
	commandsFailed  *prometheus.CounterVec
	applyDuration   *prometheus.HistogramVec
	undoDepth       prometheus.Gauge
	redoDepth       prometheus.Gauge

	imports      prometheus.Counter
	importedRows *prometheus.CounterVec

	autosaves       *prometheus.CounterVec
	lastAutosave    prometheus.Gauge
	autosaveSeconds prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "commands_applied_total",
			Help:      "Commands applied, by kind.",
		}, []string{"kind"}),
		commandsUndone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "commands_undone_total",
			Help:      "Commands undone, by kind.",
		}, []string{"kind"}),
		commandsRedone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "commands_redone_total",
			Help:      "Commands redone, by kind.",
		}, []string{"kind"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "commands_failed_total",
			Help:      "Commands refused, by kind and stack action.",
		}, []string{"kind", "action"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying a command.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		undoDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "undo_depth",
			Help:      "Entries on the undo stack.",
		}),
		redoDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "redo_depth",
			Help:      "Entries on the redo stack.",
		}),
		imports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Imports applied to the ledger.",
		}),
		importedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Imported file rows, by outcome.",
		}, []string{"outcome"}),
		autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "runs_total",
			Help:      "Autosave runs, by result.",
		}, []string{"result"}),
		lastAutosave: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful save.",
		}),
		autosaveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "duration_seconds",
			Help:      "Time spent writing the ledger.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.commandsApplied, m.commandsUndone, m.commandsRedone, m.commandsFailed,
		m.applyDuration, m.undoDepth, m.redoDepth,
		m.imports, m.importedRows,
		m.autosaves, m.lastAutosave, m.autosaveSeconds,
	)
	return m
}

// ============================================================================
// history.Observer
// ============================================================================

func (m *Metrics) CommandApplied(kind string, elapsed time.Duration) {
	m.commandsApplied.WithLabelValues(kind).Inc()
	m.applyDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) CommandUndone(kind string) {
	m.commandsUndone.WithLabelValues(kind).Inc()
}

func (m *Metrics) CommandRedone(kind string) {
	m.commandsRedone.WithLabelValues(kind).Inc()
}

func (m *Metrics) CommandFailed(kind, action string) {
	m.commandsFailed.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) HistoryDepth(undo, redo int) {
	m.undoDepth.Set(float64(undo))
	m.redoDepth.Set(float64(redo))
}

// ============================================================================
// Import
// ============================================================================

// ImportApplied records the outcome of an applied import.
func (m *Metrics) ImportApplied(s history.ImportSummary) {
	m.imports.Inc()
	m.importedRows.WithLabelValues("imported").Add(float64(s.Imported))
	m.importedRows.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	m.importedRows.WithLabelValues("invalid").Add(float64(s.Invalid))
	m.importedRows.WithLabelValues("uncategorized").Add(float64(s.Uncategorized))
}

// ============================================================================
// Autosave
// ============================================================================

// Autosave results.
const (
	AutosaveSaved   = "saved"
	AutosaveSkipped = "skipped"
	AutosaveFailed  = "failed"
)

// AutosaveRun records one autosave attempt.
func (m *Metrics) AutosaveRun(result string, elapsed time.Duration) {
	m.autosaves.WithLabelValues(result).Inc()
	if result == AutosaveSaved {
		m.lastAutosave.SetToCurrentTime()
		m.autosaveSeconds.Observe(elapsed.Seconds())
	}
}

var _ history.Observer = (*Metrics)(nil)
