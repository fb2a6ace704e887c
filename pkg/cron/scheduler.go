// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/metrics"
)

// DefaultSchedule saves every five minutes.
const DefaultSchedule = "@every 5m"

// Ledger is the part of the command stack the autosave job needs.
type Ledger interface {
	Snapshot() *ledger.Snapshot
	IsClean() bool
	MarkSaved(snap *ledger.Snapshot) bool
}

// Saver persists a snapshot.
type Saver interface {
	Save(ctx context.Context, snap *ledger.Snapshot, month ledger.Month) error
}

// Recorder receives the outcome of every autosave run.
type Recorder interface {
	AutosaveRun(result string, elapsed time.Duration)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	ledger   Ledger
	store    Saver
	recorder Recorder             // Optional
	month    func() ledger.Month // Optional
	timeout  time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

// NewScheduler creates a new autosave scheduler.
func NewScheduler(l Ledger, store Saver, logger *slog.Logger) *Scheduler {
	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:    c,
		ledger:  l,
		store:   store,
		timeout: time.Minute,
		logger:  logger,
	}
}

// WithRecorder reports every run to r.
func (s *Scheduler) WithRecorder(r Recorder) *Scheduler {
	s.recorder = r
	return s
}

// WithMonth sets the source of the budget month written with the ledger.
func (s *Scheduler) WithMonth(fn func() ledger.Month) *Scheduler {
	s.month = fn
	return s
}

// Start begins the autosave job on the given cron spec.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(spec, s.autosave); err != nil {
		return fmt.Errorf("invalid autosave schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers an autosave in the background.
func (s *Scheduler) RunNow() {
	go s.autosave()
}

func (s *Scheduler) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.SaveNow(ctx); err != nil {
		s.logger.Error("autosave failed", slog.Any("error", err))
	}
}

// SaveNow writes the ledger if it changed since the last save and returns
// the run result. Edits made while saving keep the ledger dirty.
func (s *Scheduler) SaveNow(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if s.ledger.IsClean() {
		s.record(metrics.AutosaveSkipped, 0)
		return metrics.AutosaveSkipped, nil
	}

	snap := s.ledger.Snapshot()
	var month ledger.Month
	if s.month != nil {
		month = s.month()
	}
	if err := s.store.Save(ctx, snap, month); err != nil {
		s.record(metrics.AutosaveFailed, time.Since(start))
		return metrics.AutosaveFailed, fmt.Errorf("autosave: %w", err)
	}

	elapsed := time.Since(start)
	marked := s.ledger.MarkSaved(snap)
	s.record(metrics.AutosaveSaved, elapsed)
	s.logger.Debug("ledger autosaved",
		slog.Uint64("generation", snap.Generation()),
		slog.Bool("clean", marked),
		slog.Duration("elapsed", elapsed),
	)
	return metrics.AutosaveSaved, nil
}

func (s *Scheduler) record(result string, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.AutosaveRun(result, elapsed)
	}
}
