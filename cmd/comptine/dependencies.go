package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/comptine/internal/domain/budget"
	"github.com/FACorreiaa/comptine/internal/domain/categorization"
	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/import/normalizer"
	importservice "github.com/FACorreiaa/comptine/internal/domain/import/service"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/config"
	"github.com/FACorreiaa/comptine/pkg/cron"
	"github.com/FACorreiaa/comptine/pkg/logger"
	"github.com/FACorreiaa/comptine/pkg/metrics"
	"github.com/FACorreiaa/comptine/pkg/storage"
)

// suggestionMinScore is the fuzzy score an import row needs for a category
// taken from similar operations when no rule matches.
const suggestionMinScore = 90

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	// Observability
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics // nil when metrics are disabled

	// Ledger
	LedgerStore  storage.LedgerStore
	Stack        *history.Stack
	Month        ledger.Month // budget month the ledger was last viewed at
	DeletePolicy history.DeletePolicy

	// Services
	Calculator            *budget.Calculator
	CategorizationService *categorization.Service
	Importer              *importservice.Importer
	PrefixSuggester       *normalizer.PrefixSuggester
	Scheduler             *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: log,
	}

	deps.initObservability()

	if err := deps.initLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to init ledger: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	log.Debug("all dependencies initialized successfully")

	return deps, nil
}

// initObservability creates the metrics registry when metrics are enabled
func (d *Dependencies) initObservability() {
	if !d.Config.Observability.MetricsEnabled {
		return
	}
	d.Registry = prometheus.NewRegistry()
	d.Metrics = metrics.New(d.Registry)
}

// initLedger loads the ledger file and builds the command stack around it
func (d *Dependencies) initLedger(ctx context.Context) error {
	store, err := storage.New(storage.Config{
		Type:     storage.StorageTypeFile,
		Path:     d.Config.Ledger.LedgerPath(),
		Currency: d.Config.Ledger.Currency,
	}, logger.WithComponent(d.Logger, logger.ComponentStorage))
	if err != nil {
		return err
	}
	d.LedgerStore = store

	loaded, err := store.Load(ctx)
	if err != nil {
		return err
	}
	d.Month = loaded.Month

	d.DeletePolicy, err = history.ParseDeletePolicy(d.Config.Ledger.CategoryDeletePolicy)
	if err != nil {
		return err
	}

	d.Calculator = budget.NewCalculator(budget.PolicyFromConfig(d.Config.Budget.SavePolicy, d.Config.Budget.SavingsAccount))

	opts := []history.Option{
		history.WithLimit(d.Config.Ledger.HistoryLimit),
		history.WithCalculator(d.Calculator),
		history.WithCaseInsensitiveRules(d.Config.Ledger.RuleCaseInsensitive),
	}
	if d.Metrics != nil {
		opts = append(opts, history.WithObserver(d.Metrics))
	}
	d.Stack = history.NewStack(loaded.Store, logger.WithComponent(d.Logger, logger.ComponentHistory), opts...)
	d.Stack.MarkClean()

	d.Logger.Debug("ledger ready",
		slog.String("path", d.Config.Ledger.LedgerPath()),
		slog.Int("operations", d.Stack.Snapshot().OperationCount()),
	)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.CategorizationService = categorization.NewService(
		logger.WithComponent(d.Logger, logger.ComponentCategory),
		d.Config.Ledger.RuleCaseInsensitive,
	)

	d.Importer = importservice.NewImporter(logger.WithComponent(d.Logger, logger.ComponentImport))
	if d.Metrics != nil {
		d.Importer.WithRecorder(d.Metrics)
	}

	d.PrefixSuggester = normalizer.NewPrefixSuggester()

	// Autosave goes through the scheduler even when the cron job is off
	d.Scheduler = cron.NewScheduler(d.Stack, d.LedgerStore, logger.WithComponent(d.Logger, logger.ComponentCron)).
		WithMonth(func() ledger.Month { return d.Month })
	if d.Metrics != nil {
		d.Scheduler.WithRecorder(d.Metrics)
	}
	if d.Config.Autosave.Enabled {
		if err := d.Scheduler.Start(d.Config.Autosave.Schedule); err != nil {
			return err
		}
	}

	d.Logger.Debug("services initialized")
	return nil
}

// EnableSuggestions lets imports fall back to categories of similar
// operations when no rule matches.
func (d *Dependencies) EnableSuggestions() {
	d.Importer.WithCategorizer(newCategorizationAdapter(d.CategorizationService, suggestionMinScore))
}

// Save writes the ledger if it changed since it was loaded or last saved.
func (d *Dependencies) Save(ctx context.Context) error {
	_, err := d.Scheduler.SaveNow(ctx)
	return err
}

// Cleanup stops background jobs, saves pending changes and writes metrics.
func (d *Dependencies) Cleanup(ctx context.Context) {
	if d.Config.Autosave.Enabled {
		<-d.Scheduler.Stop().Done()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := d.Save(saveCtx); err != nil {
		d.Logger.Error("failed to save ledger on exit", slog.Any("error", err))
	}

	if d.Registry != nil && d.Config.Observability.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(d.Config.Observability.MetricsFile, d.Registry); err != nil {
			d.Logger.Error("failed to write metrics", slog.Any("error", err))
		}
	}
	d.Logger.Debug("cleanup completed")
}
