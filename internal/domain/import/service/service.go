// Package service turns parsed bank statements into a single undoable import
// command for the ledger.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/comptine/internal/domain/categorization"
	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/import/parser"
	"github.com/FACorreiaa/comptine/internal/domain/import/sniffer"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// DefaultAccountName is used when an import creates an account without a name.
const DefaultAccountName = "Imported Account"

var (
	// ErrDuplicateAccountName means a new target account would reuse a name.
	ErrDuplicateAccountName = ledger.ErrDuplicateAccountName
	// ErrNothingToImport means every row was invalid or a duplicate.
	ErrNothingToImport = errors.New("nothing to import")
)

// TargetMode selects the account operations are imported into.
type TargetMode int

const (
	// TargetAuto uses the named account when it exists and creates it otherwise.
	TargetAuto TargetMode = iota
	// TargetExisting requires the named account to exist.
	TargetExisting
	// TargetNew creates the named account and fails if the name is taken.
	TargetNew
)

// ParseTargetMode accepts "auto", "existing" and "new".
func ParseTargetMode(s string) (TargetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TargetAuto, nil
	case "existing":
		return TargetExisting, nil
	case "new":
		return TargetNew, nil
	}
	return TargetAuto, fmt.Errorf("unknown import target %q", s)
}

// Target names the account to import into.
type Target struct {
	Mode        TargetMode
	AccountName string
}

func (t Target) name() string {
	if name := strings.TrimSpace(t.AccountName); name != "" {
		return name
	}
	return DefaultAccountName
}

// Options controls how rows become operations.
type Options struct {
	// UseCategories assigns the category column of the file, creating
	// categories that do not exist yet.
	UseCategories bool
	// ApplyRules categorizes the remaining rows with the ledger rules.
	ApplyRules bool
	// CaseInsensitiveRules is used when no categorizer is configured.
	CaseInsensitiveRules bool
	// Parser configures file parsing.
	Parser parser.ParserConfig
}

// DefaultOptions applies rules and leaves the file categories out.
func DefaultOptions() Options {
	return Options{
		ApplyRules: true,
		Parser:     parser.DefaultConfig(),
	}
}

// Categorizer resolves a category for a description against a snapshot.
type Categorizer interface {
	Categorize(snap *ledger.Snapshot, description string) (uuid.UUID, bool)
}

// Recorder receives the summary of every applied import.
type Recorder interface {
	ImportApplied(summary history.ImportSummary)
}

// AnalyzeResult describes a file without importing it.
type AnalyzeResult struct {
	FileConfig *sniffer.FileConfig
	Columns    parser.Columns
	Dialect    sniffer.Dialect
	CanImport  bool
	Missing    []string
}

// Importer plans and applies imports.
type Importer struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	categorizer Categorizer // Optional: a rule engine is built per plan when nil
	recorder    Recorder    // Optional
	rowLog      rate.Sometimes
}

// NewImporter creates an importer.
func NewImporter(logger *slog.Logger) *Importer {
	return &Importer{
		logger: logger,
		tracer: otel.Tracer("comptine/import"),
		rowLog: rate.Sometimes{First: 5, Interval: time.Second},
	}
}

// WithCategorizer makes the importer categorize through c.
func (s *Importer) WithCategorizer(c Categorizer) *Importer {
	s.categorizer = c
	return s
}

// WithRecorder reports applied imports to r.
func (s *Importer) WithRecorder(r Recorder) *Importer {
	s.recorder = r
	return s
}

// Analyze detects the layout of a delimited file.
func (s *Importer) Analyze(data []byte) (*AnalyzeResult, error) {
	cfg, cols, err := parser.Detect(data)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}
	return &AnalyzeResult{
		FileConfig: cfg,
		Columns:    cols,
		Dialect:    sniffer.DetectDialect(cfg.SampleRows, []int{cols.Amount, cols.Debit, cols.Credit}, cols.Date),
		CanImport:  cols.Valid(),
		Missing:    cols.Missing(),
	}, nil
}

// Parse reads a CSV or XLSX statement. name is only used for the format
// check and in the result.
func (s *Importer) Parse(ctx context.Context, name string, data []byte, cfg parser.ParserConfig) (*parser.ParseResult, error) {
	_, span := s.tracer.Start(ctx, "import.Parse", trace.WithAttributes(
		attribute.String("import.source", name),
		attribute.Int("import.bytes", len(data)),
	))
	defer span.End()

	var (
		result *parser.ParseResult
		err    error
	)
	if parser.IsExcel(data) || strings.EqualFold(filepath.Ext(name), ".xlsx") {
		result, err = parser.NewExcelParser(cfg).ParseExcel(bytes.NewReader(data))
		if result != nil {
			result.Source = name + "#" + result.Source
		}
	} else {
		result, err = parser.NewParser(cfg).ParseBytes(data)
		if result != nil {
			result.Source = name
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	for _, rowErr := range result.Errors {
		s.rowLog.Do(func() {
			s.logger.WarnContext(ctx, "skipping invalid row",
				slog.String("source", name),
				slog.Int("row", rowErr.Row),
				slog.String("column", rowErr.Column),
				slog.String("reason", rowErr.Message))
		})
	}
	span.SetAttributes(
		attribute.Int("import.rows", result.TotalRows),
		attribute.Int("import.row_errors", len(result.Errors)),
	)
	return result, nil
}

// ParseFile reads and parses a statement file.
func (s *Importer) ParseFile(ctx context.Context, path string, cfg parser.ParserConfig) (*parser.ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Parse(ctx, path, data, cfg)
}

// Plan builds the import command for one parsed file.
func (s *Importer) Plan(ctx context.Context, snap *ledger.Snapshot, result *parser.ParseResult, target Target, opts Options) (*history.ImportOperations, error) {
	return s.PlanAll(ctx, snap, []*parser.ParseResult{result}, target, opts)
}

// PlanAll builds one import command for several parsed files, in order.
// Rows already present in an existing target account (same date, amount and
// description) are skipped.
func (s *Importer) PlanAll(ctx context.Context, snap *ledger.Snapshot, results []*parser.ParseResult, target Target, opts Options) (*history.ImportOperations, error) {
	ctx, span := s.tracer.Start(ctx, "import.Plan", trace.WithAttributes(
		attribute.Int("import.files", len(results)),
	))
	defer span.End()

	cmd := &history.ImportOperations{}
	account, err := resolveAccount(snap, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve account")
		return nil, err
	}
	existing := account.ID != uuid.Nil
	if !existing {
		cmd.Account = history.NewAddAccount(target.name())
		account = cmd.Account.Account
	}
	cmd.Summary.Account = account.Name
	cmd.Summary.NewAccount = !existing

	categorize := s.categorize(snap, opts)
	pending := make(map[string]*history.AddCategory)

	for _, result := range results {
		cmd.Summary.Rows += result.TotalRows
		cmd.Summary.Invalid += len(result.Errors)

		for _, row := range result.Operations {
			if existing && snap.HasOperation(account.ID, row.Date, row.Amount, row.Description) {
				cmd.Summary.Duplicates++
				continue
			}

			op := ledger.NewOperation(account.ID, row.Date, row.Description, row.Amount)
			if !row.BudgetDate.IsZero() {
				op.BudgetDate = ledger.TruncateDay(row.BudgetDate)
			}

			var categoryID *uuid.UUID
			if name := strings.TrimSpace(row.Category); opts.UseCategories && name != "" {
				if c, ok := snap.CategoryByName(name); ok {
					categoryID = &c.ID
				} else {
					add, ok := pending[name]
					if !ok {
						add = history.NewAddCategory(name, false, nil)
						pending[name] = add
						cmd.Categories = append(cmd.Categories, add)
					}
					categoryID = &add.Category.ID
				}
			}
			if categoryID == nil && categorize != nil {
				if id, ok := categorize(row.Description); ok {
					categoryID = &id
				}
			}

			if categoryID != nil {
				op.Allocations = ledger.Categorized(*categoryID, op.Total)
			} else {
				cmd.Summary.Uncategorized++
			}
			cmd.Operations = append(cmd.Operations, history.NewAddOperation(op))
		}
	}

	cmd.Summary.Imported = len(cmd.Operations)
	cmd.Summary.NewCategories = len(cmd.Categories)
	span.SetAttributes(
		attribute.Int("import.imported", cmd.Summary.Imported),
		attribute.Int("import.duplicates", cmd.Summary.Duplicates),
	)

	if len(cmd.Operations) == 0 {
		s.logger.InfoContext(ctx, "nothing to import",
			slog.Int("rows", cmd.Summary.Rows),
			slog.Int("duplicates", cmd.Summary.Duplicates),
			slog.Int("invalid", cmd.Summary.Invalid))
		return nil, ErrNothingToImport
	}
	return cmd, nil
}

func (s *Importer) categorize(snap *ledger.Snapshot, opts Options) func(string) (uuid.UUID, bool) {
	if !opts.ApplyRules {
		return nil
	}
	if s.categorizer != nil {
		return func(desc string) (uuid.UUID, bool) {
			return s.categorizer.Categorize(snap, desc)
		}
	}
	engine := categorization.NewRuleEngine(snap.Rules(), categorization.WithCaseInsensitive(opts.CaseInsensitiveRules))
	if engine.IsEmpty() {
		return nil
	}
	return engine.MatchFirst
}

// resolveAccount returns the existing target account, or a zero account when
// one must be created.
func resolveAccount(snap *ledger.Snapshot, target Target) (ledger.Account, error) {
	name := target.name()
	acc, found := snap.AccountByName(name)
	switch target.Mode {
	case TargetExisting:
		if !found {
			return ledger.Account{}, fmt.Errorf("import into account %q: %w", name, ledger.ErrNotFound)
		}
		return acc, nil
	case TargetNew:
		if found {
			return ledger.Account{}, fmt.Errorf("import into new account: %w: %q", ErrDuplicateAccountName, name)
		}
		return ledger.Account{}, nil
	default:
		if found {
			return acc, nil
		}
		return ledger.Account{}, nil
	}
}

// ImportFile parses a statement and applies it to the stack as one command.
func (s *Importer) ImportFile(ctx context.Context, stack *history.Stack, path string, target Target, opts Options) (*history.ImportSummary, error) {
	return s.ImportFiles(ctx, stack, []string{path}, target, opts)
}

// ImportFiles parses statements concurrently and applies them to the stack as
// one command, so a single undo removes the whole batch.
func (s *Importer) ImportFiles(ctx context.Context, stack *history.Stack, paths []string, target Target, opts Options) (*history.ImportSummary, error) {
	start := time.Now()
	results := make([]*parser.ParseResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			result, err := s.ParseFile(gctx, path, opts.Parser)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmd, err := s.PlanAll(ctx, stack.Snapshot(), results, target, opts)
	if err != nil {
		return nil, err
	}
	if err := stack.Apply(cmd); err != nil {
		return nil, fmt.Errorf("apply import: %w", err)
	}

	summary := cmd.Summary
	if s.recorder != nil {
		s.recorder.ImportApplied(summary)
	}
	s.logger.InfoContext(ctx, "import applied",
		slog.Int("files", len(paths)),
		slog.String("account", summary.Account),
		slog.Bool("new_account", summary.NewAccount),
		slog.Int("imported", summary.Imported),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("invalid", summary.Invalid),
		slog.Int("uncategorized", summary.Uncategorized),
		slog.Int("new_categories", summary.NewCategories),
		slog.Duration("elapsed", time.Since(start)))
	return &summary, nil
}
