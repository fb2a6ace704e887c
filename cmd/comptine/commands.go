package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FACorreiaa/comptine/internal/domain/budget"
	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/comptine/internal/domain/import/service"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// ============================================================================
// import
// ============================================================================

func runImport(ctx context.Context, e *env, args []string) error {
	cfg := e.deps.Config
	fs := newFlagSet(e, "import", "FILE...")
	account := fs.String("account", cfg.Import.DefaultAccount, "account to import into")
	target := fs.String("target", "auto", "auto, existing or new")
	useCategories := fs.Bool("use-categories", cfg.Import.UseCategories, "use the category column of the file")
	noRules := fs.Bool("no-rules", false, "do not categorize with rules")
	suggest := fs.Bool("suggest", false, "fall back to categories of similar operations")
	strict := fs.Bool("strict", cfg.Import.Strict, "fail on the first invalid row")
	dateFormat := fs.String("date-format", "", "Go time layout of the date column")
	skipLines := fs.Int("skip-lines", -1, "lines before the header, -1 to detect")
	dryRun := fs.Bool("dry-run", false, "show what would be imported without changing the ledger")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no file given")
	}

	mode, err := importservice.ParseTargetMode(*target)
	if err != nil {
		return err
	}
	opts := importservice.DefaultOptions()
	opts.UseCategories = *useCategories
	opts.ApplyRules = !*noRules
	opts.CaseInsensitiveRules = cfg.Ledger.RuleCaseInsensitive
	opts.Parser.Currency = cfg.Ledger.Currency
	opts.Parser.Strict = *strict
	opts.Parser.DateFormat = *dateFormat
	opts.Parser.SkipLines = *skipLines
	if *suggest {
		e.deps.EnableSuggestions()
	}
	tgt := importservice.Target{Mode: mode, AccountName: *account}

	if *dryRun {
		return dryRunImport(ctx, e, fs.Args(), tgt, opts)
	}

	summary, err := e.deps.Importer.ImportFiles(ctx, e.deps.Stack, fs.Args(), tgt, opts)
	if err != nil {
		return err
	}
	printSummary(e, summary)
	return e.deps.Save(ctx)
}

func dryRunImport(ctx context.Context, e *env, paths []string, target importservice.Target, opts importservice.Options) error {
	results := make([]*parser.ParseResult, 0, len(paths))
	for _, p := range paths {
		r, err := e.deps.Importer.ParseFile(ctx, p, opts.Parser)
		if err != nil {
			return err
		}
		for _, perr := range r.Errors {
			fmt.Fprintf(e.stdout, "%s: %v\n", r.Source, perr)
		}
		results = append(results, r)
	}

	cmd, err := e.deps.Importer.PlanAll(ctx, e.deps.Stack.Snapshot(), results, target, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, cmd.Label())
	printSummary(e, &cmd.Summary)
	return nil
}

func printSummary(e *env, s *history.ImportSummary) {
	account := s.Account
	if s.NewAccount {
		account += " (new)"
	}
	fmt.Fprintf(e.stdout, "account:        %s\n", account)
	fmt.Fprintf(e.stdout, "rows:           %d\n", s.Rows)
	fmt.Fprintf(e.stdout, "imported:       %d\n", s.Imported)
	fmt.Fprintf(e.stdout, "duplicates:     %d\n", s.Duplicates)
	fmt.Fprintf(e.stdout, "invalid:        %d\n", s.Invalid)
	fmt.Fprintf(e.stdout, "uncategorized:  %d\n", s.Uncategorized)
	if s.NewCategories > 0 {
		fmt.Fprintf(e.stdout, "new categories: %d\n", s.NewCategories)
	}
}

// ============================================================================
// report
// ============================================================================

func runReport(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "report", "")
	monthFlag := fs.String("month", "", "month to report, YYYY-MM (default: last viewed or current)")
	currentFlag := fs.String("current", "", "current month, YYYY-MM (default: today)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	current := ledger.MonthOf(time.Now())
	if *currentFlag != "" {
		m, err := ledger.ParseMonth(*currentFlag)
		if err != nil {
			return err
		}
		current = m
	}
	month := e.deps.Month
	if month.IsZero() {
		month = current
	}
	if *monthFlag != "" {
		m, err := ledger.ParseMonth(*monthFlag)
		if err != nil {
			return err
		}
		month = m
	}

	report := e.deps.Calculator.Report(e.deps.Stack.Snapshot(), month, current)
	if *asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reportJSON(report))
	}
	printReport(e, report)
	return nil
}

type jsonRecord struct {
	Category        string       `json:"category"`
	Income          bool         `json:"income"`
	Budget          *money.Money `json:"budget"`
	CarriedIn       *money.Money `json:"carried_in"`
	EffectiveBudget *money.Money `json:"effective_budget"`
	Spent           *money.Money `json:"spent"`
	Leftover        *money.Money `json:"leftover"`
	State           string       `json:"state"`
	Decision        string       `json:"decision,omitempty"`
	SaveAmount      *money.Money `json:"save_amount,omitempty"`
	ReportAmount    *money.Money `json:"report_amount,omitempty"`
	Balanced        bool         `json:"balanced"`
}

type jsonTransfer struct {
	Category    string       `json:"category"`
	Amount      *money.Money `json:"amount"`
	Destination string       `json:"destination"`
}

type jsonReport struct {
	Month         string         `json:"month"`
	Current       string         `json:"current"`
	Records       []jsonRecord   `json:"records"`
	ToSave        *money.Money   `json:"to_save"`
	ToReport      *money.Money   `json:"to_report"`
	FromReport    *money.Money   `json:"from_report"`
	NetReport     *money.Money   `json:"net_report"`
	Uncategorized *money.Money   `json:"uncategorized"`
	Unbudgeted    *money.Money   `json:"unbudgeted"`
	Transfers     []jsonTransfer `json:"transfers,omitempty"`
	Pending       []string       `json:"pending,omitempty"`
}

func reportJSON(r *budget.Report) jsonReport {
	out := jsonReport{
		Month:         r.Month.String(),
		Current:       r.Current.String(),
		Records:       make([]jsonRecord, 0, len(r.Records)),
		ToSave:        r.Totals.ToSave,
		ToReport:      r.Totals.ToReport,
		FromReport:    r.Totals.FromReport,
		NetReport:     r.Totals.NetReport,
		Uncategorized: r.Uncategorized,
		Unbudgeted:    r.Unbudgeted,
	}
	for _, rec := range r.Records {
		jr := jsonRecord{
			Category:        rec.Category,
			Income:          rec.IsIncome,
			Budget:          rec.Budget,
			CarriedIn:       rec.CarriedIn,
			EffectiveBudget: rec.EffectiveBudget,
			Spent:           rec.Spent,
			Leftover:        rec.Leftover,
			State:           rec.State.String(),
			SaveAmount:      rec.SaveAmount,
			ReportAmount:    rec.ReportAmount,
			Balanced:        rec.Balanced,
		}
		if rec.Disposition != 0 {
			jr.Decision = rec.Disposition.String()
		}
		out.Records = append(out.Records, jr)
	}
	for _, t := range r.Transfers {
		out.Transfers = append(out.Transfers, jsonTransfer{Category: t.Category, Amount: t.Amount, Destination: t.Destination})
	}
	for _, rec := range r.Pending() {
		out.Pending = append(out.Pending, rec.Category)
	}
	return out
}

func printReport(e *env, r *budget.Report) {
	fmt.Fprintf(e.stdout, "Budget %s (current %s)\n\n", r.Month, r.Current)

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CATEGORY\tBUDGET\tCARRIED\tEFFECTIVE\tCONSUMED\tLEFTOVER\tSTATE\tDECISION\t")
	for _, rec := range r.Records {
		name := rec.Category
		if rec.IsIncome {
			name += " (income)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			name,
			amount(rec.Budget),
			amount(rec.CarriedIn),
			amount(rec.EffectiveBudget),
			amount(rec.Consumed()),
			amount(rec.Leftover),
			rec.State,
			decision(rec),
		)
	}
	tw.Flush()

	fmt.Fprintln(e.stdout)
	fmt.Fprintf(e.stdout, "to save:        %s\n", amount(r.Totals.ToSave))
	fmt.Fprintf(e.stdout, "to report:      %s\n", amount(r.Totals.ToReport))
	fmt.Fprintf(e.stdout, "from report:    %s\n", amount(r.Totals.FromReport))
	fmt.Fprintf(e.stdout, "net report:     %s\n", amount(r.Totals.NetReport))
	fmt.Fprintf(e.stdout, "uncategorized:  %s\n", amount(r.Uncategorized))
	fmt.Fprintf(e.stdout, "unbudgeted:     %s\n", amount(r.Unbudgeted))

	for _, t := range r.Transfers {
		fmt.Fprintf(e.stdout, "transfer %s from %s to %s\n", amount(t.Amount), t.Category, t.Destination)
	}
	if pending := r.Pending(); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, rec := range pending {
			names = append(names, rec.Category)
		}
		fmt.Fprintf(e.stdout, "awaiting a leftover decision: %s\n", strings.Join(names, ", "))
	}
}

func amount(m *money.Money) string {
	if m == nil {
		return "-"
	}
	return m.String()
}

func decision(rec budget.Record) string {
	switch rec.Disposition {
	case ledger.DispositionSplit:
		return fmt.Sprintf("save %s / report %s", amount(rec.SaveAmount), amount(rec.ReportAmount))
	case ledger.DispositionSave, ledger.DispositionReport:
		return rec.Disposition.String()
	}
	return ""
}

// ============================================================================
// leftover
// ============================================================================

func runLeftover(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "leftover", "CATEGORY save|report|clear|split SAVE REPORT")
	monthFlag := fs.String("month", "", "month of the leftover, YYYY-MM (default: previous month)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return errors.New("category and decision are required")
	}

	month := ledger.MonthOf(time.Now()).Prev()
	if *monthFlag != "" {
		m, err := ledger.ParseMonth(*monthFlag)
		if err != nil {
			return err
		}
		month = m
	}

	snap := e.deps.Stack.Snapshot()
	cat, ok := snap.CategoryByName(fs.Arg(0))
	if !ok {
		return fmt.Errorf("category %q: %w", fs.Arg(0), ledger.ErrNotFound)
	}

	var cmd *history.SetLeftoverDecision
	switch action := fs.Arg(1); action {
	case "clear":
		cmd = history.NewClearLeftover(cat.ID, month)
	case "split":
		if fs.NArg() != 4 {
			return errors.New("split needs the saved and reported amounts")
		}
		save, err := money.NewFromString(fs.Arg(2), snap.Currency(), false)
		if err != nil {
			return err
		}
		report, err := money.NewFromString(fs.Arg(3), snap.Currency(), false)
		if err != nil {
			return err
		}
		cmd = history.NewSplitLeftover(cat.ID, month, save, report)
	default:
		d, ok := ledger.ParseDisposition(action)
		if !ok {
			return fmt.Errorf("unknown decision %q", action)
		}
		cmd = history.NewSetLeftoverDecision(cat.ID, month, d)
	}

	if err := e.deps.Stack.Apply(cmd); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, cmd.Label())
	return e.deps.Save(ctx)
}
