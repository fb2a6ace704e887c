package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/FACorreiaa/comptine/internal/domain/categorization"
	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// ============================================================================
// rules
// ============================================================================

func runRules(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "rules", "[list | add PREFIX CATEGORY | remove N | move FROM TO | apply]")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap := e.deps.Stack.Snapshot()
	var cmd history.Command
	switch fs.Arg(0) {
	case "", "list":
		printRules(e, snap)
		return nil

	case "add":
		if fs.NArg() != 3 {
			return errors.New("add needs a prefix and a category")
		}
		cat, ok := snap.CategoryByName(fs.Arg(2))
		if !ok {
			return fmt.Errorf("category %q: %w", fs.Arg(2), ledger.ErrNotFound)
		}
		cmd = history.NewAddRule(fs.Arg(1), cat.ID)

	case "remove":
		if fs.NArg() != 2 {
			return errors.New("remove needs a rule number")
		}
		n, err := ruleNumber(fs.Arg(1))
		if err != nil {
			return err
		}
		cmd = history.NewRemoveRule(n)

	case "move":
		if fs.NArg() != 3 {
			return errors.New("move needs two rule numbers")
		}
		from, err := ruleNumber(fs.Arg(1))
		if err != nil {
			return err
		}
		to, err := ruleNumber(fs.Arg(2))
		if err != nil {
			return err
		}
		cmd = history.NewMoveRule(from, to)

	case "apply":
		cmd = history.NewApplyRules()

	default:
		fs.Usage()
		return fmt.Errorf("unknown rules action %q", fs.Arg(0))
	}

	if err := e.deps.Stack.Apply(cmd); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, cmd.Label())
	return e.deps.Save(ctx)
}

// ruleNumber converts a 1-based rule number to an index.
func ruleNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid rule number %q", s)
	}
	return n - 1, nil
}

func printRules(e *env, snap *ledger.Snapshot) {
	rules := snap.Rules()
	if len(rules) == 0 {
		fmt.Fprintln(e.stdout, "no rules")
		return
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPREFIX\tCATEGORY")
	for i, r := range rules {
		name := r.CategoryID.String()
		if c, ok := snap.Category(r.CategoryID); ok {
			name = c.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, r.Prefix, name)
	}
	tw.Flush()
}

// ============================================================================
// search
// ============================================================================

func runSearch(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "search", "TEXT")
	monthFlag := fs.String("month", "", "only operations budgeted in this month, YYYY-MM")
	fuzziness := fs.Int("fuzzy", 0, "edit distance allowed per term (0 for exact matching)")
	prefix := fs.Bool("prefix", false, "match descriptions starting with TEXT")
	advanced := fs.Bool("query", false, "treat TEXT as a query string (category:food amount:<0)")
	limit := fs.Int("limit", 20, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no search text given")
	}
	text := fs.Arg(0)
	for _, a := range fs.Args()[1:] {
		text += " " + a
	}

	index, err := categorization.NewSearchIndex("")
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.IndexSnapshot(e.deps.Stack.Snapshot()); err != nil {
		return err
	}

	var results []categorization.SearchResult
	switch {
	case *monthFlag != "":
		m, err := ledger.ParseMonth(*monthFlag)
		if err != nil {
			return err
		}
		results, err = index.SearchInMonth(text, m, *limit)
		if err != nil {
			return err
		}
	case *advanced:
		results, err = index.SearchAdvanced(text, *limit)
	case *prefix:
		results, err = index.SearchWithPrefix(text, *limit)
	case *fuzziness > 0:
		results, err = index.SearchFuzzy(text, *fuzziness, *limit)
	default:
		results, err = index.Search(text, *limit)
	}
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(e.stdout, "no match")
		return nil
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tACCOUNT\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, r := range results {
		d := r.Document
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n", d.Date, d.Account, d.Amount, d.Category, d.Description)
	}
	return tw.Flush()
}

// ============================================================================
// uncategorized
// ============================================================================

func runUncategorized(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "uncategorized", "")
	apply := fs.Bool("apply", false, "apply the rules before listing")
	learn := fs.Bool("learn", false, "add a rule for every group with a suggested category, then apply the rules")
	all := fs.Bool("all", false, "list every operation instead of prefix groups")
	if err := fs.Parse(args); err != nil {
		return err
	}

	changed := false
	if *apply {
		if err := applyRules(e); err != nil {
			return err
		}
		changed = true
	}

	snap := e.deps.Stack.Snapshot()
	ops := e.deps.CategorizationService.Uncategorized(snap)
	if len(ops) == 0 {
		fmt.Fprintln(e.stdout, "every operation is categorized")
		return saveIf(ctx, e, changed)
	}

	if *all {
		tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tAMOUNT\tDESCRIPTION\tSUGGESTED")
		for _, op := range ops {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Date.Format("2006-01-02"), op.Total, op.Description, suggestedName(e, snap, op.Description))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return saveIf(ctx, e, changed)
	}

	groups := groupByPrefix(e, ops)
	if *learn {
		added := 0
		for _, g := range groups {
			sug := e.deps.CategorizationService.SuggestDescription(snap, g.descriptions[0], 1)
			if len(sug) == 0 || sug[0].FromRule {
				continue
			}
			err := e.deps.Stack.Apply(history.NewAddRule(g.prefix, sug[0].CategoryID))
			if errors.Is(err, ledger.ErrDuplicateRulePrefix) {
				continue
			}
			if err != nil {
				return err
			}
			added++
		}
		fmt.Fprintf(e.stdout, "added %d rule(s)\n", added)
		if added > 0 {
			if err := applyRules(e); err != nil {
				return err
			}
			changed = true
		}
		snap = e.deps.Stack.Snapshot()
		groups = groupByPrefix(e, e.deps.CategorizationService.Uncategorized(snap))
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tCOUNT\tMERCHANT\tSUGGESTED")
	for _, g := range groups {
		hint := e.deps.PrefixSuggester.Suggest(g.descriptions[0])
		suggested := suggestedName(e, snap, g.descriptions[0])
		if suggested == "" && hint.Category != "" {
			suggested = hint.Category + "?"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", g.prefix, len(g.descriptions), hint.Merchant, suggested)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return saveIf(ctx, e, changed)
}

type prefixGroup struct {
	prefix       string
	descriptions []string
}

// groupByPrefix buckets labels by suggested prefix, largest group first.
// Labels without a usable prefix form a group of their own.
func groupByPrefix(e *env, ops []ledger.Operation) []prefixGroup {
	descs := make([]string, 0, len(ops))
	for _, op := range ops {
		descs = append(descs, op.Description)
	}

	grouped := make(map[string]bool)
	groups := make([]prefixGroup, 0)
	for prefix, members := range e.deps.PrefixSuggester.Group(descs) {
		groups = append(groups, prefixGroup{prefix: prefix, descriptions: members})
		for _, m := range members {
			grouped[m] = true
		}
	}
	for _, d := range descs {
		if !grouped[d] {
			groups = append(groups, prefixGroup{prefix: d, descriptions: []string{d}})
			grouped[d] = true
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].descriptions) != len(groups[j].descriptions) {
			return len(groups[i].descriptions) > len(groups[j].descriptions)
		}
		return groups[i].prefix < groups[j].prefix
	})
	return groups
}

func suggestedName(e *env, snap *ledger.Snapshot, description string) string {
	sug := e.deps.CategorizationService.SuggestDescription(snap, description, 1)
	if len(sug) == 0 {
		return ""
	}
	if c, ok := snap.Category(sug[0].CategoryID); ok {
		return c.Name
	}
	return ""
}

func applyRules(e *env) error {
	cmd := history.NewApplyRules()
	if err := e.deps.Stack.Apply(cmd); err != nil {
		if errors.Is(err, history.ErrNoChange) {
			fmt.Fprintln(e.stdout, "no rule matches an uncategorized operation")
			return nil
		}
		return err
	}
	fmt.Fprintln(e.stdout, cmd.Label())
	return nil
}

func saveIf(ctx context.Context, e *env, changed bool) error {
	if !changed {
		return nil
	}
	return e.deps.Save(ctx)
}
