package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

func runCategories(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "categories", "[list | add NAME | budget NAME AMOUNT|none | rename NAME NEW | remove NAME]")
	income := fs.Bool("income", false, "with add: the category receives income")
	budgetFlag := fs.String("budget", "", "with add: monthly budget")
	cascade := fs.Bool("cascade", false, "with remove: uncategorize operations and drop rules instead of refusing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap := e.deps.Stack.Snapshot()
	lookup := func(name string) (ledger.Category, error) {
		c, ok := snap.CategoryByName(name)
		if !ok {
			return ledger.Category{}, fmt.Errorf("category %q: %w", name, ledger.ErrNotFound)
		}
		return c, nil
	}

	var cmd history.Command
	switch fs.Arg(0) {
	case "", "list":
		printCategories(e, snap)
		return nil

	case "add":
		if fs.NArg() != 2 {
			return errors.New("add needs a name")
		}
		limit, err := parseBudget(*budgetFlag, snap.Currency())
		if err != nil {
			return err
		}
		cmd = history.NewAddCategory(fs.Arg(1), *income, limit)

	case "budget":
		if fs.NArg() != 3 {
			return errors.New("budget needs a category and an amount")
		}
		c, err := lookup(fs.Arg(1))
		if err != nil {
			return err
		}
		limit, err := parseBudget(fs.Arg(2), snap.Currency())
		if err != nil {
			return err
		}
		cmd = history.NewSetCategoryBudget(c.ID, limit)

	case "rename":
		if fs.NArg() != 3 {
			return errors.New("rename needs a category and a new name")
		}
		c, err := lookup(fs.Arg(1))
		if err != nil {
			return err
		}
		cmd = history.NewEditCategory(c.ID, fs.Arg(2), c.IsIncome, c.BudgetLimit)

	case "remove":
		if fs.NArg() != 2 {
			return errors.New("remove needs a category")
		}
		c, err := lookup(fs.Arg(1))
		if err != nil {
			return err
		}
		policy := e.deps.DeletePolicy
		if *cascade {
			policy = history.DeleteCascade
		}
		cmd = history.NewDeleteCategory(c.ID, policy)

	default:
		fs.Usage()
		return fmt.Errorf("unknown categories action %q", fs.Arg(0))
	}

	if err := e.deps.Stack.Apply(cmd); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, cmd.Label())
	return e.deps.Save(ctx)
}

// parseBudget reads a monthly limit; "" and "none" mean no budget.
func parseBudget(s, currency string) (*money.Money, error) {
	if s == "" || s == "none" {
		return nil, nil
	}
	return money.NewFromString(s, currency, false)
}

func printCategories(e *env, snap *ledger.Snapshot) {
	cats := snap.Categories()
	if len(cats) == 0 {
		fmt.Fprintln(e.stdout, "no categories")
		return
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tKIND\tBUDGET\tUSED BY")
	for _, c := range cats {
		kind := "expense"
		if c.IsIncome {
			kind = "income"
		}
		refs := snap.CategoryReferences(c.ID)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d operation(s), %d rule(s)\n", c.Name, kind, amount(c.BudgetLimit), len(refs.Operations), len(refs.Rules))
	}
	tw.Flush()
}
