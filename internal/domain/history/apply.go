package history

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/budget"
	"github.com/FACorreiaa/comptine/internal/domain/categorization"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// deps are the collaborators commands need beyond the store.
type deps struct {
	calc            *budget.Calculator
	caseInsensitive bool
}

// apply performs cmd on store. On error the store is left as it was.
func apply(store *ledger.Store, d deps, cmd Command) error {
	switch c := cmd.(type) {
	case *AddAccount:
		_, err := store.AddAccount(c.Account)
		return err

	case *RenameAccount:
		prev, err := store.RenameAccount(c.AccountID, c.Name)
		if err != nil {
			return err
		}
		c.prev = prev
		return nil

	case *AddCategory:
		c.index = len(store.Categories())
		_, err := store.InsertCategory(c.index, c.Category)
		return err

	case *EditCategory:
		prev, err := store.UpdateCategory(ledger.Category{
			ID:          c.CategoryID,
			Name:        c.Name,
			IsIncome:    c.IsIncome,
			BudgetLimit: c.BudgetLimit,
		})
		if err != nil {
			return err
		}
		c.prev, c.applied = prev, true
		return nil

	case *SetCategoryBudget:
		cat, ok := store.Category(c.CategoryID)
		if !ok {
			return fmt.Errorf("set budget of category %s: %w", c.CategoryID, ledger.ErrNotFound)
		}
		cat.BudgetLimit = c.BudgetLimit
		prev, err := store.UpdateCategory(cat)
		if err != nil {
			return err
		}
		c.prev = prev
		return nil

	case *DeleteCategory:
		return applyDeleteCategory(store, c)

	case *AddOperation:
		op := c.Operation
		if c.stored.ID != uuid.Nil {
			op = c.stored
		}
		stored, err := store.AddOperation(op)
		if err != nil {
			return err
		}
		c.stored = stored
		return nil

	case *RemoveOperation:
		removed, err := store.RemoveOperation(c.OperationID)
		if err != nil {
			return err
		}
		c.removed = removed
		return nil

	case *ImportOperations:
		return applyAll(store, d, c.parts())

	case *SetOperationCategory:
		if c.CategoryID != nil {
			cat, ok := store.Category(*c.CategoryID)
			if !ok {
				return fmt.Errorf("set operation category: %w: %s", ledger.ErrUnknownCategory, *c.CategoryID)
			}
			c.categoryName = cat.Name
		}
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			if c.CategoryID == nil {
				o.Allocations = ledger.Uncategorized(o.Total)
			} else {
				o.Allocations = ledger.Categorized(*c.CategoryID, o.Total)
			}
			return nil
		})

	case *SplitOperation:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			o.Allocations = slices.Clone(c.Allocations)
			return nil
		})

	case *UnsplitOperation:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			if !o.IsSplit() && o.IsUncategorized() {
				return ErrNoChange
			}
			o.Allocations = ledger.Uncategorized(o.Total)
			return nil
		})

	case *SetOperationAmount:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			if o.IsSplit() {
				return ledger.ErrOperationSplit
			}
			o.Total = c.Amount
			o.Allocations[0].Amount = c.Amount
			return nil
		})

	case *SetOperationDate:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			followed := o.BudgetDate.Equal(o.Date)
			o.Date = c.Date
			if followed {
				o.BudgetDate = c.Date
			}
			return nil
		})

	case *SetOperationBudgetDate:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			o.BudgetDate = c.BudgetDate
			return nil
		})

	case *SetOperationDescription:
		return updateOperation(store, c.OperationID, &c.prev, func(o *ledger.Operation) error {
			o.Description = c.Description
			return nil
		})

	case *AddRule:
		c.at = c.Index
		if c.at < 0 {
			c.at = len(store.Rules())
		}
		return store.InsertRule(c.at, c.Rule)

	case *RemoveRule:
		removed, err := store.RemoveRule(c.Index)
		if err != nil {
			return err
		}
		c.removed = removed
		return nil

	case *EditRule:
		prev, err := store.ReplaceRule(c.Index, c.Rule)
		if err != nil {
			return err
		}
		c.prev = prev
		return nil

	case *MoveRule:
		if c.From == c.To {
			return ErrNoChange
		}
		return store.MoveRule(c.From, c.To)

	case *ApplyRules:
		return applyRules(store, d, c)

	case *SetLeftoverDecision:
		return applyLeftover(store, d, c)
	}
	return fmt.Errorf("unknown command %T", cmd)
}

// revert undoes cmd, which must be the last command applied to store.
func revert(store *ledger.Store, d deps, cmd Command) error {
	switch c := cmd.(type) {
	case *AddAccount:
		_, err := store.RemoveAccount(c.Account.ID)
		return err

	case *RenameAccount:
		_, err := store.RenameAccount(c.AccountID, c.prev)
		return err

	case *AddCategory:
		_, _, err := store.RemoveCategory(c.Category.ID)
		return err

	case *EditCategory:
		_, err := store.UpdateCategory(c.prev)
		return err

	case *SetCategoryBudget:
		_, err := store.UpdateCategory(c.prev)
		return err

	case *DeleteCategory:
		return revertDeleteCategory(store, c)

	case *AddOperation:
		_, err := store.RemoveOperation(c.stored.ID)
		return err

	case *RemoveOperation:
		_, err := store.AddOperation(c.removed)
		return err

	case *ImportOperations:
		return revertAll(store, d, c.parts())

	case *SetOperationCategory:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *SplitOperation:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *UnsplitOperation:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *SetOperationAmount:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *SetOperationDate:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *SetOperationBudgetDate:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *SetOperationDescription:
		_, err := store.ReplaceOperation(c.prev)
		return err

	case *AddRule:
		_, err := store.RemoveRule(c.at)
		return err

	case *RemoveRule:
		return store.InsertRule(c.Index, c.removed)

	case *EditRule:
		_, err := store.ReplaceRule(c.Index, c.prev)
		return err

	case *MoveRule:
		return store.MoveRule(c.To, c.From)

	case *ApplyRules:
		return restoreOperations(store, c.prev)

	case *SetLeftoverDecision:
		if c.hadPrev {
			_, _, err := store.PutLeftoverDecision(c.prev)
			return err
		}
		store.DeleteLeftoverDecision(c.Decision.Key())
		return nil
	}
	return fmt.Errorf("unknown command %T", cmd)
}

// kindOf names a command for metrics and logs.
func kindOf(cmd Command) string {
	switch cmd.(type) {
	case *AddAccount:
		return "add_account"
	case *RenameAccount:
		return "rename_account"
	case *AddCategory:
		return "add_category"
	case *EditCategory:
		return "edit_category"
	case *SetCategoryBudget:
		return "set_category_budget"
	case *DeleteCategory:
		return "delete_category"
	case *AddOperation:
		return "add_operation"
	case *RemoveOperation:
		return "remove_operation"
	case *ImportOperations:
		return "import_operations"
	case *SetOperationCategory:
		return "set_operation_category"
	case *SplitOperation:
		return "split_operation"
	case *UnsplitOperation:
		return "unsplit_operation"
	case *SetOperationAmount:
		return "set_operation_amount"
	case *SetOperationDate:
		return "set_operation_date"
	case *SetOperationBudgetDate:
		return "set_operation_budget_date"
	case *SetOperationDescription:
		return "set_operation_description"
	case *AddRule:
		return "add_rule"
	case *RemoveRule:
		return "remove_rule"
	case *EditRule:
		return "edit_rule"
	case *MoveRule:
		return "move_rule"
	case *ApplyRules:
		return "apply_rules"
	case *SetLeftoverDecision:
		return "set_leftover_decision"
	}
	return "unknown"
}

// ============================================================================
// Compound commands
// ============================================================================

// applyAll applies parts in order. If one fails, the parts already applied
// are reverted and the original error is returned.
func applyAll(store *ledger.Store, d deps, parts []Command) error {
	for i, part := range parts {
		if err := apply(store, d, part); err != nil {
			if rbErr := revertAll(store, d, parts[:i]); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
	}
	return nil
}

// revertAll reverts parts in reverse order. If one fails, the parts already
// reverted are applied again.
func revertAll(store *ledger.Store, d deps, parts []Command) error {
	for i := len(parts) - 1; i >= 0; i-- {
		if err := revert(store, d, parts[i]); err != nil {
			for _, part := range parts[i+1:] {
				if reErr := apply(store, d, part); reErr != nil {
					return errors.Join(err, fmt.Errorf("restore: %w", reErr))
				}
			}
			return err
		}
	}
	return nil
}

func updateOperation(store *ledger.Store, id uuid.UUID, prev *ledger.Operation, mutate func(*ledger.Operation) error) error {
	p, err := store.UpdateOperation(id, mutate)
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return ErrNoChange
		}
		return err
	}
	*prev = p
	return nil
}

func restoreOperations(store *ledger.Store, ops []ledger.Operation) error {
	for i := len(ops) - 1; i >= 0; i-- {
		if _, err := store.ReplaceOperation(ops[i]); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Category deletion
// ============================================================================

func applyDeleteCategory(store *ledger.Store, c *DeleteCategory) error {
	cat, ok := store.Category(c.CategoryID)
	if !ok {
		return fmt.Errorf("delete category %s: %w", c.CategoryID, ledger.ErrNotFound)
	}
	c.category = cat
	c.ops, c.rules, c.leftovers = nil, nil, nil

	if c.Policy == DeleteCascade {
		if err := detachCategory(store, c); err != nil {
			if rbErr := reattachCategory(store, c); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
	}

	_, index, err := store.RemoveCategory(c.CategoryID)
	if err != nil {
		if c.Policy == DeleteCascade {
			if rbErr := reattachCategory(store, c); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
		return err
	}
	c.index = index
	return nil
}

// detachCategory drops every reference to the category, recording what it
// removed so reattachCategory can put it back.
func detachCategory(store *ledger.Store, c *DeleteCategory) error {
	refs := store.CategoryReferences(c.CategoryID)

	for _, id := range refs.Operations {
		prev, err := store.UpdateOperation(id, func(o *ledger.Operation) error {
			o.Allocations = uncategorize(o.Allocations, c.CategoryID, o.Total.Currency())
			return nil
		})
		if err != nil {
			return err
		}
		c.ops = append(c.ops, prev)
	}

	rules := refs.Rules
	for i := len(rules) - 1; i >= 0; i-- {
		r, err := store.RemoveRule(rules[i])
		if err != nil {
			return err
		}
		c.rules = append(c.rules, indexedRule{index: rules[i], rule: r})
	}

	for _, key := range refs.Leftovers {
		if d, had := store.DeleteLeftoverDecision(key); had {
			c.leftovers = append(c.leftovers, d)
		}
	}
	return nil
}

func reattachCategory(store *ledger.Store, c *DeleteCategory) error {
	for _, d := range c.leftovers {
		if _, _, err := store.PutLeftoverDecision(d); err != nil {
			return err
		}
	}
	for i := len(c.rules) - 1; i >= 0; i-- {
		if err := store.InsertRule(c.rules[i].index, c.rules[i].rule); err != nil {
			return err
		}
	}
	return restoreOperations(store, c.ops)
}

func revertDeleteCategory(store *ledger.Store, c *DeleteCategory) error {
	if _, err := store.InsertCategory(c.index, c.category); err != nil {
		return err
	}
	return reattachCategory(store, c)
}

// uncategorize moves the allocation to categoryID into the uncategorized part,
// creating that part if needed.
func uncategorize(allocs []ledger.Allocation, categoryID uuid.UUID, currency string) []ledger.Allocation {
	moved := money.Zero(currency)
	out := make([]ledger.Allocation, 0, len(allocs))
	for _, a := range allocs {
		if a.CategoryID != nil && *a.CategoryID == categoryID {
			moved = moved.MustAdd(a.Amount)
			continue
		}
		out = append(out, a)
	}
	for i, a := range out {
		if a.CategoryID == nil {
			out[i].Amount = a.Amount.MustAdd(moved)
			return out
		}
	}
	return append(out, ledger.Allocation{Amount: moved})
}

// ============================================================================
// Rules and leftovers
// ============================================================================

func applyRules(store *ledger.Store, d deps, c *ApplyRules) error {
	if c.assignments == nil {
		engine := categorization.NewRuleEngine(store.Rules(), categorization.WithCaseInsensitive(d.caseInsensitive))
		assignments := make([]assignment, 0)
		for _, op := range store.UncategorizedOperations() {
			if categoryID, ok := engine.MatchFirst(op.Description); ok {
				assignments = append(assignments, assignment{operationID: op.ID, categoryID: categoryID})
			}
		}
		if len(assignments) == 0 {
			return ErrNoChange
		}
		c.assignments = assignments
	}

	c.prev = make([]ledger.Operation, 0, len(c.assignments))
	for _, a := range c.assignments {
		prev, err := store.UpdateOperation(a.operationID, func(o *ledger.Operation) error {
			o.Allocations = ledger.Categorized(a.categoryID, o.Total)
			return nil
		})
		if err != nil {
			if rbErr := restoreOperations(store, c.prev); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			c.prev = nil
			return err
		}
		c.prev = append(c.prev, prev)
	}
	return nil
}

func applyLeftover(store *ledger.Store, d deps, c *SetLeftoverDecision) error {
	dec := c.Decision
	cat, ok := store.Category(dec.CategoryID)
	if !ok {
		return fmt.Errorf("set leftover decision: %w: %s", ledger.ErrUnknownCategory, dec.CategoryID)
	}
	c.categoryName = cat.Name

	if dec.Disposition == 0 {
		prev, had := store.DeleteLeftoverDecision(dec.Key())
		if !had {
			return ErrNoChange
		}
		c.prev, c.hadPrev = prev, true
		return nil
	}

	if dec.Disposition == ledger.DispositionSplit {
		if err := checkSplit(store, d.calc, dec); err != nil {
			return err
		}
	}

	prev, had, err := store.PutLeftoverDecision(dec)
	if err != nil {
		return err
	}
	c.prev, c.hadPrev = prev, had
	return nil
}

// checkSplit requires the saved and reported parts to add up to the live leftover.
func checkSplit(r ledger.Reader, calc *budget.Calculator, dec ledger.LeftoverDecision) error {
	if dec.SaveAmount == nil || dec.ReportAmount == nil {
		return &ledger.ValidationError{Op: "set leftover decision", Err: ledger.ErrMissingAmount}
	}
	leftover, err := calc.Leftover(r, dec.CategoryID, dec.Month)
	if err != nil {
		return err
	}
	sum, err := dec.SaveAmount.Add(dec.ReportAmount)
	if err != nil {
		return &ledger.ValidationError{Op: "set leftover decision", Err: ledger.ErrCurrencyMismatch}
	}
	if !sum.Equals(leftover) {
		return &ledger.ValidationError{
			Op:  "set leftover decision",
			Err: fmt.Errorf("%w: %s + %s != %s", ledger.ErrSplitAmountMismatch, dec.SaveAmount, dec.ReportAmount, leftover),
		}
	}
	return nil
}
