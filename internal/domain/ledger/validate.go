package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/pkg/money"
)

func (s *state) checkAmount(m *money.Money) error {
	if m == nil {
		return ErrMissingAmount
	}
	if m.Currency() != s.currency {
		return fmt.Errorf("%w: got %s, ledger uses %s", ErrCurrencyMismatch, m.Currency(), s.currency)
	}
	return nil
}

// normalizeOperation drops the time of day from dates and falls back to the
// transaction date when no budget date is given.
func normalizeOperation(op *Operation) {
	op.Date = TruncateDay(op.Date)
	op.BudgetDate = TruncateDay(op.BudgetDate)
	if op.BudgetDate.IsZero() {
		op.BudgetDate = op.Date
	}
	op.Description = strings.TrimSpace(op.Description)
}

// validateOperation enforces the operation invariants: at least one allocation,
// no category twice (at most one uncategorized part), every amount in the
// ledger currency and an exact sum.
func (s *state) validateOperation(op Operation) error {
	if op.Date.IsZero() {
		return ErrMissingDate
	}
	if s.accountIndex(op.AccountID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, op.AccountID)
	}
	if err := s.checkAmount(op.Total); err != nil {
		return err
	}
	if len(op.Allocations) == 0 {
		return ErrEmptyAllocations
	}

	seen := make(map[uuid.UUID]bool, len(op.Allocations))
	uncategorized := false
	parts := make([]*money.Money, 0, len(op.Allocations))
	for _, a := range op.Allocations {
		if err := s.checkAmount(a.Amount); err != nil {
			return err
		}
		parts = append(parts, a.Amount)

		if a.CategoryID == nil {
			if uncategorized {
				return ErrDuplicateCategoryInSplit
			}
			uncategorized = true
			continue
		}
		if s.categoryIndex(*a.CategoryID) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, *a.CategoryID)
		}
		if seen[*a.CategoryID] {
			return ErrDuplicateCategoryInSplit
		}
		seen[*a.CategoryID] = true
	}

	sum, err := money.Sum(s.currency, parts...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurrencyMismatch, err)
	}
	if !sum.Equals(op.Total) {
		return fmt.Errorf("%w: allocations %s, total %s", ErrAllocationSumMismatch, sum, op.Total)
	}
	return nil
}

func (s *state) validateCategory(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	for _, other := range s.categories {
		if other.ID != c.ID && other.Name == c.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateCategoryName, c.Name)
		}
	}
	if c.BudgetLimit != nil {
		if err := s.checkAmount(c.BudgetLimit); err != nil {
			return err
		}
		if c.BudgetLimit.IsNegative() {
			return ErrNegativeBudget
		}
	}
	return nil
}

func (s *state) validateAccountName(id uuid.UUID, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	for _, other := range s.accounts {
		if other.ID != id && other.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateAccountName, name)
		}
	}
	return nil
}

// validateRule checks r as the rule at index self (-1 for a new rule).
// Prefixes are unique regardless of case.
func (s *state) validateRule(r Rule, self int) error {
	if r.Prefix == "" {
		return ErrEmptyPrefix
	}
	for i, other := range s.rules {
		if i != self && strings.EqualFold(other.Prefix, r.Prefix) {
			return fmt.Errorf("%w: %q", ErrDuplicateRulePrefix, r.Prefix)
		}
	}
	if s.categoryIndex(r.CategoryID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, r.CategoryID)
	}
	return nil
}

func (s *state) validateDecision(d LeftoverDecision) error {
	if s.categoryIndex(d.CategoryID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, d.CategoryID)
	}
	switch d.Disposition {
	case DispositionSave, DispositionReport:
		return nil
	case DispositionSplit:
		if err := s.checkAmount(d.SaveAmount); err != nil {
			return err
		}
		return s.checkAmount(d.ReportAmount)
	}
	return fmt.Errorf("%w: %d", ErrInvalidDisposition, d.Disposition)
}
