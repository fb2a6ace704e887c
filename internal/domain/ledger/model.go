// Package ledger holds the in-memory financial document: accounts, categories,
// operations with their allocations, categorization rules and leftover decisions.
//
// A Store is the owned document object. It is mutated only through the command
// stack; readers work on immutable Snapshots.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/pkg/money"
)

// Account is a named ledger owning operations.
type Account struct {
	ID   uuid.UUID
	Name string
}

// Category groups allocations for budgeting.
type Category struct {
	ID       uuid.UUID
	Name     string
	IsIncome bool
	// BudgetLimit is the monthly expected amount as a non-negative magnitude.
	// Nil means the category is not budgeted.
	BudgetLimit *money.Money
}

// HasBudget reports whether a monthly limit is set.
func (c Category) HasBudget() bool {
	return c.BudgetLimit != nil
}

// Allocation assigns part of an operation's amount to a category.
// A nil CategoryID means uncategorized.
type Allocation struct {
	CategoryID *uuid.UUID
	Amount     *money.Money
}

// IsCategorized reports whether the allocation names a category.
func (a Allocation) IsCategorized() bool {
	return a.CategoryID != nil
}

// Operation is a single ledger transaction.
// Negative totals are expenses, positive totals are income.
type Operation struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Date        time.Time
	BudgetDate  time.Time
	Description string
	Total       *money.Money
	Allocations []Allocation

	// seq preserves insertion order across undo/redo.
	seq uint64
}

// NewOperation builds an uncategorized operation. The budget date defaults to date.
func NewOperation(accountID uuid.UUID, date time.Time, description string, total *money.Money) Operation {
	date = TruncateDay(date)
	return Operation{
		ID:          uuid.New(),
		AccountID:   accountID,
		Date:        date,
		BudgetDate:  date,
		Description: description,
		Total:       total,
		Allocations: []Allocation{{Amount: total}},
	}
}

// BudgetMonth is the month the operation counts against.
func (o Operation) BudgetMonth() Month {
	if o.BudgetDate.IsZero() {
		return MonthOf(o.Date)
	}
	return MonthOf(o.BudgetDate)
}

// IsSplit reports whether the operation has more than one allocation.
func (o Operation) IsSplit() bool {
	return len(o.Allocations) > 1
}

// IsUncategorized reports whether no allocation names a category.
func (o Operation) IsUncategorized() bool {
	for _, a := range o.Allocations {
		if a.IsCategorized() {
			return false
		}
	}
	return true
}

// CategoryID returns the category of a single-allocation operation.
func (o Operation) CategoryID() *uuid.UUID {
	if len(o.Allocations) != 1 {
		return nil
	}
	return o.Allocations[0].CategoryID
}

// AmountFor returns the amount allocated to categoryID, or zero.
func (o Operation) AmountFor(categoryID uuid.UUID) *money.Money {
	for _, a := range o.Allocations {
		if a.CategoryID != nil && *a.CategoryID == categoryID {
			return a.Amount
		}
	}
	return money.Zero(o.Total.Currency())
}

// References reports whether any allocation names categoryID.
func (o Operation) References(categoryID uuid.UUID) bool {
	for _, a := range o.Allocations {
		if a.CategoryID != nil && *a.CategoryID == categoryID {
			return true
		}
	}
	return false
}

// Clone returns a copy sharing no mutable state with o.
func (o Operation) Clone() Operation {
	c := o
	c.Allocations = make([]Allocation, len(o.Allocations))
	for i, a := range o.Allocations {
		c.Allocations[i] = Allocation{CategoryID: cloneID(a.CategoryID), Amount: a.Amount}
	}
	return c
}

// Uncategorized returns the single uncategorized allocation for total.
func Uncategorized(total *money.Money) []Allocation {
	return []Allocation{{Amount: total}}
}

// Categorized returns the single allocation of total to categoryID.
func Categorized(categoryID uuid.UUID, total *money.Money) []Allocation {
	id := categoryID
	return []Allocation{{CategoryID: &id, Amount: total}}
}

// Rule assigns CategoryID to descriptions starting with Prefix.
type Rule struct {
	Prefix     string
	CategoryID uuid.UUID
}

// Disposition is the user's choice for a month's leftover.
type Disposition int

const (
	// DispositionSave moves the leftover out of the budget.
	DispositionSave Disposition = iota + 1
	// DispositionReport carries the leftover into the next month.
	DispositionReport
	// DispositionSplit saves part and carries the rest.
	DispositionSplit
)

func (d Disposition) String() string {
	switch d {
	case DispositionSave:
		return "save"
	case DispositionReport:
		return "report"
	case DispositionSplit:
		return "split"
	}
	return "unknown"
}

// ParseDisposition is the inverse of Disposition.String.
func ParseDisposition(s string) (Disposition, bool) {
	for _, d := range []Disposition{DispositionSave, DispositionReport, DispositionSplit} {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// LeftoverKey identifies a leftover decision.
type LeftoverKey struct {
	CategoryID uuid.UUID
	Month      Month
}

// LeftoverDecision records what happens to a category's leftover at month close.
// SaveAmount and ReportAmount are only meaningful for DispositionSplit; Save and
// Report follow the live leftover.
type LeftoverDecision struct {
	CategoryID   uuid.UUID
	Month        Month
	Disposition  Disposition
	SaveAmount   *money.Money
	ReportAmount *money.Money
}

// Key returns the decision's identity.
func (d LeftoverDecision) Key() LeftoverKey {
	return LeftoverKey{CategoryID: d.CategoryID, Month: d.Month}
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneAllocations(in []Allocation) []Allocation {
	return Operation{Allocations: in}.Clone().Allocations
}
