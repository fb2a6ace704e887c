// Package budget derives per-category monthly budget state and leftover
// carry-forward from a ledger snapshot. Every function here is pure.
package budget

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// State is the display state of a category in a month.
type State int

const (
	// StateRemaining means budget is left (expense) or income matched expectation.
	StateRemaining State = iota
	// StatePending is a future month with nothing spent yet.
	StatePending
	// StateExceeded is overspending for expenses, a shortfall for income.
	StateExceeded
	// StateReceivedExtra is income above expectation.
	StateReceivedExtra
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateExceeded:
		return "EXCEEDED"
	case StateReceivedExtra:
		return "RECEIVED_EXTRA"
	}
	return "REMAINING"
}

// Record is the derived budget line of one category in one month.
type Record struct {
	CategoryID uuid.UUID
	Category   string
	IsIncome   bool
	Month      ledger.Month

	// Spent is the signed sum of the category's allocations in the month.
	Spent  *money.Money
	Budget *money.Money
	// CarriedIn is the amount reported from the previous month.
	CarriedIn       *money.Money
	EffectiveBudget *money.Money
	// Leftover is effective - consumed for expenses, received - effective for income.
	Leftover *money.Money
	State    State

	// Disposition is zero when no decision was recorded.
	Disposition  ledger.Disposition
	SaveAmount   *money.Money
	ReportAmount *money.Money
	// Balanced is false while a positive leftover waits for a decision.
	Balanced bool

	HasOperations bool
}

// Remaining is what is left to spend (expense) or still expected (income), never negative.
func (r Record) Remaining() *money.Money {
	var remaining *money.Money
	if r.IsIncome {
		remaining = r.EffectiveBudget.MustSubtract(r.Spent)
	} else {
		remaining = r.EffectiveBudget.MustAdd(r.Spent)
	}
	if remaining.IsNegative() {
		return money.Zero(remaining.Currency())
	}
	return remaining
}

// Consumed is the positive amount spent (expense) or received (income).
func (r Record) Consumed() *money.Money {
	if r.IsIncome {
		return r.Spent
	}
	return r.Spent.Negate()
}

// Totals sums the resolved leftover decisions of a month.
type Totals struct {
	ToSave *money.Money
	// ToReport sums positive report amounts.
	ToReport *money.Money
	// FromReport sums deficits carried forward, as a positive amount.
	FromReport *money.Money
	NetReport  *money.Money
}

// Transfer is a saved leftover routed by the SavePolicy.
type Transfer struct {
	CategoryID  uuid.UUID
	Category    string
	Amount      *money.Money
	Destination string
	External    bool
}

// Report is the budget view of one month.
type Report struct {
	Month   ledger.Month
	Current ledger.Month
	Records []Record
	Totals  Totals
	// Uncategorized sums allocations with no category.
	Uncategorized *money.Money
	// Unbudgeted sums allocations to categories without a limit.
	Unbudgeted *money.Money
	Transfers  []Transfer
}

// Record returns the line for categoryID, if the category is in the report.
func (r *Report) Record(categoryID uuid.UUID) (Record, bool) {
	for _, rec := range r.Records {
		if rec.CategoryID == categoryID {
			return rec, true
		}
	}
	return Record{}, false
}

// Pending lists records whose positive leftover awaits a decision.
func (r *Report) Pending() []Record {
	var out []Record
	for _, rec := range r.Records {
		if !rec.Balanced {
			out = append(out, rec)
		}
	}
	return out
}
