package budget

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// Calculator derives budget reports from snapshots.
type Calculator struct {
	policy SavePolicy
}

// NewCalculator creates a calculator routing saved leftovers through policy.
// A nil policy means ExternalSavings.
func NewCalculator(policy SavePolicy) *Calculator {
	if policy == nil {
		policy = ExternalSavings{}
	}
	return &Calculator{policy: policy}
}

// Report builds the budget view of month. current is the month considered
// "now"; later months with no spending are PENDING.
//
// Carried amounts are re-derived on every call by walking each category from
// its earliest activity, so repeated calls return identical reports.
func (c *Calculator) Report(snap ledger.Reader, month, current ledger.Month) *Report {
	currency := snap.Currency()
	sp := newSpending(snap)

	report := &Report{
		Month:         month,
		Current:       current,
		Records:       make([]Record, 0),
		Uncategorized: sp.uncategorized[month],
		Unbudgeted:    money.Zero(currency),
	}
	if report.Uncategorized == nil {
		report.Uncategorized = money.Zero(currency)
	}

	totals := Totals{
		ToSave:     money.Zero(currency),
		ToReport:   money.Zero(currency),
		FromReport: money.Zero(currency),
	}

	for _, cat := range snap.Categories() {
		if !cat.HasBudget() {
			report.Unbudgeted = report.Unbudgeted.MustAdd(sp.spent(cat.ID, month, currency))
			continue
		}

		rec := c.walk(snap, sp, cat, month, current)
		if rec.Budget.IsZero() && !rec.HasOperations && rec.CarriedIn.IsZero() {
			continue
		}
		report.Records = append(report.Records, rec)

		if rec.SaveAmount != nil {
			totals.ToSave = totals.ToSave.MustAdd(rec.SaveAmount)
			if !rec.SaveAmount.IsZero() {
				report.Transfers = append(report.Transfers, c.policy.Route(rec, rec.SaveAmount))
			}
		}
		if rec.ReportAmount != nil {
			switch {
			case rec.ReportAmount.IsPositive():
				totals.ToReport = totals.ToReport.MustAdd(rec.ReportAmount)
			case rec.ReportAmount.IsNegative():
				totals.FromReport = totals.FromReport.MustAdd(rec.ReportAmount.Abs())
			}
		}
	}

	totals.NetReport = totals.ToReport.MustSubtract(totals.FromReport)
	report.Totals = totals
	return report
}

// Leftover returns the live leftover of a budgeted category in month.
func (c *Calculator) Leftover(snap ledger.Reader, categoryID uuid.UUID, month ledger.Month) (*money.Money, error) {
	rec, err := c.Record(snap, categoryID, month, month)
	if err != nil {
		return nil, err
	}
	return rec.Leftover, nil
}

// Record derives the line of a single category, whether or not the report
// would omit it.
func (c *Calculator) Record(snap ledger.Reader, categoryID uuid.UUID, month, current ledger.Month) (Record, error) {
	cat, ok := snap.Category(categoryID)
	if !ok {
		return Record{}, fmt.Errorf("category %s: %w", categoryID, ledger.ErrNotFound)
	}
	if !cat.HasBudget() {
		return Record{}, fmt.Errorf("category %q has no budget limit: %w", cat.Name, ledger.ErrNotFound)
	}
	return c.walk(snap, newSpending(snap), cat, month, current), nil
}

// walk computes every month from the category's first activity up to month,
// feeding each month's carry-out into the next month.
func (c *Calculator) walk(snap ledger.Reader, sp *spending, cat ledger.Category, month, current ledger.Month) Record {
	currency := snap.Currency()
	start := month
	if first, ok := sp.firstActivity(snap, cat.ID); ok && first.Before(month) {
		start = first
	}

	carry := money.Zero(currency)
	for m := start; ; m = m.Next() {
		rec := compute(snap, sp, cat, m, current, carry)
		if m == month {
			return rec
		}
		carry = carryOut(rec)
	}
}

func compute(snap ledger.Reader, sp *spending, cat ledger.Category, m, current ledger.Month, carryIn *money.Money) Record {
	currency := snap.Currency()
	spent := sp.spent(cat.ID, m, currency)

	rec := Record{
		CategoryID:    cat.ID,
		Category:      cat.Name,
		IsIncome:      cat.IsIncome,
		Month:         m,
		Spent:         spent,
		Budget:        cat.BudgetLimit,
		CarriedIn:     carryIn,
		HasOperations: sp.has(cat.ID, m),
	}

	if cat.IsIncome {
		rec.EffectiveBudget = cat.BudgetLimit.MustSubtract(carryIn)
		rec.Leftover = spent.MustSubtract(rec.EffectiveBudget)
	} else {
		rec.EffectiveBudget = cat.BudgetLimit.MustAdd(carryIn)
		rec.Leftover = rec.EffectiveBudget.MustAdd(spent)
	}

	switch {
	case m.After(current) && spent.IsZero():
		rec.State = StatePending
	case rec.Leftover.IsNegative():
		rec.State = StateExceeded
	case cat.IsIncome && rec.Leftover.IsPositive():
		rec.State = StateReceivedExtra
	default:
		rec.State = StateRemaining
	}

	resolve(&rec, snap, currency)
	return rec
}

// resolve fills the decision fields. Split keeps the explicit report amount
// and saves whatever else the live leftover holds.
func resolve(rec *Record, snap ledger.Reader, currency string) {
	d, ok := snap.LeftoverDecision(rec.CategoryID, rec.Month)
	if !ok {
		active := rec.HasOperations || !rec.CarriedIn.IsZero()
		switch {
		case rec.Leftover.IsNegative() && active:
			// Deficits carry forward unless explicitly saved against
			rec.SaveAmount = money.Zero(currency)
			rec.ReportAmount = rec.Leftover
			rec.Balanced = true
		case rec.Leftover.IsZero() || !active:
			rec.Balanced = true
		}
		return
	}

	rec.Disposition = d.Disposition
	rec.Balanced = true
	switch d.Disposition {
	case ledger.DispositionSave:
		rec.SaveAmount = rec.Leftover
		rec.ReportAmount = money.Zero(currency)
	case ledger.DispositionReport:
		rec.SaveAmount = money.Zero(currency)
		rec.ReportAmount = rec.Leftover
	case ledger.DispositionSplit:
		rec.ReportAmount = d.ReportAmount
		rec.SaveAmount = rec.Leftover.MustSubtract(d.ReportAmount)
	}
}

func carryOut(rec Record) *money.Money {
	if rec.ReportAmount == nil {
		return money.Zero(rec.Leftover.Currency())
	}
	return rec.ReportAmount
}

// spending indexes allocation sums by category and budget month.
type spending struct {
	byCategory    map[uuid.UUID]map[ledger.Month]*money.Money
	uncategorized map[ledger.Month]*money.Money
}

func newSpending(snap ledger.Reader) *spending {
	sp := &spending{
		byCategory:    make(map[uuid.UUID]map[ledger.Month]*money.Money),
		uncategorized: make(map[ledger.Month]*money.Money),
	}
	for _, op := range snap.Operations() {
		m := op.BudgetMonth()
		for _, a := range op.Allocations {
			if a.CategoryID == nil {
				sp.uncategorized[m] = sp.uncategorized[m].MustAdd(a.Amount)
				continue
			}
			months, ok := sp.byCategory[*a.CategoryID]
			if !ok {
				months = make(map[ledger.Month]*money.Money)
				sp.byCategory[*a.CategoryID] = months
			}
			months[m] = months[m].MustAdd(a.Amount)
		}
	}
	return sp
}

func (sp *spending) spent(categoryID uuid.UUID, m ledger.Month, currency string) *money.Money {
	if v := sp.byCategory[categoryID][m]; v != nil {
		return v
	}
	return money.Zero(currency)
}

func (sp *spending) has(categoryID uuid.UUID, m ledger.Month) bool {
	_, ok := sp.byCategory[categoryID][m]
	return ok
}

// firstActivity is the earliest month with an allocation or a decision for the category.
func (sp *spending) firstActivity(snap ledger.Reader, categoryID uuid.UUID) (ledger.Month, bool) {
	var first ledger.Month
	found := false
	for m := range sp.byCategory[categoryID] {
		if !found || m.Before(first) {
			first, found = m, true
		}
	}
	for _, d := range snap.LeftoverDecisions() {
		if d.CategoryID == categoryID && (!found || d.Month.Before(first)) {
			first, found = d.Month, true
		}
	}
	return first, found
}
