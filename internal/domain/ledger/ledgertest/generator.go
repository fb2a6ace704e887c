// Package ledgertest generates realistic ledger data for tests.
package ledgertest

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// Generator produces accounts, categories, operations and rules using gofakeit.
type Generator struct {
	faker    *gofakeit.Faker
	currency string
}

// NewGenerator creates a generator with a random seed.
func NewGenerator(currency string) *Generator {
	return NewGeneratorWithSeed(0, currency)
}

// NewGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewGeneratorWithSeed(seed int64, currency string) *Generator {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Generator{faker: gofakeit.New(seed), currency: currency}
}

// Currency is the currency every generated amount uses.
func (g *Generator) Currency() string {
	return g.currency
}

// ============================================================================
// Money
// ============================================================================

// Amount returns a random amount between minCents and maxCents inclusive.
func (g *Generator) Amount(minCents, maxCents int64) *money.Money {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	span := maxCents - minCents + 1
	cents := g.faker.Int64() % span
	if cents < 0 {
		cents = -cents
	}
	return money.New(minCents+cents, g.currency)
}

// Expense returns a negative amount between 1 and 500 units.
func (g *Generator) Expense() *money.Money {
	return g.Amount(100, 50000).Negate()
}

// Salary returns a positive amount between 1500 and 6000 units.
func (g *Generator) Salary() *money.Money {
	return g.Amount(150000, 600000)
}

// Budget returns a monthly limit between 50 and 1000 units.
func (g *Generator) Budget() *money.Money {
	return g.Amount(5000, 100000)
}

// ============================================================================
// Labels
// ============================================================================

var expenseCategories = []string{
	"Groceries", "Restaurants", "Transport", "Fuel", "Shopping",
	"Leisure", "Utilities", "Health", "Travel", "Education",
	"Personal Care", "Home", "Pets", "Gifts", "Subscriptions",
}

var incomeCategories = []string{
	"Salary", "Freelance", "Dividends", "Interest", "Refunds", "Bonus",
}

var merchants = []string{
	"CARREFOUR", "MONOPRIX", "LECLERC", "AUCHAN", "FNAC", "SNCF",
	"RATP", "TOTAL", "DECATHLON", "IKEA", "AMAZON", "NETFLIX",
	"SPOTIFY", "BOULANGERIE", "PHARMACIE", "PICARD", "LIDL",
}

var prefixes = []string{"CB", "PRLV", "VIR", "RETRAIT DAB"}

// ExpenseCategoryName returns a random expense category name.
func (g *Generator) ExpenseCategoryName() string {
	return expenseCategories[g.faker.Number(0, len(expenseCategories)-1)]
}

// IncomeCategoryName returns a random income category name.
func (g *Generator) IncomeCategoryName() string {
	return incomeCategories[g.faker.Number(0, len(incomeCategories)-1)]
}

// Merchant returns a random merchant name as it appears on statements.
func (g *Generator) Merchant() string {
	return merchants[g.faker.Number(0, len(merchants)-1)]
}

// Description returns a bank-statement style label such as "CB CARREFOUR 12/03".
func (g *Generator) Description() string {
	prefix := prefixes[g.faker.Number(0, len(prefixes)-1)]
	return prefix + " " + g.Merchant() + " " + g.faker.DigitN(4)
}

// DateIn returns a random date inside m.
func (g *Generator) DateIn(m ledger.Month) time.Time {
	last := m.Next().Start().AddDate(0, 0, -1).Day()
	return ledger.Date(m.Year, m.Month, g.faker.Number(1, last))
}

// ============================================================================
// Domain values
// ============================================================================

// Account returns an account with a unique-looking name.
func (g *Generator) Account() ledger.Account {
	return ledger.Account{
		ID:   uuid.New(),
		Name: g.faker.Company() + " " + g.faker.DigitN(4),
	}
}

// Category returns a budgeted expense category. The name carries a random
// suffix so repeated calls stay unique.
func (g *Generator) Category() ledger.Category {
	return ledger.Category{
		ID:          uuid.New(),
		Name:        g.ExpenseCategoryName() + " " + g.faker.DigitN(3),
		BudgetLimit: g.Budget(),
	}
}

// IncomeCategory returns a budgeted income category.
func (g *Generator) IncomeCategory() ledger.Category {
	return ledger.Category{
		ID:          uuid.New(),
		Name:        g.IncomeCategoryName() + " " + g.faker.DigitN(3),
		IsIncome:    true,
		BudgetLimit: g.Salary(),
	}
}

// Operation returns an uncategorized expense on accountID dated inside m.
func (g *Generator) Operation(accountID uuid.UUID, m ledger.Month) ledger.Operation {
	return ledger.NewOperation(accountID, g.DateIn(m), g.Description(), g.Expense())
}

// CategorizedOperation returns an expense on accountID fully assigned to categoryID.
func (g *Generator) CategorizedOperation(accountID, categoryID uuid.UUID, m ledger.Month) ledger.Operation {
	op := g.Operation(accountID, m)
	op.Allocations = ledger.Categorized(categoryID, op.Total)
	return op
}

// SplitAllocations divides total between the given categories. The last
// category absorbs any rounding remainder so the parts sum exactly.
func (g *Generator) SplitAllocations(total *money.Money, categoryIDs ...uuid.UUID) []ledger.Allocation {
	if len(categoryIDs) == 0 {
		return ledger.Uncategorized(total)
	}
	parts, err := total.Split(len(categoryIDs))
	if err != nil {
		return ledger.Uncategorized(total)
	}
	out := make([]ledger.Allocation, len(categoryIDs))
	for i, id := range categoryIDs {
		out[i] = ledger.Categorized(id, parts[i])[0]
	}
	return out
}

// Rule returns a prefix rule mapping a statement prefix to categoryID.
func (g *Generator) Rule(categoryID uuid.UUID) ledger.Rule {
	return ledger.Rule{
		Prefix:     prefixes[g.faker.Number(0, len(prefixes)-1)] + " " + g.Merchant(),
		CategoryID: categoryID,
	}
}

// MonthlySet returns a realistic month for accountID: one or two salaries on
// income and a spread of expenses across the given expense categories.
func (g *Generator) MonthlySet(accountID uuid.UUID, m ledger.Month, income uuid.UUID, expenses []uuid.UUID) []ledger.Operation {
	ops := make([]ledger.Operation, 0, 32)

	salaries := g.faker.Number(1, 2)
	for i := 0; i < salaries; i++ {
		op := ledger.NewOperation(accountID, g.DateIn(m), "VIR SALAIRE "+g.faker.Company(), g.Salary())
		op.Allocations = ledger.Categorized(income, op.Total)
		ops = append(ops, op)
	}

	count := g.faker.Number(10, 25)
	for i := 0; i < count; i++ {
		if len(expenses) == 0 || g.faker.Number(0, 4) == 0 {
			ops = append(ops, g.Operation(accountID, m))
			continue
		}
		cat := expenses[g.faker.Number(0, len(expenses)-1)]
		ops = append(ops, g.CategorizedOperation(accountID, cat, m))
	}
	return ops
}
