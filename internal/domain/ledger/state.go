package ledger

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/pkg/money"
)

// state is the document content shared by Store and Snapshot.
// Query methods return copies so callers never alias document memory.
type state struct {
	currency   string
	accounts   []Account
	categories []Category
	operations map[uuid.UUID]Operation
	rules      []Rule
	leftovers  map[LeftoverKey]LeftoverDecision
	nextSeq    uint64
}

func newState(currency string) state {
	return state{
		currency:   currency,
		operations: make(map[uuid.UUID]Operation),
		leftovers:  make(map[LeftoverKey]LeftoverDecision),
	}
}

func (s *state) clone() state {
	c := state{
		currency:   s.currency,
		accounts:   slices.Clone(s.accounts),
		categories: slices.Clone(s.categories),
		operations: make(map[uuid.UUID]Operation, len(s.operations)),
		rules:      slices.Clone(s.rules),
		leftovers:  maps.Clone(s.leftovers),
		nextSeq:    s.nextSeq,
	}
	for id, op := range s.operations {
		c.operations[id] = op.Clone()
	}
	if c.leftovers == nil {
		c.leftovers = make(map[LeftoverKey]LeftoverDecision)
	}
	return c
}

// Currency is the ledger currency every amount must use.
func (s *state) Currency() string {
	return s.currency
}

// Accounts returns accounts in creation order.
func (s *state) Accounts() []Account {
	return slices.Clone(s.accounts)
}

func (s *state) Account(id uuid.UUID) (Account, bool) {
	i := s.accountIndex(id)
	if i < 0 {
		return Account{}, false
	}
	return s.accounts[i], true
}

// AccountByName matches names exactly (case-sensitive).
func (s *state) AccountByName(name string) (Account, bool) {
	for _, a := range s.accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// Categories returns categories in display order.
func (s *state) Categories() []Category {
	return slices.Clone(s.categories)
}

func (s *state) Category(id uuid.UUID) (Category, bool) {
	i := s.categoryIndex(id)
	if i < 0 {
		return Category{}, false
	}
	return s.categories[i], true
}

func (s *state) CategoryByName(name string) (Category, bool) {
	for _, c := range s.categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryIndex returns the display position of a category, or -1.
func (s *state) CategoryIndex(id uuid.UUID) int {
	return s.categoryIndex(id)
}

func (s *state) Operation(id uuid.UUID) (Operation, bool) {
	op, ok := s.operations[id]
	if !ok {
		return Operation{}, false
	}
	return op.Clone(), true
}

// OperationCount returns the number of operations across all accounts.
func (s *state) OperationCount() int {
	return len(s.operations)
}

// Operations returns every operation ordered by date then insertion.
func (s *state) Operations() []Operation {
	return s.collect(func(Operation) bool { return true })
}

// OperationsForAccount returns the account's operations ordered by date then insertion.
func (s *state) OperationsForAccount(accountID uuid.UUID) []Operation {
	return s.collect(func(op Operation) bool { return op.AccountID == accountID })
}

// OperationsInBudgetMonth returns the operations whose budget date falls in m.
func (s *state) OperationsInBudgetMonth(m Month) []Operation {
	return s.collect(func(op Operation) bool { return op.BudgetMonth() == m })
}

// UncategorizedOperations returns operations with no category on any allocation.
func (s *state) UncategorizedOperations() []Operation {
	return s.collect(func(op Operation) bool { return op.IsUncategorized() })
}

// HasOperation reports whether the account already holds an operation with the
// same date, amount and description.
func (s *state) HasOperation(accountID uuid.UUID, date time.Time, amount *money.Money, description string) bool {
	date = TruncateDay(date)
	for _, op := range s.operations {
		if op.AccountID == accountID && op.Date.Equal(date) &&
			op.Description == description && op.Total.Equals(amount) {
			return true
		}
	}
	return false
}

// Rules returns rules in priority order.
func (s *state) Rules() []Rule {
	return slices.Clone(s.rules)
}

func (s *state) Rule(index int) (Rule, bool) {
	if index < 0 || index >= len(s.rules) {
		return Rule{}, false
	}
	return s.rules[index], true
}

func (s *state) LeftoverDecision(categoryID uuid.UUID, m Month) (LeftoverDecision, bool) {
	d, ok := s.leftovers[LeftoverKey{CategoryID: categoryID, Month: m}]
	return d, ok
}

// LeftoverDecisions returns every decision ordered by month, then category order.
func (s *state) LeftoverDecisions() []LeftoverDecision {
	out := make([]LeftoverDecision, 0, len(s.leftovers))
	for _, d := range s.leftovers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Month.Compare(out[j].Month); c != 0 {
			return c < 0
		}
		return s.categoryIndex(out[i].CategoryID) < s.categoryIndex(out[j].CategoryID)
	})
	return out
}

// References lists what points at a category.
type References struct {
	Operations []uuid.UUID
	Rules      []int
	Leftovers  []LeftoverKey
}

// IsEmpty reports whether nothing references the category.
func (r References) IsEmpty() bool {
	return len(r.Operations) == 0 && len(r.Rules) == 0 && len(r.Leftovers) == 0
}

// CategoryReferences collects operations, rules and leftover decisions naming id.
func (s *state) CategoryReferences(id uuid.UUID) References {
	var refs References
	for _, op := range s.collect(func(op Operation) bool { return op.References(id) }) {
		refs.Operations = append(refs.Operations, op.ID)
	}
	for i, r := range s.rules {
		if r.CategoryID == id {
			refs.Rules = append(refs.Rules, i)
		}
	}
	for _, d := range s.LeftoverDecisions() {
		if d.CategoryID == id {
			refs.Leftovers = append(refs.Leftovers, d.Key())
		}
	}
	return refs
}

// BudgetMonths returns the earliest and latest budget months holding operations.
func (s *state) BudgetMonths() (first, last Month, ok bool) {
	for _, op := range s.operations {
		m := op.BudgetMonth()
		if !ok || m.Before(first) {
			first = m
		}
		if !ok || m.After(last) {
			last = m
		}
		ok = true
	}
	return first, last, ok
}

func (s *state) collect(keep func(Operation) bool) []Operation {
	out := make([]Operation, 0)
	for _, op := range s.operations {
		if keep(op) {
			out = append(out, op.Clone())
		}
	}
	sortOperations(out)
	return out
}

func sortOperations(ops []Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if !ops[i].Date.Equal(ops[j].Date) {
			return ops[i].Date.Before(ops[j].Date)
		}
		return ops[i].seq < ops[j].seq
	})
}

func (s *state) accountIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.accounts, func(a Account) bool { return a.ID == id })
}

func (s *state) categoryIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.categories, func(c Category) bool { return c.ID == id })
}

// Reader is the read side shared by Store and Snapshot.
type Reader interface {
	Currency() string
	Accounts() []Account
	Account(id uuid.UUID) (Account, bool)
	AccountByName(name string) (Account, bool)
	Categories() []Category
	Category(id uuid.UUID) (Category, bool)
	CategoryByName(name string) (Category, bool)
	Operation(id uuid.UUID) (Operation, bool)
	Operations() []Operation
	OperationsForAccount(accountID uuid.UUID) []Operation
	OperationsInBudgetMonth(m Month) []Operation
	UncategorizedOperations() []Operation
	HasOperation(accountID uuid.UUID, date time.Time, amount *money.Money, description string) bool
	Rules() []Rule
	LeftoverDecision(categoryID uuid.UUID, m Month) (LeftoverDecision, bool)
	LeftoverDecisions() []LeftoverDecision
}

var (
	_ Reader = (*Store)(nil)
	_ Reader = (*Snapshot)(nil)
)
