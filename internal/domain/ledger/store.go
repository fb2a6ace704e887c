package ledger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/pkg/money"
)

// Store is a ledger document. Every mutator validates first and leaves the
// store untouched on error; every successful mutation bumps the generation.
//
// Store is not safe for concurrent use. The command stack serializes writers and
// hands readers Snapshots.
type Store struct {
	state
	generation uint64
}

// NewStore creates an empty document in the given currency.
func NewStore(currency string) *Store {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Store{state: newState(currency)}
}

// Generation increases by one with each successful mutation.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Snapshot returns an immutable copy of the current document.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{state: s.state.clone(), generation: s.generation}
}

func (s *Store) bump() {
	s.generation++
}

// ============================================================================
// Accounts
// ============================================================================

// AddAccount appends an account. A zero ID is replaced by a new one.
func (s *Store) AddAccount(a Account) (Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Name = strings.TrimSpace(a.Name)
	if s.accountIndex(a.ID) >= 0 {
		return Account{}, invalid("add account", fmt.Errorf("account %s already exists", a.ID))
	}
	if err := s.validateAccountName(a.ID, a.Name); err != nil {
		return Account{}, invalid("add account", err)
	}
	s.accounts = append(s.accounts, a)
	s.bump()
	return a, nil
}

// RenameAccount changes an account name and returns the previous one.
func (s *Store) RenameAccount(id uuid.UUID, name string) (string, error) {
	i := s.accountIndex(id)
	if i < 0 {
		return "", fmt.Errorf("rename account %s: %w", id, ErrNotFound)
	}
	name = strings.TrimSpace(name)
	if err := s.validateAccountName(id, name); err != nil {
		return "", invalid("rename account", err)
	}
	prev := s.accounts[i].Name
	s.accounts[i].Name = name
	s.bump()
	return prev, nil
}

// RemoveAccount deletes an account that owns no operations.
func (s *Store) RemoveAccount(id uuid.UUID) (Account, error) {
	i := s.accountIndex(id)
	if i < 0 {
		return Account{}, fmt.Errorf("remove account %s: %w", id, ErrNotFound)
	}
	for _, op := range s.operations {
		if op.AccountID == id {
			return Account{}, invalid("remove account", ErrAccountNotEmpty)
		}
	}
	a := s.accounts[i]
	s.accounts = slices.Delete(s.accounts, i, i+1)
	s.bump()
	return a, nil
}

// ============================================================================
// Categories
// ============================================================================

// AddCategory appends a category. A zero ID is replaced by a new one.
func (s *Store) AddCategory(c Category) (Category, error) {
	return s.InsertCategory(len(s.categories), c)
}

// InsertCategory places a category at index (clamped to the valid range).
func (s *Store) InsertCategory(index int, c Category) (Category, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Name = strings.TrimSpace(c.Name)
	if s.categoryIndex(c.ID) >= 0 {
		return Category{}, invalid("add category", fmt.Errorf("category %s already exists", c.ID))
	}
	if err := s.validateCategory(c); err != nil {
		return Category{}, invalid("add category", err)
	}
	index = max(0, min(index, len(s.categories)))
	s.categories = slices.Insert(s.categories, index, c)
	s.bump()
	return c, nil
}

// UpdateCategory replaces the category with the same ID and returns the previous value.
func (s *Store) UpdateCategory(c Category) (Category, error) {
	i := s.categoryIndex(c.ID)
	if i < 0 {
		return Category{}, fmt.Errorf("update category %s: %w", c.ID, ErrNotFound)
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := s.validateCategory(c); err != nil {
		return Category{}, invalid("update category", err)
	}
	prev := s.categories[i]
	s.categories[i] = c
	s.bump()
	return prev, nil
}

// RemoveCategory deletes an unreferenced category and returns it with its position.
func (s *Store) RemoveCategory(id uuid.UUID) (Category, int, error) {
	i := s.categoryIndex(id)
	if i < 0 {
		return Category{}, -1, fmt.Errorf("remove category %s: %w", id, ErrNotFound)
	}
	if !s.CategoryReferences(id).IsEmpty() {
		return Category{}, -1, invalid("remove category", fmt.Errorf("%w: %q", ErrCategoryInUse, s.categories[i].Name))
	}
	c := s.categories[i]
	s.categories = slices.Delete(s.categories, i, i+1)
	s.bump()
	return c, i, nil
}

// ============================================================================
// Operations
// ============================================================================

// AddOperation stores a new operation and returns it as stored. Operations
// removed earlier keep their insertion position when added back.
func (s *Store) AddOperation(op Operation) (Operation, error) {
	op = op.Clone()
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if _, exists := s.operations[op.ID]; exists {
		return Operation{}, invalid("add operation", fmt.Errorf("operation %s already exists", op.ID))
	}
	normalizeOperation(&op)
	if err := s.validateOperation(op); err != nil {
		return Operation{}, invalid("add operation", err)
	}
	if op.seq == 0 {
		s.nextSeq++
		op.seq = s.nextSeq
	} else if op.seq > s.nextSeq {
		s.nextSeq = op.seq
	}
	s.operations[op.ID] = op
	s.bump()
	return op.Clone(), nil
}

// RemoveOperation deletes an operation and returns it.
func (s *Store) RemoveOperation(id uuid.UUID) (Operation, error) {
	op, ok := s.operations[id]
	if !ok {
		return Operation{}, fmt.Errorf("remove operation %s: %w", id, ErrNotFound)
	}
	delete(s.operations, id)
	s.bump()
	return op, nil
}

// UpdateOperation applies mutate to a copy of the operation, validates the
// result and swaps it in. It returns the previous value. The identity, account
// and insertion position cannot change.
func (s *Store) UpdateOperation(id uuid.UUID, mutate func(*Operation) error) (Operation, error) {
	prev, ok := s.operations[id]
	if !ok {
		return Operation{}, fmt.Errorf("update operation %s: %w", id, ErrNotFound)
	}
	next := prev.Clone()
	if err := mutate(&next); err != nil {
		return Operation{}, invalid("update operation", err)
	}
	next.ID, next.AccountID, next.seq = prev.ID, prev.AccountID, prev.seq
	normalizeOperation(&next)
	if err := s.validateOperation(next); err != nil {
		return Operation{}, invalid("update operation", err)
	}
	s.operations[id] = next
	s.bump()
	return prev.Clone(), nil
}

// ReplaceOperation restores a previously captured operation value.
func (s *Store) ReplaceOperation(op Operation) (Operation, error) {
	return s.UpdateOperation(op.ID, func(o *Operation) error {
		*o = op.Clone()
		return nil
	})
}

// ============================================================================
// Rules
// ============================================================================

// InsertRule places a rule at index; index == len(rules) appends.
func (s *Store) InsertRule(index int, r Rule) error {
	if index < 0 || index > len(s.rules) {
		return fmt.Errorf("insert rule at %d: %w", index, ErrRuleIndex)
	}
	if err := s.validateRule(r, -1); err != nil {
		return invalid("add rule", err)
	}
	s.rules = slices.Insert(s.rules, index, r)
	s.bump()
	return nil
}

// RemoveRule deletes the rule at index and returns it.
func (s *Store) RemoveRule(index int) (Rule, error) {
	if index < 0 || index >= len(s.rules) {
		return Rule{}, fmt.Errorf("remove rule %d: %w", index, ErrRuleIndex)
	}
	r := s.rules[index]
	s.rules = slices.Delete(s.rules, index, index+1)
	s.bump()
	return r, nil
}

// ReplaceRule overwrites the rule at index and returns the previous one.
func (s *Store) ReplaceRule(index int, r Rule) (Rule, error) {
	if index < 0 || index >= len(s.rules) {
		return Rule{}, fmt.Errorf("edit rule %d: %w", index, ErrRuleIndex)
	}
	if err := s.validateRule(r, index); err != nil {
		return Rule{}, invalid("edit rule", err)
	}
	prev := s.rules[index]
	s.rules[index] = r
	s.bump()
	return prev, nil
}

// MoveRule moves the rule at from so that it ends up at index to.
func (s *Store) MoveRule(from, to int) error {
	if from < 0 || from >= len(s.rules) || to < 0 || to >= len(s.rules) {
		return fmt.Errorf("move rule %d to %d: %w", from, to, ErrRuleIndex)
	}
	r := s.rules[from]
	s.rules = slices.Delete(s.rules, from, from+1)
	s.rules = slices.Insert(s.rules, to, r)
	s.bump()
	return nil
}

// ============================================================================
// Leftover decisions
// ============================================================================

// PutLeftoverDecision stores d, overwriting any decision for the same key.
// It returns the previous decision, if any.
func (s *Store) PutLeftoverDecision(d LeftoverDecision) (LeftoverDecision, bool, error) {
	if err := s.validateDecision(d); err != nil {
		return LeftoverDecision{}, false, invalid("set leftover decision", err)
	}
	if d.Disposition != DispositionSplit {
		d.SaveAmount, d.ReportAmount = nil, nil
	}
	prev, had := s.leftovers[d.Key()]
	s.leftovers[d.Key()] = d
	s.bump()
	return prev, had, nil
}

// DeleteLeftoverDecision removes the decision for key and returns it.
func (s *Store) DeleteLeftoverDecision(key LeftoverKey) (LeftoverDecision, bool) {
	prev, had := s.leftovers[key]
	if !had {
		return LeftoverDecision{}, false
	}
	delete(s.leftovers, key)
	s.bump()
	return prev, true
}

// Snapshot is an immutable view of a Store at one generation.
type Snapshot struct {
	state
	generation uint64
}

// Generation is the store generation the snapshot was taken at.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}
