// Package history mutates a ledger through undoable commands.
//
// Commands form a closed set. Each one captures, when applied, what it needs to
// restore the previous state exactly, so reverting never recomputes anything.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

// Command is a ledger mutation that can be reverted.
//
//sumtype:decl
type Command interface {
	// Label is a human-readable description used only for display.
	Label() string
	command()
}

// DeletePolicy controls what happens to references when a category is deleted.
type DeletePolicy int

const (
	// DeleteBlock refuses to delete a referenced category.
	DeleteBlock DeletePolicy = iota
	// DeleteCascade uncategorizes operations and drops rules and leftover decisions.
	DeleteCascade
)

// ParseDeletePolicy maps "block" and "cascade" to a policy.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch s {
	case "", "block":
		return DeleteBlock, nil
	case "cascade":
		return DeleteCascade, nil
	}
	return DeleteBlock, fmt.Errorf("unknown category delete policy %q", s)
}

func (p DeletePolicy) String() string {
	if p == DeleteCascade {
		return "cascade"
	}
	return "block"
}

// ============================================================================
// Accounts
// ============================================================================

// AddAccount creates an account. The ID is fixed at construction so compound
// commands can reference the account before it exists.
type AddAccount struct {
	Account ledger.Account
}

func NewAddAccount(name string) *AddAccount {
	return &AddAccount{Account: ledger.Account{ID: uuid.New(), Name: name}}
}

func (c *AddAccount) Label() string { return fmt.Sprintf("Add account %q", c.Account.Name) }
func (*AddAccount) command()        {}

// RenameAccount changes an account name.
type RenameAccount struct {
	AccountID uuid.UUID
	Name      string

	prev string
}

func NewRenameAccount(accountID uuid.UUID, name string) *RenameAccount {
	return &RenameAccount{AccountID: accountID, Name: name}
}

func (c *RenameAccount) Label() string { return fmt.Sprintf("Rename account to %q", c.Name) }
func (*RenameAccount) command()        {}

// ============================================================================
// Categories
// ============================================================================

// AddCategory appends a category. Undo and redo keep its position.
type AddCategory struct {
	Category ledger.Category

	index int
}

func NewAddCategory(name string, isIncome bool, limit *money.Money) *AddCategory {
	return &AddCategory{Category: ledger.Category{
		ID:          uuid.New(),
		Name:        name,
		IsIncome:    isIncome,
		BudgetLimit: limit,
	}}
}

func (c *AddCategory) Label() string { return fmt.Sprintf("Add category %q", c.Category.Name) }
func (*AddCategory) command()        {}

// EditCategory replaces a category's name, income flag and limit.
type EditCategory struct {
	CategoryID  uuid.UUID
	Name        string
	IsIncome    bool
	BudgetLimit *money.Money

	prev    ledger.Category
	applied bool
}

func NewEditCategory(categoryID uuid.UUID, name string, isIncome bool, limit *money.Money) *EditCategory {
	return &EditCategory{CategoryID: categoryID, Name: name, IsIncome: isIncome, BudgetLimit: limit}
}

func (c *EditCategory) Label() string {
	if c.applied {
		nameChanged := c.prev.Name != c.Name
		otherChanged := c.prev.IsIncome != c.IsIncome || !sameLimit(c.prev.BudgetLimit, c.BudgetLimit)
		switch {
		case nameChanged && !otherChanged:
			return fmt.Sprintf("Rename category to %q", c.Name)
		case !nameChanged && c.prev.IsIncome == c.IsIncome:
			return fmt.Sprintf("Change budget limit of %q", c.Name)
		}
	}
	return fmt.Sprintf("Edit category %q", c.Name)
}
func (*EditCategory) command() {}

// SetCategoryBudget changes only the monthly limit. A nil limit removes the budget.
type SetCategoryBudget struct {
	CategoryID  uuid.UUID
	BudgetLimit *money.Money

	prev ledger.Category
}

func NewSetCategoryBudget(categoryID uuid.UUID, limit *money.Money) *SetCategoryBudget {
	return &SetCategoryBudget{CategoryID: categoryID, BudgetLimit: limit}
}

func (c *SetCategoryBudget) Label() string {
	if c.prev.Name == "" {
		return "Change budget limit"
	}
	return fmt.Sprintf("Change budget limit of %q", c.prev.Name)
}
func (*SetCategoryBudget) command() {}

// DeleteCategory removes a category according to Policy.
type DeleteCategory struct {
	CategoryID uuid.UUID
	Policy     DeletePolicy

	category  ledger.Category
	index     int
	ops       []ledger.Operation
	rules     []indexedRule
	leftovers []ledger.LeftoverDecision
}

type indexedRule struct {
	index int
	rule  ledger.Rule
}

func NewDeleteCategory(categoryID uuid.UUID, policy DeletePolicy) *DeleteCategory {
	return &DeleteCategory{CategoryID: categoryID, Policy: policy}
}

func (c *DeleteCategory) Label() string {
	if c.category.Name == "" {
		return "Delete category"
	}
	return fmt.Sprintf("Delete category %q", c.category.Name)
}
func (*DeleteCategory) command() {}

// ============================================================================
// Operations
// ============================================================================

// AddOperation stores one operation.
type AddOperation struct {
	Operation ledger.Operation

	stored ledger.Operation
}

func NewAddOperation(op ledger.Operation) *AddOperation {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	return &AddOperation{Operation: op}
}

func (c *AddOperation) Label() string {
	return fmt.Sprintf("Add operation: %q", c.Operation.Description)
}
func (*AddOperation) command() {}

// RemoveOperation deletes one operation.
type RemoveOperation struct {
	OperationID uuid.UUID

	removed ledger.Operation
}

func NewRemoveOperation(operationID uuid.UUID) *RemoveOperation {
	return &RemoveOperation{OperationID: operationID}
}

func (c *RemoveOperation) Label() string {
	if c.removed.Description == "" {
		return "Remove operation"
	}
	return fmt.Sprintf("Remove operation: %q", c.removed.Description)
}
func (*RemoveOperation) command() {}

// ImportSummary describes what an import did, for display.
type ImportSummary struct {
	Rows          int
	Imported      int
	Duplicates    int
	Invalid       int
	Uncategorized int
	NewCategories int
	Account       string
	NewAccount    bool
}

// ImportOperations adds a batch of operations, with an optional new account and
// new categories, as a single all-or-nothing step.
type ImportOperations struct {
	Account    *AddAccount
	Categories []*AddCategory
	Operations []*AddOperation
	Summary    ImportSummary
}

func (c *ImportOperations) parts() []Command {
	parts := make([]Command, 0, 1+len(c.Categories)+len(c.Operations))
	if c.Account != nil {
		parts = append(parts, c.Account)
	}
	for _, cat := range c.Categories {
		parts = append(parts, cat)
	}
	for _, op := range c.Operations {
		parts = append(parts, op)
	}
	return parts
}

func (c *ImportOperations) Label() string {
	label := fmt.Sprintf("Import %d operation(s)", len(c.Operations))
	if c.Account != nil {
		label += fmt.Sprintf(" to new account %q", c.Account.Account.Name)
	}
	if n := len(c.Categories); n > 0 {
		label += fmt.Sprintf(" with %d category(ies)", n)
	}
	return label
}
func (*ImportOperations) command() {}

// SetOperationCategory assigns the whole operation to one category, or clears
// it when CategoryID is nil. A split collapses into the single allocation.
type SetOperationCategory struct {
	OperationID uuid.UUID
	CategoryID  *uuid.UUID

	prev         ledger.Operation
	categoryName string
}

func NewSetOperationCategory(operationID uuid.UUID, categoryID *uuid.UUID) *SetOperationCategory {
	return &SetOperationCategory{OperationID: operationID, CategoryID: categoryID}
}

func (c *SetOperationCategory) Label() string {
	if c.CategoryID == nil {
		return "Clear operation category"
	}
	if c.categoryName == "" {
		return "Set operation category"
	}
	return fmt.Sprintf("Set operation category to %q", c.categoryName)
}
func (*SetOperationCategory) command() {}

// SplitOperation replaces the allocations of an operation.
type SplitOperation struct {
	OperationID uuid.UUID
	Allocations []ledger.Allocation

	prev ledger.Operation
}

func NewSplitOperation(operationID uuid.UUID, allocations []ledger.Allocation) *SplitOperation {
	return &SplitOperation{OperationID: operationID, Allocations: allocations}
}

func (c *SplitOperation) Label() string {
	return fmt.Sprintf("Split operation into %d categories", len(c.Allocations))
}
func (*SplitOperation) command() {}

// UnsplitOperation collapses an operation to a single uncategorized allocation.
type UnsplitOperation struct {
	OperationID uuid.UUID

	prev ledger.Operation
}

func NewUnsplitOperation(operationID uuid.UUID) *UnsplitOperation {
	return &UnsplitOperation{OperationID: operationID}
}

func (*UnsplitOperation) Label() string { return "Clear operation split" }
func (*UnsplitOperation) command()      {}

// SetOperationAmount changes the total of an unsplit operation.
type SetOperationAmount struct {
	OperationID uuid.UUID
	Amount      *money.Money

	prev ledger.Operation
}

func NewSetOperationAmount(operationID uuid.UUID, amount *money.Money) *SetOperationAmount {
	return &SetOperationAmount{OperationID: operationID, Amount: amount}
}

func (c *SetOperationAmount) Label() string {
	return fmt.Sprintf("Set operation amount to %s", c.Amount)
}
func (*SetOperationAmount) command() {}

// SetOperationDate moves an operation. A budget date that followed the old
// date follows the new one.
type SetOperationDate struct {
	OperationID uuid.UUID
	Date        time.Time

	prev ledger.Operation
}

func NewSetOperationDate(operationID uuid.UUID, date time.Time) *SetOperationDate {
	return &SetOperationDate{OperationID: operationID, Date: date}
}

func (c *SetOperationDate) Label() string {
	return fmt.Sprintf("Set operation date to %s", c.Date.Format("02/01/2006"))
}
func (*SetOperationDate) command() {}

// SetOperationBudgetDate changes the month an operation counts against. A zero
// date resets it to the transaction date.
type SetOperationBudgetDate struct {
	OperationID uuid.UUID
	BudgetDate  time.Time

	prev ledger.Operation
}

func NewSetOperationBudgetDate(operationID uuid.UUID, budgetDate time.Time) *SetOperationBudgetDate {
	return &SetOperationBudgetDate{OperationID: operationID, BudgetDate: budgetDate}
}

func (c *SetOperationBudgetDate) Label() string {
	if c.BudgetDate.IsZero() {
		return "Reset operation budget date"
	}
	return fmt.Sprintf("Set operation budget date to %s", c.BudgetDate.Format("02/01/2006"))
}
func (*SetOperationBudgetDate) command() {}

// SetOperationDescription changes an operation label.
type SetOperationDescription struct {
	OperationID uuid.UUID
	Description string

	prev ledger.Operation
}

func NewSetOperationDescription(operationID uuid.UUID, description string) *SetOperationDescription {
	return &SetOperationDescription{OperationID: operationID, Description: description}
}

func (*SetOperationDescription) Label() string { return "Set operation label" }
func (*SetOperationDescription) command()      {}

// ============================================================================
// Rules
// ============================================================================

// AddRule inserts a rule at Index, or appends it when Index is negative.
type AddRule struct {
	Rule  ledger.Rule
	Index int

	at int
}

func NewAddRule(prefix string, categoryID uuid.UUID) *AddRule {
	return &AddRule{Rule: ledger.Rule{Prefix: prefix, CategoryID: categoryID}, Index: -1}
}

func (c *AddRule) Label() string { return fmt.Sprintf("Add rule for %q", c.Rule.Prefix) }
func (*AddRule) command()        {}

// RemoveRule deletes the rule at Index.
type RemoveRule struct {
	Index int

	removed ledger.Rule
}

func NewRemoveRule(index int) *RemoveRule {
	return &RemoveRule{Index: index}
}

func (c *RemoveRule) Label() string {
	if c.removed.Prefix == "" {
		return "Remove rule"
	}
	return fmt.Sprintf("Remove rule for %q", c.removed.Prefix)
}
func (*RemoveRule) command() {}

// EditRule replaces the rule at Index.
type EditRule struct {
	Index int
	Rule  ledger.Rule

	prev ledger.Rule
}

func NewEditRule(index int, prefix string, categoryID uuid.UUID) *EditRule {
	return &EditRule{Index: index, Rule: ledger.Rule{Prefix: prefix, CategoryID: categoryID}}
}

func (c *EditRule) Label() string { return fmt.Sprintf("Edit rule for %q", c.Rule.Prefix) }
func (*EditRule) command()        {}

// MoveRule changes a rule's priority.
type MoveRule struct {
	From int
	To   int
}

func NewMoveRule(from, to int) *MoveRule {
	return &MoveRule{From: from, To: to}
}

func (*MoveRule) Label() string { return "Move rule" }
func (*MoveRule) command()      {}

// ApplyRules categorizes every uncategorized operation a rule matches.
type ApplyRules struct {
	assignments []assignment
	prev        []ledger.Operation
}

type assignment struct {
	operationID uuid.UUID
	categoryID  uuid.UUID
}

func NewApplyRules() *ApplyRules {
	return &ApplyRules{}
}

func (c *ApplyRules) Label() string {
	if c.assignments == nil {
		return "Apply rules"
	}
	return fmt.Sprintf("Apply rules to %d operation(s)", len(c.assignments))
}
func (*ApplyRules) command() {}

// ============================================================================
// Leftovers
// ============================================================================

// SetLeftoverDecision records what to do with a category's leftover for a
// month. A zero Disposition clears the decision. Consecutive edits of the same
// category and month merge into one history entry.
type SetLeftoverDecision struct {
	Decision ledger.LeftoverDecision

	prev         ledger.LeftoverDecision
	hadPrev      bool
	categoryName string
}

func NewSetLeftoverDecision(categoryID uuid.UUID, month ledger.Month, d ledger.Disposition) *SetLeftoverDecision {
	return &SetLeftoverDecision{Decision: ledger.LeftoverDecision{CategoryID: categoryID, Month: month, Disposition: d}}
}

// NewSplitLeftover saves part of the leftover and reports the rest.
func NewSplitLeftover(categoryID uuid.UUID, month ledger.Month, save, report *money.Money) *SetLeftoverDecision {
	return &SetLeftoverDecision{Decision: ledger.LeftoverDecision{
		CategoryID:   categoryID,
		Month:        month,
		Disposition:  ledger.DispositionSplit,
		SaveAmount:   save,
		ReportAmount: report,
	}}
}

// NewClearLeftover removes the decision for a category and month.
func NewClearLeftover(categoryID uuid.UUID, month ledger.Month) *SetLeftoverDecision {
	return NewSetLeftoverDecision(categoryID, month, 0)
}

func (c *SetLeftoverDecision) Label() string {
	var action string
	switch c.Decision.Disposition {
	case ledger.DispositionSplit:
		action = fmt.Sprintf("save %s and report %s", c.Decision.SaveAmount, c.Decision.ReportAmount)
	case ledger.DispositionSave:
		action = "save"
	case ledger.DispositionReport:
		action = "report"
	default:
		action = "clear"
	}
	name := c.categoryName
	if name == "" {
		name = c.Decision.Month.String()
	}
	return fmt.Sprintf("Set leftover for %q to %s", name, action)
}
func (*SetLeftoverDecision) command() {}

func (c *SetLeftoverDecision) mergeWith(next *SetLeftoverDecision) bool {
	if c.Decision.Key() != next.Decision.Key() {
		return false
	}
	c.Decision = next.Decision
	return true
}

// restoresPrevious reports whether the decision puts back the state that
// existed before the command was first applied.
func (c *SetLeftoverDecision) restoresPrevious() bool {
	if !c.hadPrev {
		return c.Decision.Disposition == 0
	}
	return c.Decision.Disposition == c.prev.Disposition &&
		sameLimit(c.Decision.SaveAmount, c.prev.SaveAmount) &&
		sameLimit(c.Decision.ReportAmount, c.prev.ReportAmount)
}

func sameLimit(a, b *money.Money) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}
