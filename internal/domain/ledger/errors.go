package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrEmptyName                = errors.New("name must not be empty")
	ErrDuplicateAccountName     = errors.New("an account with this name already exists")
	ErrDuplicateCategoryName    = errors.New("a category with this name already exists")
	ErrUnknownAccount           = errors.New("unknown account")
	ErrUnknownCategory          = errors.New("unknown category")
	ErrAccountNotEmpty          = errors.New("account still owns operations")
	ErrEmptyAllocations         = errors.New("operation must have at least one allocation")
	ErrAllocationSumMismatch    = errors.New("allocations do not sum to the operation total")
	ErrDuplicateCategoryInSplit = errors.New("category appears more than once in the split")
	ErrEmptyPrefix              = errors.New("rule prefix must not be empty")
	ErrDuplicateRulePrefix      = errors.New("a rule with this prefix already exists")
	ErrCurrencyMismatch         = errors.New("amount is not in the ledger currency")
	ErrMissingAmount            = errors.New("amount is required")
	ErrMissingDate              = errors.New("date is required")
	ErrCategoryInUse            = errors.New("category is still referenced")
	ErrOperationSplit           = errors.New("operation is split")
	ErrNegativeBudget           = errors.New("budget limit must not be negative")
	ErrSplitAmountMismatch      = errors.New("save and report amounts do not sum to the leftover")
	ErrInvalidDisposition       = errors.New("invalid leftover disposition")
	ErrRuleIndex                = errors.New("rule index out of range")
)

// ValidationError reports a rejected mutation. The store is unchanged when it is returned.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// IntegrityError means a command's captured state no longer matches the store,
// for example when reverting out of order. The mutation is refused.
type IntegrityError struct {
	Op     string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Op, e.Reason)
}

// NewIntegrityError builds an IntegrityError with a formatted reason.
func NewIntegrityError(op, format string, args ...any) error {
	return &IntegrityError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsIntegrity reports whether err is or wraps an IntegrityError.
func IsIntegrity(err error) bool {
	var v *IntegrityError
	return errors.As(err, &v)
}
