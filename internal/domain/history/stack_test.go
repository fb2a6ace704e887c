package history

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/internal/domain/ledger/ledgertest"
	"github.com/FACorreiaa/comptine/pkg/money"
)

var jan = ledger.NewMonth(2024, time.January)

func eur(s string) *money.Money {
	return money.MustParse(s, money.EUR)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// view is the observable content of a snapshot, without its generation.
type view struct {
	Accounts   []ledger.Account
	Categories []ledger.Category
	Operations []ledger.Operation
	Rules      []ledger.Rule
	Leftovers  []ledger.LeftoverDecision
}

func viewOf(s *ledger.Snapshot) view {
	return view{
		Accounts:   s.Accounts(),
		Categories: s.Categories(),
		Operations: s.Operations(),
		Rules:      s.Rules(),
		Leftovers:  s.LeftoverDecisions(),
	}
}

type fixture struct {
	t       *testing.T
	stack   *Stack
	account ledger.Account
	food    ledger.Category
	rent    ledger.Category
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, stack: NewStack(ledger.NewStore(money.EUR), discard(), opts...)}

	acc := NewAddAccount("Checking")
	food := NewAddCategory("Food", false, eur("300"))
	rent := NewAddCategory("Rent", false, eur("900"))
	f.apply(acc)
	f.apply(food)
	f.apply(rent)
	f.account, f.food, f.rent = acc.Account, food.Category, rent.Category
	return f
}

func (f *fixture) apply(cmd Command) {
	f.t.Helper()
	require.NoError(f.t, f.stack.Apply(cmd), cmd.Label())
}

func (f *fixture) spend(date time.Time, description, amount string, categoryID *uuid.UUID) ledger.Operation {
	f.t.Helper()
	op := ledger.NewOperation(f.account.ID, date, description, eur(amount))
	if categoryID != nil {
		op.Allocations = ledger.Categorized(*categoryID, op.Total)
	}
	cmd := NewAddOperation(op)
	f.apply(cmd)
	return cmd.stored
}

func (f *fixture) operation(id uuid.UUID) ledger.Operation {
	f.t.Helper()
	op, ok := f.stack.Snapshot().Operation(id)
	require.True(f.t, ok)
	return op
}

func idOf(c ledger.Category) *uuid.UUID {
	id := c.ID
	return &id
}

func TestStack_UndoRedoRoundTrip(t *testing.T) {
	gen := ledgertest.NewGeneratorWithSeed(42, money.EUR)
	f := newFixture(t)
	unique := func(s string) string { return s + " " + uuid.NewString()[:8] }

	// cycle returns the commands of one round. Each step is built lazily so
	// it can refer to what earlier steps created.
	cycle := func(n int) []func() Command {
		month := jan.Next()
		for range n {
			month = month.Next()
		}
		var (
			extra      *AddCategory
			loose      ledger.Operation
			assigned   ledger.Operation
			importedOp ledger.Operation
		)
		return []func() Command{
			func() Command {
				extra = NewAddCategory(unique(gen.ExpenseCategoryName()), false, gen.Budget())
				return extra
			},
			func() Command {
				loose = gen.Operation(f.account.ID, jan)
				loose.Description = unique(loose.Description)
				return NewAddOperation(loose)
			},
			func() Command {
				assigned = gen.CategorizedOperation(f.account.ID, extra.Category.ID, jan)
				return NewAddOperation(assigned)
			},
			func() Command { return NewAddRule(loose.Description, f.food.ID) },
			func() Command { return NewAddRule(unique(gen.Rule(extra.Category.ID).Prefix), extra.Category.ID) },
			func() Command { return NewApplyRules() },
			func() Command { return NewMoveRule(0, len(f.stack.Snapshot().Rules())-1) },
			func() Command {
				return NewSplitOperation(assigned.ID, gen.SplitAllocations(assigned.Total, extra.Category.ID, f.food.ID))
			},
			func() Command { return NewSetLeftoverDecision(extra.Category.ID, month, ledger.DispositionSave) },
			func() Command { return NewSetLeftoverDecision(extra.Category.ID, month, ledger.DispositionReport) },
			func() Command { return NewDeleteCategory(extra.Category.ID, DeleteCascade) },
			func() Command { return NewUnsplitOperation(assigned.ID) },
			func() Command { return NewSetLeftoverDecision(f.food.ID, month, ledger.DispositionSave) },
			func() Command { return NewSetLeftoverDecision(f.food.ID, month, ledger.DispositionReport) },
			func() Command { return NewClearLeftover(f.food.ID, month) },
			func() Command { return NewSetLeftoverDecision(f.rent.ID, month, ledger.DispositionReport) },
			func() Command {
				cat := NewAddCategory(unique(gen.ExpenseCategoryName()), false, nil)
				importedOp = gen.CategorizedOperation(f.account.ID, cat.Category.ID, jan)
				return &ImportOperations{
					Categories: []*AddCategory{cat},
					Operations: []*AddOperation{
						NewAddOperation(importedOp),
						NewAddOperation(gen.Operation(f.account.ID, jan)),
					},
				}
			},
			func() Command { return NewSetOperationCategory(importedOp.ID, idOf(f.rent)) },
			func() Command { return NewSetCategoryBudget(f.food.ID, gen.Budget()) },
			func() Command { return NewSetOperationDescription(loose.ID, gen.Description()) },
		}
	}

	// views[i] is the ledger after the i-th history entry. Merged leftover
	// edits replace the top view; a merge that cancels out drops it.
	base, _ := f.stack.Len()
	views := []view{viewOf(f.stack.Snapshot())}
	for n := range 3 {
		for _, step := range cycle(n) {
			before, _ := f.stack.Len()
			f.apply(step())
			after, _ := f.stack.Len()
			current := viewOf(f.stack.Snapshot())
			switch after - before {
			case 1:
				views = append(views, current)
			case 0:
				views[len(views)-1] = current
			case -1:
				views = views[:len(views)-1]
				require.Equal(t, views[len(views)-1], current, "cancelled edit must restore the previous state")
			default:
				t.Fatalf("history depth moved by %d", after-before)
			}
		}
	}

	depth, _ := f.stack.Len()
	require.Equal(t, len(views)-1, depth-base)

	for i := len(views) - 2; i >= 0; i-- {
		require.NoError(t, f.stack.Undo())
		require.Equal(t, views[i], viewOf(f.stack.Snapshot()), "after undo to step %d", i)
	}
	for i := 1; i < len(views); i++ {
		require.NoError(t, f.stack.Redo())
		require.Equal(t, views[i], viewOf(f.stack.Snapshot()), "after redo to step %d", i)
	}
	assert.False(t, f.stack.CanRedo())
}

func TestStack_ApplyClearsRedo(t *testing.T) {
	f := newFixture(t)
	f.spend(ledger.Date(2024, 1, 5), "CB LIDL", "-20", nil)

	require.NoError(t, f.stack.Undo())
	assert.True(t, f.stack.CanRedo())
	assert.Equal(t, `Add operation: "CB LIDL"`, f.stack.RedoLabel())

	f.apply(NewRenameAccount(f.account.ID, "Joint"))
	assert.False(t, f.stack.CanRedo())
	assert.ErrorIs(t, f.stack.Redo(), ErrNothingToRedo)
}

func TestStack_EmptyHistory(t *testing.T) {
	s := NewStack(ledger.NewStore(money.EUR), discard())
	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)
	assert.ErrorIs(t, s.Redo(), ErrNothingToRedo)
	assert.Empty(t, s.UndoLabel())
	assert.Empty(t, s.RedoLabel())
	assert.True(t, s.IsClean())
}

func TestStack_FailedCommandIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	before := f.stack.Snapshot()
	undo, _ := f.stack.Len()

	err := f.stack.Apply(NewAddCategory("Food", false, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDuplicateCategoryName)
	assert.True(t, ledger.IsValidation(err))

	after, _ := f.stack.Len()
	assert.Equal(t, undo, after)
	assert.Same(t, before, f.stack.Snapshot())
}

func TestStack_IntegrityViolation(t *testing.T) {
	store := ledger.NewStore(money.EUR)
	s := NewStack(store, discard())
	require.NoError(t, s.Apply(NewAddAccount("Checking")))

	_, err := store.AddAccount(ledger.Account{Name: "Sneaky"})
	require.NoError(t, err)

	err = s.Undo()
	require.Error(t, err)
	assert.True(t, ledger.IsIntegrity(err))
	_, ok := store.AccountByName("Checking")
	assert.True(t, ok, "refused undo must not touch the store")
}

func TestStack_Limit(t *testing.T) {
	s := NewStack(ledger.NewStore(money.EUR), discard(), WithLimit(3))
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, s.Apply(NewAddAccount(name)))
	}

	undo, _ := s.Len()
	assert.Equal(t, 3, undo)
	for range 3 {
		require.NoError(t, s.Undo())
	}
	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)

	names := make([]string, 0)
	for _, a := range s.Snapshot().Accounts() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestStack_CleanTracking(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.stack.IsClean())

	f.stack.MarkClean()
	assert.True(t, f.stack.IsClean())

	f.apply(NewRenameAccount(f.account.ID, "Joint"))
	assert.False(t, f.stack.IsClean())

	require.NoError(t, f.stack.Undo())
	assert.True(t, f.stack.IsClean())

	require.NoError(t, f.stack.Redo())
	assert.False(t, f.stack.IsClean())

	t.Run("saved state lost after branching", func(t *testing.T) {
		f.stack.MarkClean()
		require.NoError(t, f.stack.Undo())
		f.apply(NewRenameAccount(f.account.ID, "Other"))
		assert.False(t, f.stack.IsClean())
		require.NoError(t, f.stack.Undo())
		assert.False(t, f.stack.IsClean())
	})
}

func TestStack_SubscribeAndObserve(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, WithObserver(obs))

	var events []Event
	unsubscribe := f.stack.Subscribe(func(ev Event) { events = append(events, ev) })

	f.apply(NewRenameAccount(f.account.ID, "Joint"))
	require.NoError(t, f.stack.Undo())
	require.NoError(t, f.stack.Redo())
	require.Error(t, f.stack.Apply(NewRenameAccount(uuid.New(), "Ghost")))

	require.Len(t, events, 3)
	assert.Equal(t, []Action{Applied, Undone, Redone}, []Action{events[0].Action, events[1].Action, events[2].Action})
	assert.Equal(t, `Rename account to "Joint"`, events[0].Label)
	assert.Same(t, f.stack.Snapshot(), events[2].Snapshot)

	unsubscribe()
	require.NoError(t, f.stack.Undo())
	assert.Len(t, events, 3)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 4, obs.applied["add_account"]+obs.applied["add_category"]+obs.applied["rename_account"])
	assert.Equal(t, 2, obs.undone["rename_account"])
	assert.Equal(t, 1, obs.redone["rename_account"])
	assert.Equal(t, 1, obs.failed["rename_account/apply"])
	assert.Equal(t, 3, obs.undoDepth)
}

type recordingObserver struct {
	mu        sync.Mutex
	applied   map[string]int
	undone    map[string]int
	redone    map[string]int
	failed    map[string]int
	undoDepth int
}

func (o *recordingObserver) bump(m *map[string]int, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key]++
}

func (o *recordingObserver) CommandApplied(kind string, _ time.Duration) { o.bump(&o.applied, kind) }
func (o *recordingObserver) CommandUndone(kind string)                   { o.bump(&o.undone, kind) }
func (o *recordingObserver) CommandRedone(kind string)                   { o.bump(&o.redone, kind) }
func (o *recordingObserver) CommandFailed(kind, action string)           { o.bump(&o.failed, kind+"/"+action) }

func (o *recordingObserver) HistoryDepth(undo, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.undoDepth = undo
}

func TestStack_ConcurrentReaders(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap := f.stack.Snapshot()
				_ = snap.Operations()
			}
		}()
	}
	for i := range 50 {
		f.spend(ledger.Date(2024, 1, 1+i%28), "CB SHOP", "-1", nil)
	}
	wg.Wait()
	assert.Equal(t, 50, f.stack.Snapshot().OperationCount())
}
