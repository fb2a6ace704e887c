package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FACorreiaa/comptine/internal/domain/budget"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// Observer receives history metrics. Implementations must be safe for
// concurrent use.
type Observer interface {
	CommandApplied(kind string, elapsed time.Duration)
	CommandUndone(kind string)
	CommandRedone(kind string)
	CommandFailed(kind, action string)
	HistoryDepth(undo, redo int)
}

// Action says what the stack just did.
type Action int

const (
	Applied Action = iota + 1
	Undone
	Redone
)

func (a Action) String() string {
	switch a {
	case Applied:
		return "apply"
	case Undone:
		return "undo"
	case Redone:
		return "redo"
	}
	return "unknown"
}

// Event describes a successful history change.
type Event struct {
	Action   Action
	Label    string
	Snapshot *ledger.Snapshot
}

type entry struct {
	cmd Command
	// generation is the store generation right after the entry was applied
	// (undo list) or reverted (redo list).
	generation uint64
}

// Stack owns a ledger store and is the only writer to it. Every mutation goes
// through Apply and can be undone and redone in order.
//
// Stack is safe for concurrent use. Readers take immutable snapshots and never
// block writers for longer than a pointer load.
type Stack struct {
	mu      sync.Mutex
	store   *ledger.Store
	deps    deps
	applied []entry
	undone  []entry
	limit   int
	// clean is the undo depth at the last MarkClean; -1 when that state is
	// no longer reachable.
	clean int

	snapshot atomic.Pointer[ledger.Snapshot]
	logger   *slog.Logger
	observer Observer

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Option configures a Stack.
type Option func(*Stack)

// WithLimit bounds the number of undoable commands; older entries are
// dropped. Zero means unbounded.
func WithLimit(n int) Option {
	return func(s *Stack) {
		s.limit = max(n, 0)
	}
}

// WithCalculator sets the calculator used to validate split leftovers.
func WithCalculator(calc *budget.Calculator) Option {
	return func(s *Stack) {
		if calc != nil {
			s.deps.calc = calc
		}
	}
}

// WithCaseInsensitiveRules makes ApplyRules ignore case.
func WithCaseInsensitiveRules(enabled bool) Option {
	return func(s *Stack) {
		s.deps.caseInsensitive = enabled
	}
}

// WithObserver reports history activity to o.
func WithObserver(o Observer) Option {
	return func(s *Stack) {
		s.observer = o
	}
}

// NewStack takes ownership of store. The caller must not mutate it afterwards.
func NewStack(store *ledger.Store, logger *slog.Logger, opts ...Option) *Stack {
	s := &Stack{
		store:  store,
		deps:   deps{calc: budget.NewCalculator(nil)},
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(store.Snapshot())
	return s
}

// Snapshot returns the latest committed state.
func (s *Stack) Snapshot() *ledger.Snapshot {
	return s.snapshot.Load()
}

// Apply runs cmd and records it. Applying clears the redo history. On error
// nothing changes and nothing is recorded.
func (s *Stack) Apply(cmd Command) error {
	s.mu.Lock()
	start := time.Now()
	kind := kindOf(cmd)

	if err := apply(s.store, s.deps, cmd); err != nil {
		s.mu.Unlock()
		s.failed(kind, "apply", err)
		return err
	}

	if s.clean > len(s.applied) {
		s.clean = -1
	}
	if !s.mergeLocked(cmd) {
		s.applied = append(s.applied, entry{cmd: cmd, generation: s.store.Generation()})
		if s.limit > 0 && len(s.applied) > s.limit {
			drop := len(s.applied) - s.limit
			s.applied = append(s.applied[:0:0], s.applied[drop:]...)
			s.clean -= drop
			if s.clean < 0 {
				s.clean = -1
			}
		}
	}
	s.undone = nil
	ev := s.commitLocked(Applied, cmd)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.CommandApplied(kind, time.Since(start))
	}
	s.logger.Debug("command applied", slog.String("kind", kind), slog.String("label", ev.Label))
	s.publish(ev)
	return nil
}

// mergeLocked folds consecutive leftover edits of the same category and month
// into the top entry, unless the top entry is the saved state.
func (s *Stack) mergeLocked(cmd Command) bool {
	next, ok := cmd.(*SetLeftoverDecision)
	if !ok || len(s.applied) == 0 || s.clean == len(s.applied) {
		return false
	}
	top := &s.applied[len(s.applied)-1]
	prev, ok := top.cmd.(*SetLeftoverDecision)
	if !ok || top.generation+1 != s.store.Generation() {
		return false
	}
	if !prev.mergeWith(next) {
		return false
	}
	prev.categoryName = next.categoryName
	if prev.restoresPrevious() {
		// The merged edit is a no-op: drop it and let the entry below
		// vouch for the current generation, its content being unchanged.
		s.applied = s.applied[:len(s.applied)-1]
		if n := len(s.applied); n > 0 {
			s.applied[n-1].generation = s.store.Generation()
		}
		return true
	}
	top.generation = s.store.Generation()
	return true
}

// Undo reverts the most recent command.
func (s *Stack) Undo() error {
	s.mu.Lock()
	if len(s.applied) == 0 {
		s.mu.Unlock()
		return ErrNothingToUndo
	}
	top := s.applied[len(s.applied)-1]
	kind := kindOf(top.cmd)

	if got := s.store.Generation(); got != top.generation {
		s.mu.Unlock()
		err := ledger.NewIntegrityError("undo "+kind, "store at generation %d, history expects %d", got, top.generation)
		s.failed(kind, "undo", err)
		return err
	}
	if err := revert(s.store, s.deps, top.cmd); err != nil {
		s.resyncLocked()
		s.mu.Unlock()
		s.failed(kind, "undo", err)
		return err
	}

	s.applied = s.applied[:len(s.applied)-1]
	s.undone = append(s.undone, entry{cmd: top.cmd, generation: s.store.Generation()})
	ev := s.commitLocked(Undone, top.cmd)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.CommandUndone(kind)
	}
	s.logger.Debug("command undone", slog.String("kind", kind), slog.String("label", ev.Label))
	s.publish(ev)
	return nil
}

// Redo re-applies the most recently undone command.
func (s *Stack) Redo() error {
	s.mu.Lock()
	if len(s.undone) == 0 {
		s.mu.Unlock()
		return ErrNothingToRedo
	}
	top := s.undone[len(s.undone)-1]
	kind := kindOf(top.cmd)

	if got := s.store.Generation(); got != top.generation {
		s.mu.Unlock()
		err := ledger.NewIntegrityError("redo "+kind, "store at generation %d, history expects %d", got, top.generation)
		s.failed(kind, "redo", err)
		return err
	}
	if err := apply(s.store, s.deps, top.cmd); err != nil {
		s.resyncLocked()
		s.mu.Unlock()
		s.failed(kind, "redo", err)
		return err
	}

	s.undone = s.undone[:len(s.undone)-1]
	s.applied = append(s.applied, entry{cmd: top.cmd, generation: s.store.Generation()})
	ev := s.commitLocked(Redone, top.cmd)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.CommandRedone(kind)
	}
	s.logger.Debug("command redone", slog.String("kind", kind), slog.String("label", ev.Label))
	s.publish(ev)
	return nil
}

// resyncLocked is called after a failed undo or redo. The command restored
// the store's content but the generation moved on, so the entries at the top
// of both lists are pointed at the current generation.
func (s *Stack) resyncLocked() {
	gen := s.store.Generation()
	if n := len(s.applied); n > 0 {
		s.applied[n-1].generation = gen
	}
	if n := len(s.undone); n > 0 {
		s.undone[n-1].generation = gen
	}
	s.snapshot.Store(s.store.Snapshot())
}

func (s *Stack) commitLocked(action Action, cmd Command) Event {
	snap := s.store.Snapshot()
	s.snapshot.Store(snap)
	if s.observer != nil {
		s.observer.HistoryDepth(len(s.applied), len(s.undone))
	}
	return Event{Action: action, Label: cmd.Label(), Snapshot: snap}
}

func (s *Stack) failed(kind, action string, err error) {
	if s.observer != nil {
		s.observer.CommandFailed(kind, action)
	}
	level := slog.LevelWarn
	if errors.Is(err, ErrNoChange) || ledger.IsValidation(err) {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "command failed",
		slog.String("kind", kind),
		slog.String("action", action),
		slog.Any("error", err))
}

// CanUndo reports whether there is a command to undo.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied) > 0
}

// CanRedo reports whether there is a command to redo.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undone) > 0
}

// UndoLabel describes the command Undo would revert, or "".
func (s *Stack) UndoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.applied) == 0 {
		return ""
	}
	return s.applied[len(s.applied)-1].cmd.Label()
}

// RedoLabel describes the command Redo would re-apply, or "".
func (s *Stack) RedoLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undone) == 0 {
		return ""
	}
	return s.undone[len(s.undone)-1].cmd.Label()
}

// Len returns the number of undoable and redoable commands.
func (s *Stack) Len() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied), len(s.undone)
}

// MarkClean records the current state as saved.
func (s *Stack) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clean = len(s.applied)
}

// MarkSaved marks the state of snap as saved if the ledger has not changed
// since snap was taken. It reports whether the mark was set.
func (s *Stack) MarkSaved(snap *ledger.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Generation() != s.store.Generation() {
		return false
	}
	s.clean = len(s.applied)
	return true
}

// IsClean reports whether the ledger matches the last MarkClean.
func (s *Stack) IsClean() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clean == len(s.applied)
}

// Subscribe registers fn to be called after every successful change. The
// returned function unregisters it.
func (s *Stack) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Stack) publish(ev Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
