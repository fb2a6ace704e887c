package categorization

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// DefaultSuggestThreshold is the minimum fuzzy score for a suggestion.
const DefaultSuggestThreshold = 70

// Assignment is a category a rule would give to an uncategorized operation.
type Assignment struct {
	OperationID uuid.UUID
	CategoryID  uuid.UUID
	RuleIndex   int
}

// Service drives categorization over ledger snapshots: rule matching, the
// categorize-one-by-one workflow and suggestions. Engines are rebuilt only when
// a different snapshot is passed in.
type Service struct {
	logger   *slog.Logger
	engineOp []EngineOption

	cacheMu   sync.RWMutex
	cachedFor *ledger.Snapshot
	engine    *RuleEngine
	suggester *Suggester
}

// NewService creates a categorization service.
func NewService(logger *slog.Logger, caseInsensitive bool) *Service {
	return &Service{
		logger:   logger,
		engineOp: []EngineOption{WithCaseInsensitive(caseInsensitive)},
	}
}

// Engine returns a rule engine built from the rules of snap.
func (s *Service) Engine(snap *ledger.Snapshot) *RuleEngine {
	engine, _ := s.load(snap)
	return engine
}

// Categorize returns the category the first matching rule assigns to description.
func (s *Service) Categorize(snap *ledger.Snapshot, description string) (uuid.UUID, bool) {
	return s.Engine(snap).MatchFirst(description)
}

// Uncategorized lists operations still waiting for a category, by date.
func (s *Service) Uncategorized(snap *ledger.Snapshot) []ledger.Operation {
	return snap.UncategorizedOperations()
}

// PlanRules returns the assignments rules would make to uncategorized operations.
func (s *Service) PlanRules(snap *ledger.Snapshot) []Assignment {
	ops := snap.UncategorizedOperations()
	if len(ops) == 0 {
		return nil
	}

	descriptions := make([]string, len(ops))
	for i, op := range ops {
		descriptions[i] = op.Description
	}

	matches := s.Engine(snap).MatchBatch(descriptions)
	assignments := make([]Assignment, 0, len(ops))
	for i, m := range matches {
		if m == nil {
			continue
		}
		assignments = append(assignments, Assignment{
			OperationID: ops[i].ID,
			CategoryID:  m.CategoryID,
			RuleIndex:   m.Index,
		})
	}

	s.logger.Debug("planned rule assignments",
		slog.Int("uncategorized", len(ops)),
		slog.Int("matched", len(assignments)))
	return assignments
}

// Suggest proposes categories for an operation: the matching rule first, then
// categories of similar descriptions already in the ledger.
func (s *Service) Suggest(snap *ledger.Snapshot, operationID uuid.UUID, limit int) ([]Suggestion, error) {
	op, ok := snap.Operation(operationID)
	if !ok {
		return nil, fmt.Errorf("suggest for operation %s: %w", operationID, ledger.ErrNotFound)
	}
	return s.SuggestDescription(snap, op.Description, limit), nil
}

// SuggestDescription is Suggest for a description that is not in the ledger
// yet, such as an import row.
func (s *Service) SuggestDescription(snap *ledger.Snapshot, description string, limit int) []Suggestion {
	engine, suggester := s.load(snap)
	suggestions := make([]Suggestion, 0, max(limit, 1))

	if m := engine.Match(description); m != nil {
		suggestions = append(suggestions, Suggestion{
			CategoryID: m.CategoryID,
			Score:      100,
			Example:    m.Prefix,
			FromRule:   true,
		})
	}

	for _, sug := range suggester.Suggest(description, DefaultSuggestThreshold, 0) {
		if len(suggestions) > 0 && suggestions[0].FromRule && suggestions[0].CategoryID == sug.CategoryID {
			continue
		}
		suggestions = append(suggestions, sug)
	}

	if limit > 0 && limit < len(suggestions) {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

func (s *Service) load(snap *ledger.Snapshot) (*RuleEngine, *Suggester) {
	s.cacheMu.RLock()
	if s.cachedFor == snap && s.engine != nil {
		engine, suggester := s.engine, s.suggester
		s.cacheMu.RUnlock()
		return engine, suggester
	}
	s.cacheMu.RUnlock()

	engine := NewRuleEngine(snap.Rules(), s.engineOp...)
	suggester := NewSuggester(snap.Operations())

	s.cacheMu.Lock()
	s.cachedFor, s.engine, s.suggester = snap, engine, suggester
	s.cacheMu.Unlock()

	s.logger.Debug("categorization engine rebuilt",
		slog.Uint64("generation", snap.Generation()),
		slog.Int("rules", engine.RuleCount()),
		slog.Int("examples", suggester.ExampleCount()))
	return engine, suggester
}
