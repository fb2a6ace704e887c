package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// RuleMatch is the rule that assigned a category to a description.
type RuleMatch struct {
	Index      int       // Position of the rule in priority order
	Prefix     string    // The rule prefix as stored
	CategoryID uuid.UUID // The category to assign
}

// RuleEngine matches descriptions against an ordered rule list. The first rule
// whose prefix starts the description wins.
//
// Prefixes are loaded into an Aho-Corasick automaton so a single pass over the
// description yields every candidate rule regardless of how many rules exist.
// Candidates are then confirmed as true prefixes and the lowest index is kept.
type RuleEngine struct {
	matcher  *ahocorasick.Matcher
	patterns []string // Unique (folded) prefixes in matcher order
	owners   [][]int  // Rule indices per pattern, ascending
	rules    []ledger.Rule
	foldCase bool
	mu       sync.RWMutex
}

// EngineOption configures a RuleEngine.
type EngineOption func(*RuleEngine)

// WithCaseInsensitive makes prefix comparison ignore letter case.
func WithCaseInsensitive(enabled bool) EngineOption {
	return func(e *RuleEngine) {
		e.foldCase = enabled
	}
}

// NewRuleEngine builds an engine from rules in priority order.
func NewRuleEngine(rules []ledger.Rule, opts ...EngineOption) *RuleEngine {
	e := &RuleEngine{}
	for _, opt := range opts {
		opt(e)
	}
	e.Build(rules)
	return e
}

// Build replaces the rule set. Duplicate prefixes share one automaton pattern
// and remember every rule index that uses them.
func (e *RuleEngine) Build(rules []ledger.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = append([]ledger.Rule(nil), rules...)
	e.matcher, e.patterns, e.owners = nil, nil, nil
	if len(rules) == 0 {
		return
	}

	patternToIndex := make(map[string]int, len(rules))
	for i, rule := range rules {
		// An empty prefix never matches
		if rule.Prefix == "" {
			continue
		}
		pattern := e.fold(rule.Prefix)
		if idx, exists := patternToIndex[pattern]; exists {
			e.owners[idx] = append(e.owners[idx], i)
			continue
		}
		patternToIndex[pattern] = len(e.patterns)
		e.patterns = append(e.patterns, pattern)
		e.owners = append(e.owners, []int{i})
	}

	if len(e.patterns) == 0 {
		return
	}
	bytePatterns := make([][]byte, len(e.patterns))
	for i, p := range e.patterns {
		bytePatterns[i] = []byte(p)
	}
	e.matcher = ahocorasick.NewMatcher(bytePatterns)
}

// MatchFirst returns the category of the first rule matching description.
func (e *RuleEngine) MatchFirst(description string) (uuid.UUID, bool) {
	m := e.Match(description)
	if m == nil {
		return uuid.Nil, false
	}
	return m.CategoryID, true
}

// Match returns the winning rule for description, or nil.
func (e *RuleEngine) Match(description string) *RuleMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.match(description)
}

// MatchBatch matches many descriptions under a single read lock.
func (e *RuleEngine) MatchBatch(descriptions []string) []*RuleMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*RuleMatch, len(descriptions))
	if e.matcher == nil {
		return results
	}
	for i, desc := range descriptions {
		results[i] = e.match(desc)
	}
	return results
}

func (e *RuleEngine) match(description string) *RuleMatch {
	if e.matcher == nil || description == "" {
		return nil
	}

	text := e.fold(description)
	hits := e.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return nil
	}

	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.patterns) {
			continue
		}
		if !strings.HasPrefix(text, e.patterns[idx]) {
			continue
		}
		// owners are ascending, so the first one is the highest priority
		if first := e.owners[idx][0]; best < 0 || first < best {
			best = first
		}
	}
	if best < 0 {
		return nil
	}

	rule := e.rules[best]
	return &RuleMatch{Index: best, Prefix: rule.Prefix, CategoryID: rule.CategoryID}
}

func (e *RuleEngine) fold(s string) string {
	if e.foldCase {
		return strings.ToLower(s)
	}
	return s
}

// RuleCount returns the number of rules the engine was built from.
func (e *RuleEngine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// PatternCount returns the number of distinct prefixes in the automaton.
func (e *RuleEngine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty returns true if no rule can ever match.
func (e *RuleEngine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}
