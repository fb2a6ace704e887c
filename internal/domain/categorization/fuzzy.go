package categorization

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// Suggestion is a candidate category for an uncategorized description.
type Suggestion struct {
	CategoryID uuid.UUID
	Score      int    // Similarity score (higher = better match, max 100)
	Distance   int    // Levenshtein distance to Example (lower = closer)
	Example    string // The categorized description that produced the score
	FromRule   bool   // True when a rule, not history, proposed the category
}

// Suggester ranks categories for a description by comparing it with the
// descriptions of operations that are already categorized. It catches the
// statement variations rules miss, like "CB CARREFOUR 12/03" vs "CB CARFOUR 15/04".
type Suggester struct {
	examples []example
	mu       sync.RWMutex
}

type example struct {
	normalized string
	original   string
	categoryID uuid.UUID
}

// NewSuggester learns from the categorized operations in ops.
func NewSuggester(ops []ledger.Operation) *Suggester {
	s := &Suggester{}
	s.Build(ops)
	return s
}

// Build replaces the learned examples. Only operations assigned to a single
// category are used; splits say nothing about a description's category.
func (s *Suggester) Build(ops []ledger.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	s.examples = make([]example, 0, len(ops))
	for _, op := range ops {
		catID := op.CategoryID()
		if catID == nil {
			continue
		}
		normalized := normalizeDescription(op.Description)
		if normalized == "" {
			continue
		}
		key := normalized + "\x00" + catID.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		s.examples = append(s.examples, example{
			normalized: normalized,
			original:   op.Description,
			categoryID: *catID,
		})
	}
}

// Suggest returns at most limit categories scoring at least threshold (0-100),
// best first. Each category appears once with its best example.
func (s *Suggester) Suggest(description string, threshold, limit int) []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := normalizeDescription(description)
	if normalized == "" || len(s.examples) == 0 {
		return nil
	}

	best := make(map[uuid.UUID]int) // category -> index in results
	results := make([]Suggestion, 0)
	order := make([]int, 0) // first-seen example index per result, for stable ties

	for i, ex := range s.examples {
		score := fuzzyScore(normalized, ex.normalized)
		if score < threshold {
			continue
		}
		candidate := Suggestion{
			CategoryID: ex.categoryID,
			Score:      score,
			Distance:   levenshtein.ComputeDistance(normalized, ex.normalized),
			Example:    ex.original,
		}
		if idx, ok := best[ex.categoryID]; ok {
			if better(candidate, results[idx]) {
				results[idx] = candidate
			}
			continue
		}
		best[ex.categoryID] = len(results)
		results = append(results, candidate)
		order = append(order, i)
	}

	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := results[idx[a]], results[idx[b]]
		if ra.Score != rb.Score || ra.Distance != rb.Distance {
			return better(ra, rb)
		}
		return order[idx[a]] < order[idx[b]]
	})

	sorted := make([]Suggestion, 0, len(results))
	for _, i := range idx {
		sorted = append(sorted, results[i])
	}
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// Best returns the top suggestion, or nil when nothing reaches threshold.
func (s *Suggester) Best(description string, threshold int) *Suggestion {
	results := s.Suggest(description, threshold, 1)
	if len(results) == 0 {
		return nil
	}
	return &results[0]
}

// GroupSimilar groups descriptions that look like the same payee so they can be
// categorized together. Groups keep input order; the first member is the
// canonical form.
func (s *Suggester) GroupSimilar(descriptions []string, threshold int) [][]string {
	groups := make([][]string, 0)
	assigned := make([]bool, len(descriptions))

	for i, desc := range descriptions {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []string{desc}
		canonical := normalizeDescription(desc)

		for j := i + 1; j < len(descriptions); j++ {
			if assigned[j] {
				continue
			}
			if fuzzyScore(canonical, normalizeDescription(descriptions[j])) >= threshold {
				group = append(group, descriptions[j])
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// ExampleCount returns the number of distinct learned examples.
func (s *Suggester) ExampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

func better(a, b Suggestion) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Distance < b.Distance
}

// normalizeDescription uppercases a statement label and drops the tokens
// carrying digits (dates, card numbers, references).
func normalizeDescription(desc string) string {
	fields := strings.Fields(strings.ToUpper(desc))
	kept := fields[:0]
	for _, f := range fields {
		if strings.IndexFunc(f, unicode.IsDigit) >= 0 {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// fuzzyScore calculates a similarity score between two strings (0-100).
// Uses containment, Levenshtein distance and subsequence ranking, keeping the best.
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}

	// One contains the other (common for payee variations)
	if strings.Contains(s1, s2) {
		return 75 + (25 * len(s2) / len(s1))
	}
	if strings.Contains(s2, s1) {
		return 75 + (25 * len(s1) / len(s2))
	}

	maxLen := max(len(s1), len(s2))
	distance := levenshtein.ComputeDistance(s1, s2)
	levenshteinScore := 100 * (maxLen - min(distance, maxLen)) / maxLen

	// RankMatch is the distance when s2 is a subsequence of s1
	subsequenceScore := 0
	if rank := fuzzy.RankMatch(s2, s1); rank >= 0 && rank < len(s1) {
		subsequenceScore = 60 - (rank * 40 / len(s1))
	}

	return max(levenshteinScore, subsequenceScore)
}
