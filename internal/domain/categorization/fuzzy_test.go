package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

func categorizedOp(desc string, categoryID uuid.UUID) ledger.Operation {
	op := ledger.NewOperation(uuid.New(), ledger.Date(2024, 1, 2), desc, money.MustParse("-10", money.EUR))
	op.Allocations = ledger.Categorized(categoryID, op.Total)
	return op
}

func TestSuggester_Suggest(t *testing.T) {
	groceries := uuid.New()
	utilities := uuid.New()

	suggester := NewSuggester([]ledger.Operation{
		categorizedOp("CB CARREFOUR 12/03", groceries),
		categorizedOp("CB CARREFOUR 19/03", groceries),
		categorizedOp("PRLV EDF 2024-03", utilities),
		ledger.NewOperation(uuid.New(), ledger.Date(2024, 1, 2), "UNCATEGORIZED", money.MustParse("-1", money.EUR)),
	})

	assert.Equal(t, 2, suggester.ExampleCount())

	t.Run("same payee with a different date", func(t *testing.T) {
		best := suggester.Best("CB CARREFOUR 15/04", 70)
		require.NotNil(t, best)
		assert.Equal(t, groceries, best.CategoryID)
		assert.Equal(t, 100, best.Score)
		assert.Equal(t, 0, best.Distance)
	})

	t.Run("typo", func(t *testing.T) {
		best := suggester.Best("CB CARFOUR 15/04", 70)
		require.NotNil(t, best)
		assert.Equal(t, groceries, best.CategoryID)
		assert.Less(t, best.Score, 100)
	})

	t.Run("case insensitive", func(t *testing.T) {
		best := suggester.Best("prlv edf", 70)
		require.NotNil(t, best)
		assert.Equal(t, utilities, best.CategoryID)
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		assert.Nil(t, suggester.Best("VIR SALAIRE", 70))
	})

	t.Run("results are sorted and unique per category", func(t *testing.T) {
		results := suggester.Suggest("CB CARREFOUR", 0, 0)
		require.NotEmpty(t, results)
		seen := map[uuid.UUID]bool{}
		for i, r := range results {
			assert.False(t, seen[r.CategoryID])
			seen[r.CategoryID] = true
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
	})

	t.Run("limit", func(t *testing.T) {
		assert.Len(t, suggester.Suggest("CB CARREFOUR", 0, 1), 1)
	})
}

func TestSuggester_SkipsSplits(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	op := ledger.NewOperation(uuid.New(), ledger.Date(2024, 1, 2), "AMAZON", money.MustParse("-10", money.EUR))
	op.Allocations = []ledger.Allocation{
		ledger.Categorized(a, money.MustParse("-4", money.EUR))[0],
		ledger.Categorized(b, money.MustParse("-6", money.EUR))[0],
	}

	suggester := NewSuggester([]ledger.Operation{op})
	assert.Equal(t, 0, suggester.ExampleCount())
	assert.Nil(t, suggester.Best("AMAZON", 0))
}

func TestSuggester_GroupSimilar(t *testing.T) {
	s := NewSuggester(nil)

	groups := s.GroupSimilar([]string{
		"CB CARREFOUR 01/02",
		"PRLV EDF",
		"CB CARREFOUR 03/02",
	}, 90)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"CB CARREFOUR 01/02", "CB CARREFOUR 03/02"}, groups[0])
	assert.Equal(t, []string{"PRLV EDF"}, groups[1])
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"CB CARREFOUR 12/03", "CB CARREFOUR"},
		{"  prlv  sepa  EDF ", "PRLV SEPA EDF"},
		{"VIR 123456", "VIR"},
		{"2024", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeDescription(tt.input))
		})
	}
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 100, fuzzyScore("EDF", "EDF"))
	assert.Equal(t, 0, fuzzyScore("", "EDF"))
	assert.GreaterOrEqual(t, fuzzyScore("CB CARREFOUR MARKET", "CB CARREFOUR"), 75)
	assert.Less(t, fuzzyScore("VIR SALAIRE", "CB CARREFOUR"), 50)
}
