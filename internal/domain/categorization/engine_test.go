package categorization

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

func TestRuleEngine_MatchFirst(t *testing.T) {
	groceries := uuid.New()
	transport := uuid.New()

	engine := NewRuleEngine([]ledger.Rule{
		{Prefix: "CB CARREFOUR", CategoryID: groceries},
		{Prefix: "CB SNCF", CategoryID: transport},
	})

	t.Run("matches literal prefix", func(t *testing.T) {
		got, ok := engine.MatchFirst("CB CARREFOUR MARKET 12/03")
		require.True(t, ok)
		assert.Equal(t, groceries, got)
	})

	t.Run("substring elsewhere is not a prefix", func(t *testing.T) {
		_, ok := engine.MatchFirst("PRLV CB CARREFOUR")
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := engine.MatchFirst("VIR SALAIRE")
		assert.False(t, ok)
	})

	t.Run("exact case by default", func(t *testing.T) {
		_, ok := engine.MatchFirst("cb carrefour market")
		assert.False(t, ok)
	})

	t.Run("empty description", func(t *testing.T) {
		_, ok := engine.MatchFirst("")
		assert.False(t, ok)
	})
}

func TestRuleEngine_CaseInsensitive(t *testing.T) {
	cat := uuid.New()
	engine := NewRuleEngine([]ledger.Rule{{Prefix: "Cb Monoprix", CategoryID: cat}}, WithCaseInsensitive(true))

	got, ok := engine.MatchFirst("CB MONOPRIX PARIS")
	require.True(t, ok)
	assert.Equal(t, cat, got)
}

func TestRuleEngine_Precedence(t *testing.T) {
	broad := uuid.New()
	narrow := uuid.New()

	t.Run("first rule in order wins", func(t *testing.T) {
		engine := NewRuleEngine([]ledger.Rule{
			{Prefix: "CB", CategoryID: broad},
			{Prefix: "CB CARREFOUR", CategoryID: narrow},
		})
		m := engine.Match("CB CARREFOUR")
		require.NotNil(t, m)
		assert.Equal(t, 0, m.Index)
		assert.Equal(t, broad, m.CategoryID)
	})

	t.Run("reordering changes the result", func(t *testing.T) {
		engine := NewRuleEngine([]ledger.Rule{
			{Prefix: "CB CARREFOUR", CategoryID: narrow},
			{Prefix: "CB", CategoryID: broad},
		})
		got, ok := engine.MatchFirst("CB CARREFOUR")
		require.True(t, ok)
		assert.Equal(t, narrow, got)

		got, ok = engine.MatchFirst("CB FNAC")
		require.True(t, ok)
		assert.Equal(t, broad, got)
	})

	t.Run("duplicate prefixes keep the earliest", func(t *testing.T) {
		engine := NewRuleEngine([]ledger.Rule{
			{Prefix: "PRLV", CategoryID: narrow},
			{Prefix: "PRLV", CategoryID: broad},
		})
		assert.Equal(t, 2, engine.RuleCount())
		assert.Equal(t, 1, engine.PatternCount())

		m := engine.Match("PRLV EDF")
		require.NotNil(t, m)
		assert.Equal(t, 0, m.Index)
		assert.Equal(t, narrow, m.CategoryID)
	})

	t.Run("empty prefix never matches", func(t *testing.T) {
		engine := NewRuleEngine([]ledger.Rule{{Prefix: "", CategoryID: broad}})
		assert.True(t, engine.IsEmpty())
		_, ok := engine.MatchFirst("ANYTHING")
		assert.False(t, ok)
	})
}

func TestRuleEngine_MatchIsPure(t *testing.T) {
	cat := uuid.New()
	engine := NewRuleEngine([]ledger.Rule{{Prefix: "VIR", CategoryID: cat}})

	first := engine.Match("VIR LOYER")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Match("VIR LOYER"))
	}
}

func TestRuleEngine_MatchBatch(t *testing.T) {
	cat := uuid.New()
	engine := NewRuleEngine([]ledger.Rule{{Prefix: "NETFLIX", CategoryID: cat}})

	results := engine.MatchBatch([]string{"NETFLIX.COM", "SPOTIFY", "NETFLIX"})
	require.Len(t, results, 3)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])

	t.Run("empty engine returns nil entries", func(t *testing.T) {
		empty := NewRuleEngine(nil)
		assert.True(t, empty.IsEmpty())
		assert.Equal(t, []*RuleMatch{nil, nil}, empty.MatchBatch([]string{"A", "B"}))
	})
}

func TestRuleEngine_Rebuild(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	engine := NewRuleEngine([]ledger.Rule{{Prefix: "AMAZON", CategoryID: a}})

	engine.Build([]ledger.Rule{{Prefix: "AMAZON", CategoryID: b}})
	got, ok := engine.MatchFirst("AMAZON PRIME")
	require.True(t, ok)
	assert.Equal(t, b, got)
}

// Benchmark: 1,000 rules with the winner in the middle
func BenchmarkRuleEngine_Match(b *testing.B) {
	rules := make([]ledger.Rule, 1000)
	for i := range rules {
		rules[i] = ledger.Rule{Prefix: fmt.Sprintf("MERCHANT_%d ", i), CategoryID: uuid.New()}
	}
	rules[500] = ledger.Rule{Prefix: "CB REVOLUT", CategoryID: uuid.New()}

	engine := NewRuleEngine(rules)
	input := "CB REVOLUT 27/12/2025 CAR WAL CRT DEB LONDON GB"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Match(input)
	}
}

// Benchmark: naive ordered scan for comparison
func BenchmarkNaiveRuleScan(b *testing.B) {
	prefixes := make([]string, 1000)
	for i := range prefixes {
		prefixes[i] = fmt.Sprintf("MERCHANT_%d ", i)
	}
	prefixes[500] = "CB REVOLUT"
	input := "CB REVOLUT 27/12/2025 CAR WAL CRT DEB LONDON GB"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, p := range prefixes {
			if strings.HasPrefix(input, p) {
				break
			}
		}
	}
}
