package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestPrefix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"card payment with date and reference", "CB CARREFOUR 12/01 4521", "CB CARREFOUR"},
		{"direct debit with mandate", "PRLV SEPA EDF SA ECH/150124 MDT/123", "PRLV SEPA EDF SA"},
		{"transfer with remitter", "VIR SEPA RECU /DE ACME SAS", "VIR SEPA RECU"},
		{"channel alone is not a prefix", "CB 1234 CARREFOUR", ""},
		{"plain label", "Salary", "Salary"},
		{"starts with a number", "12/01 CARREFOUR", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestPrefix(tt.input))
		})
	}
}

func TestPrefixSuggester_Suggest(t *testing.T) {
	s := NewPrefixSuggester()

	tests := []struct {
		name         string
		input        string
		wantMerchant string
		wantCategory string
	}{
		{"carrefour card payment", "CB CARREFOUR MARKET 12/01 4521", "Carrefour", "Alimentation"},
		{"uber eats before uber", "CB UBER * EATS 03/02", "Uber Eats", "Restaurants"},
		{"uber ride", "CB UBER TRIP 03/02", "Uber", "Transport"},
		{"utility direct debit", "PRLV SEPA EDF SA", "EDF", "Logement"},
		{"card number removed", "PAIEMENT PAR CARTE X1234 BOULANGERIE DUPONT", "Boulangerie Dupont", ""},
		{"unknown merchant title cased", "CB LA BELLE EPOQUE 14/03 998877", "La Belle Epoque", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Suggest(tt.input)
			assert.Equal(t, tt.input, got.Description)
			assert.Equal(t, tt.wantMerchant, got.Merchant)
			assert.Equal(t, tt.wantCategory, got.Category)
		})
	}
}

func TestPrefixSuggester_AddPattern(t *testing.T) {
	s := NewPrefixSuggester()
	require.NoError(t, s.AddPattern(`(?i)BOULANGERIE`, "Boulangerie", "Alimentation"))
	assert.Error(t, s.AddPattern(`(`, "broken", ""))

	got := s.Suggest("CB BOULANGERIE DUPONT 02/03")
	assert.Equal(t, "Boulangerie", got.Merchant)
	assert.Equal(t, "CB BOULANGERIE DUPONT", got.Prefix)
}

func TestPrefixSuggester_Group(t *testing.T) {
	groups := NewPrefixSuggester().Group([]string{
		"CB CARREFOUR 12/01 4521",
		"CB CARREFOUR 19/01 4521",
		"PRLV SEPA EDF SA ECH/150124",
		"12/01",
	})
	assert.Len(t, groups, 2)
	assert.Len(t, groups["CB CARREFOUR"], 2)
	assert.Len(t, groups["PRLV SEPA EDF SA"], 1)
}
