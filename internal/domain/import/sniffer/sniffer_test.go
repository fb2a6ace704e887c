package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConfig(t *testing.T) {
	t.Run("finds the header below metadata lines", func(t *testing.T) {
		data := []byte("Compte courant;0123456789\nSolde;1 234,56\n\nDate;Libellé;Débit euros;Crédit euros\n15/01/2024;CB CARREFOUR;12,50;\n")

		cfg, err := DetectConfig(data)

		require.NoError(t, err)
		assert.Equal(t, ';', cfg.Delimiter)
		assert.Equal(t, 3, cfg.SkipLines)
		assert.Equal(t, []string{"Date", "Libellé", "Débit euros", "Crédit euros"}, cfg.Headers)
		require.Len(t, cfg.SampleRows, 1)
		assert.Equal(t, "CB CARREFOUR", cfg.SampleRows[0][1])
	})

	t.Run("ignores delimiters inside quotes", func(t *testing.T) {
		cfg, err := DetectConfig([]byte("\"date\",\"description; long\",\"amount\"\n"))
		require.NoError(t, err)
		assert.Equal(t, ',', cfg.Delimiter)
	})

	t.Run("honors overrides", func(t *testing.T) {
		data := []byte("a;b;c\nDate|Memo|Amount\n")
		cfg, err := DetectConfigWithOptions(data, &DetectOptions{HeaderRowIndex: 1, Delimiter: '|'})
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.SkipLines)
		assert.Equal(t, []string{"Date", "Memo", "Amount"}, cfg.Headers)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := DetectConfig([]byte("\n \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("no header", func(t *testing.T) {
		_, err := DetectConfig([]byte("just some text\nwithout separators\n"))
		assert.ErrorIs(t, err, ErrNoHeadersFound)
	})
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"Date", "Libellé", "Montant"})
	b := Fingerprint([]string{" date ", "LIBELLE", "montant"})
	c := Fingerprint([]string{"Date", "Montant", "Libellé"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "Libellé", string(Decode([]byte("\xef\xbb\xbfLibellé"))))
	assert.Equal(t, "Libellé", string(Decode([]byte("Libell\xe9"))))
	assert.Equal(t, "€", string(Decode([]byte{0x80})))
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "libelle simplifie", NormalizeHeader("  Libellé   Simplifié "))
	assert.Equal(t, "debit euros", NormalizeHeader("Débit euros"))
}

func TestAmountHint(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"-45,20", 1},
		{"1.234,56", 1},
		{"1,234.56", -1},
		{"-4.50", -1},
		{"1.234.567", 1},
		{"1,234", 0},
		{"12", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AmountHint(tt.in))
		})
	}
}

func TestDetectDialect(t *testing.T) {
	t.Run("defaults to french", func(t *testing.T) {
		assert.Equal(t, FrenchDialect, DetectDialect(nil, []int{1}, 0))
	})

	t.Run("votes on samples", func(t *testing.T) {
		rows := [][]string{
			{"01/31/2024", "-4.50"},
			{"02/01/2024", "1,200.00"},
			{"02/03/2024", "12"},
		}
		d := DetectDialect(rows, []int{1, -1}, 0)
		assert.False(t, d.DecimalComma)
		assert.False(t, d.DayFirst)
	})

	t.Run("day first when the first field exceeds twelve", func(t *testing.T) {
		rows := [][]string{{"15/01/2024", "-4,50"}}
		assert.Equal(t, FrenchDialect, DetectDialect(rows, []int{1}, 0))
	})
}
