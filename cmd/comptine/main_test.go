package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const januaryCSV = `date,description,category,amount
2024-01-03,CB CARREFOUR 03/01,Food,-120.00
2024-01-05,PRLV LOYER,Rent,-900.00
2024-01-10,CB CARREFOUR 10/01,,-30.00
2024-01-28,VIR SALAIRE,,2500.00
`

type result struct {
	stdout, stderr string
	code           int
}

func comptine(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEDGER_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("METRICS_FILE", filepath.Join(dir, "comptine.prom"))

	statement := filepath.Join(dir, "january.csv")
	require.NoError(t, os.WriteFile(statement, []byte(januaryCSV), 0o600))

	t.Run("import creates the ledger file", func(t *testing.T) {
		r := comptine(t, "import", "-account", "Checking", "-use-categories", statement)
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "Checking (new)")
		assert.Contains(t, r.stdout, "imported:       4")
		assert.Contains(t, r.stdout, "new categories: 2")
		assert.FileExists(t, filepath.Join(dir, "ledger.yaml"))
	})

	t.Run("importing the same statement again", func(t *testing.T) {
		r := comptine(t, "import", "-account", "Checking", statement)
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, "nothing to import")
	})

	t.Run("dry run leaves the ledger alone", func(t *testing.T) {
		before, err := os.ReadFile(filepath.Join(dir, "ledger.yaml"))
		require.NoError(t, err)

		r := comptine(t, "import", "-dry-run", "-account", "Savings", statement)
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, `Import 4 operation(s) to new account "Savings"`)

		after, err := os.ReadFile(filepath.Join(dir, "ledger.yaml"))
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after))
	})

	t.Run("rules persist across runs", func(t *testing.T) {
		r := comptine(t, "rules", "add", "CB CARREFOUR", "Food")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, `Add rule for "CB CARREFOUR"`)

		r = comptine(t, "rules")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "CB CARREFOUR")
		assert.Contains(t, r.stdout, "Food")

		r = comptine(t, "rules", "add", "CB CARREFOUR", "Ghost")
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, "not found")
	})

	t.Run("uncategorized applies rules", func(t *testing.T) {
		r := comptine(t, "uncategorized", "-apply")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "Apply rules to 1 operation(s)")
		assert.Contains(t, r.stdout, "VIR SALAIRE")
		assert.NotContains(t, r.stdout, "CB CARREFOUR 10/01")
	})

	t.Run("search", func(t *testing.T) {
		r := comptine(t, "search", "carrefour")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "CB CARREFOUR 03/01")
		assert.Contains(t, r.stdout, "CB CARREFOUR 10/01")

		r = comptine(t, "search", "notaire")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "no match")
	})

	t.Run("categories", func(t *testing.T) {
		r := comptine(t, "categories", "budget", "Food", "300")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, `Change budget limit of "Food"`)
		require.Equal(t, 0, comptine(t, "categories", "budget", "Rent", "900").code)

		r = comptine(t, "categories", "-income", "-budget", "2500", "add", "Salary")
		require.Equal(t, 0, r.code, r.stderr)

		r = comptine(t, "categories", "remove", "Food")
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, "still referenced")

		r = comptine(t, "categories")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "300.00")
		assert.Contains(t, r.stdout, "income")
	})

	t.Run("report and leftover decision", func(t *testing.T) {
		r := comptine(t, "report", "-month", "2024-01", "-current", "2024-02")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "Budget 2024-01 (current 2024-02)")
		assert.Contains(t, r.stdout, "Food")
		assert.Contains(t, r.stdout, "Rent")
		assert.Contains(t, r.stdout, "awaiting a leftover decision: Food")

		r = comptine(t, "leftover", "-month", "2024-01", "Food", "report")
		require.Equal(t, 0, r.code, r.stderr)
		assert.Contains(t, r.stdout, "to report")

		r = comptine(t, "leftover", "-month", "2024-01", "Food", "burn")
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, `unknown decision "burn"`)
	})

	t.Run("report as JSON", func(t *testing.T) {
		r := comptine(t, "report", "-json", "-month", "2024-01", "-current", "2024-02")
		require.Equal(t, 0, r.code, r.stderr)

		var report struct {
			Month   string `json:"month"`
			Records []struct {
				Category string `json:"category"`
				Leftover struct {
					Amount   int64  `json:"amount"`
					Currency string `json:"currency"`
				} `json:"leftover"`
				Decision string `json:"decision"`
			} `json:"records"`
			Pending []string `json:"pending"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &report))
		assert.Equal(t, "2024-01", report.Month)
		assert.Empty(t, report.Pending)

		var found bool
		for _, rec := range report.Records {
			if rec.Category != "Food" {
				continue
			}
			found = true
			assert.Equal(t, int64(15000), rec.Leftover.Amount)
			assert.Equal(t, "EUR", rec.Leftover.Currency)
			assert.Equal(t, "report", rec.Decision)
		}
		assert.True(t, found, "Food is in the report")
	})

	t.Run("metrics file", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "comptine.prom"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "comptine_import_batches_total")
	})

	t.Run("usage", func(t *testing.T) {
		assert.Equal(t, 2, comptine(t).code)
		r := comptine(t, "frobnicate")
		assert.Equal(t, 2, r.code)
		assert.Contains(t, r.stderr, `unknown command "frobnicate"`)
		assert.Contains(t, r.stderr, "uncategorized")
	})
}
