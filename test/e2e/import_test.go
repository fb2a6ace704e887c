// Package e2etest provides end-to-end integration tests for import flows.
package e2etest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/comptine/internal/domain/budget"
	"github.com/FACorreiaa/comptine/internal/domain/history"
	"github.com/FACorreiaa/comptine/internal/domain/import/parser"
	"github.com/FACorreiaa/comptine/internal/domain/import/service"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
	"github.com/FACorreiaa/comptine/pkg/storage"
)

// Real bank exports can be dropped here; they are not committed.
const testDataDir = "testdata/statements"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStatements_FromTestdata checks that every local bank export is
// recognized and parses without losing rows.
func TestStatements_FromTestdata(t *testing.T) {
	entries, err := os.ReadDir(testDataDir)
	if os.IsNotExist(err) || len(entries) == 0 {
		t.Skipf("No statements in %s (add CSV or XLSX exports to run this test)", testDataDir)
	}
	require.NoError(t, err)

	importer := service.NewImporter(discard())
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(testDataDir, entry.Name())
		t.Run(entry.Name(), func(t *testing.T) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)

			if !parser.IsExcel(data) {
				analysis, err := importer.Analyze(data)
				require.NoError(t, err, "Failed to analyze %s", entry.Name())
				assert.True(t, analysis.CanImport, "missing columns: %v", analysis.Missing)

				t.Logf("%s: delimiter=%c, skipLines=%d, decimalComma=%v, dayFirst=%v",
					entry.Name(), analysis.FileConfig.Delimiter, analysis.FileConfig.SkipLines,
					analysis.Dialect.DecimalComma, analysis.Dialect.DayFirst)
			}

			result, err := importer.Parse(context.Background(), entry.Name(), data, parser.DefaultConfig())
			require.NoError(t, err)
			assert.NotEmpty(t, result.Operations, "Expected operations in %s", entry.Name())
			assert.Equal(t, result.TotalRows, result.ParsedRows+len(result.Errors)+result.SkippedRows)

			for _, perr := range result.Errors {
				t.Logf("%s: %v", entry.Name(), perr)
			}
		})
	}
}

const januaryCSV = `Date;Libellé;Montant
03/01/2024;CB CARREFOUR 03/01;-120,00
05/01/2024;PRLV LOYER JANVIER;-900,00
10/01/2024;CB CARREFOUR 10/01;-30,50
28/01/2024;VIR SALAIRE;2 500,00
`

// februaryWorkbook builds an XLSX export with a title row above the header.
func februaryWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Relevé de compte", "", ""},
		{"Date", "Libellé", "Montant"},
		{time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), "CB CARREFOUR 02/02", -210.0},
		{time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), "PRLV LOYER FEVRIER", -900.0},
		{time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), "VIR SALAIRE", 2500.0},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// TestLedger_ImportSaveReload imports a CSV and an XLSX statement as one step,
// saves the ledger, reloads it and checks that budgets are unchanged.
func TestLedger_ImportSaveReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "janvier.csv")
	xlsxPath := filepath.Join(dir, "fevrier.xlsx")
	require.NoError(t, os.WriteFile(csvPath, []byte(januaryCSV), 0o600))
	require.NoError(t, os.WriteFile(xlsxPath, februaryWorkbook(t), 0o600))

	stack := history.NewStack(ledger.NewStore(money.EUR), discard())
	food := history.NewAddCategory("Food", false, money.MustParse("300", money.EUR))
	rent := history.NewAddCategory("Rent", false, money.MustParse("900", money.EUR))
	salary := history.NewAddCategory("Salary", true, money.MustParse("2500", money.EUR))
	for _, cmd := range []history.Command{
		food, rent, salary,
		history.NewAddRule("CB CARREFOUR", food.Category.ID),
		history.NewAddRule("PRLV LOYER", rent.Category.ID),
		history.NewAddRule("VIR SALAIRE", salary.Category.ID),
	} {
		require.NoError(t, stack.Apply(cmd))
	}

	importer := service.NewImporter(discard())
	summary, err := importer.ImportFiles(ctx, stack, []string{csvPath, xlsxPath},
		service.Target{Mode: service.TargetNew, AccountName: "Compte courant"}, service.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Imported)
	assert.Equal(t, 0, summary.Uncategorized)
	assert.True(t, summary.NewAccount)

	jan := ledger.NewMonth(2024, time.January)
	feb := ledger.NewMonth(2024, time.February)
	require.NoError(t, stack.Apply(history.NewSplitLeftover(food.Category.ID, jan,
		money.MustParse("99.50", money.EUR), money.MustParse("50", money.EUR))))

	file, err := storage.NewFileStore(filepath.Join(dir, "ledger.yaml"), money.EUR, discard())
	require.NoError(t, err)
	require.NoError(t, file.Save(ctx, stack.Snapshot(), feb))

	loaded, err := file.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, feb, loaded.Month)

	calc := budget.NewCalculator(budget.ExternalSavings{})
	for _, m := range []ledger.Month{jan, feb} {
		want := calc.Report(stack.Snapshot(), m, feb)
		got := calc.Report(loaded.Store.Snapshot(), m, feb)
		require.Len(t, got.Records, len(want.Records))
		for i := range want.Records {
			assert.Equal(t, want.Records[i].Category, got.Records[i].Category)
			assert.True(t, want.Records[i].Leftover.Equals(got.Records[i].Leftover), "%s %s", m, want.Records[i].Category)
			assert.True(t, want.Records[i].CarriedIn.Equals(got.Records[i].CarriedIn), "%s %s", m, want.Records[i].Category)
		}
	}

	febReport := calc.Report(loaded.Store.Snapshot(), feb, feb)
	foodFeb, ok := febReport.Record(mustCategory(t, loaded.Store.Snapshot(), "Food").ID)
	require.True(t, ok)
	assert.Equal(t, "50.00", foodFeb.CarriedIn.String())
	assert.Equal(t, "-210.00", foodFeb.Spent.String())
	assert.Equal(t, "140.00", foodFeb.Leftover.String())

	t.Run("undo removes both statements", func(t *testing.T) {
		require.NoError(t, stack.Undo())
		require.NoError(t, stack.Undo())
		assert.Equal(t, 0, stack.Snapshot().OperationCount())
		_, ok := stack.Snapshot().AccountByName("Compte courant")
		assert.False(t, ok)

		require.NoError(t, file.Save(ctx, stack.Snapshot(), feb))
		data, err := os.ReadFile(filepath.Join(dir, "ledger.yaml"))
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(data), "operations:"))
	})
}

func mustCategory(t *testing.T, snap *ledger.Snapshot, name string) ledger.Category {
	t.Helper()
	c, ok := snap.CategoryByName(name)
	require.True(t, ok, name)
	return c
}
