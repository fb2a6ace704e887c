package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/comptine/pkg/money"
)

// ErrNoSheet means the workbook has no worksheet to read.
var ErrNoSheet = errors.New("no suitable sheet found")

// headerScanRows bounds the search for the header row in a sheet.
const headerScanRows = 20

// floatNoise is the largest gap between a numeric cell and its rounding to
// the currency scale that is still read as binary float residue.
var floatNoise = decimal.New(1, -9)

// ExcelParser parses XLSX statement exports. Rows go through the same
// pipeline as delimited files once the header row has been located.
type ExcelParser struct {
	csv *Parser
}

// NewExcelParser creates a new Excel parser.
func NewExcelParser(config ParserConfig) *ExcelParser {
	return &ExcelParser{csv: NewParser(config)}
}

// ParseExcel reads the operations sheet of a workbook.
func (p *ExcelParser) ParseExcel(reader io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(reader, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheetName := findOperationSheet(f)
	if sheetName == "" {
		return nil, ErrNoSheet
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create row iterator: %w", err)
	}
	defer rows.Close()

	var all [][]string
	for rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
		}
		all = append(all, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}
	if len(all) == 0 {
		return nil, ErrFileEmpty
	}

	headerRow := p.headerRow(all)
	headers := make([]string, len(all[headerRow]))
	for i, h := range all[headerRow] {
		headers[i] = strings.TrimSpace(h)
	}
	cols := MapColumns(headers)

	records := all[headerRow+1:]
	rowNums := make([]int, len(records))
	for i, rec := range records {
		rowNums[i] = headerRow + i + 2
		convertSerialDate(rec, cols.Date)
		convertSerialDate(rec, cols.BudgetDate)
		scale := money.Scale(p.csv.config.Currency)
		for _, col := range []int{cols.Amount, cols.Debit, cols.Credit} {
			roundFloatAmount(rec, col, scale)
		}
	}

	result, err := p.csv.parseRecords(headers, records, rowNums)
	if err != nil {
		return nil, err
	}
	result.Source = sheetName
	return result, nil
}

// headerRow returns the configured header row, or the first row within the
// scan window that names the required columns.
func (p *ExcelParser) headerRow(rows [][]string) int {
	if skip := p.csv.config.SkipLines; skip >= 0 && skip < len(rows) {
		return skip
	}
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if MapColumns(rows[i]).Valid() {
			return i
		}
	}
	return 0
}

// findOperationSheet prefers sheets with statement-like names, then the first one.
func findOperationSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}

	preferred := []string{"operations", "opérations", "transactions", "releve", "relevé", "statement", "sheet1", "feuil1"}
	for _, name := range preferred {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, name) {
				return sheet
			}
		}
	}
	return sheets[0]
}

// convertSerialDate rewrites a numeric date cell as an ISO date.
func convertSerialDate(row []string, col int) {
	if col < 0 || col >= len(row) {
		return
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return
	}
	row[col] = t.Format("2006-01-02")
}

// roundFloatAmount snaps a numeric cell such as "-30.499999999999996" to the
// currency scale. Cells that really carry more precision are left for the
// amount parser to reject.
func roundFloatAmount(row []string, col int, scale int32) {
	if col < 0 || col >= len(row) {
		return
	}
	d, err := decimal.NewFromString(strings.TrimSpace(row[col]))
	if err != nil {
		return
	}
	rounded := d.Round(scale)
	if d.Sub(rounded).Abs().LessThanOrEqual(floatNoise) {
		row[col] = rounded.StringFixed(scale)
	}
}

// IsExcel reports whether data starts with the ZIP signature of an XLSX workbook.
func IsExcel(data []byte) bool {
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 3 && data[3] == 4
}
