// Package parser turns bank statement exports (CSV or XLSX) into candidate
// ledger operations. It uses gocsv for struct-based unmarshaling of rows once
// the header row has been mapped onto canonical column names.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/comptine/internal/domain/import/sniffer"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
	"github.com/FACorreiaa/comptine/pkg/money"
)

var (
	// ErrFileEmpty means the file has no data rows after the header.
	ErrFileEmpty = errors.New("file contains no operations")
	// ErrMissingColumns means date, description or amount columns could not be located.
	ErrMissingColumns = errors.New("missing required columns (date, description, and debit/credit/amount)")
)

// operationRow is a data row keyed by canonical column name.
type operationRow struct {
	Date        string `csv:"date"`
	BudgetDate  string `csv:"budget_date"`
	Description string `csv:"description"`
	Category    string `csv:"category"`
	Debit       string `csv:"debit"`
	Credit      string `csv:"credit"`
	Amount      string `csv:"amount"`
}

// ParsedOperation is a candidate operation read from one row.
type ParsedOperation struct {
	Row         int
	Date        time.Time
	BudgetDate  time.Time // zero when the file gives none
	Description string
	Amount      *money.Money // positive is income, negative is expense
	Category    string       // raw category name from the file, if any
}

// ParseError reports a malformed row. Row is the 1-based line in the file.
type ParseError struct {
	Row     int
	Column  string
	Message string
	RawData string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ParseResult contains the rows of one file.
type ParseResult struct {
	Source      string
	Headers     []string
	Columns     Columns
	Fingerprint string
	Dialect     sniffer.Dialect
	Operations  []ParsedOperation
	Errors      []ParseError
	TotalRows   int
	ParsedRows  int
	SkippedRows int
}

// ParserConfig configures the parser.
type ParserConfig struct {
	Delimiter rune   // 0 auto-detects
	SkipLines int    // -1 auto-detects the header row
	Currency  string // currency of parsed amounts
	// DateFormat is tried before the built-in layouts when set.
	DateFormat string
	// Dialect overrides the dialect detected from sample rows when set.
	Dialect *sniffer.Dialect
	// Strict fails the whole parse on the first malformed row.
	Strict bool
}

// DefaultConfig returns a config that detects everything and reads euros.
func DefaultConfig() ParserConfig {
	return ParserConfig{
		SkipLines: -1,
		Currency:  money.EUR,
	}
}

// Parser reads delimited bank exports.
type Parser struct {
	config ParserConfig
}

// NewParser creates a parser with the given configuration.
func NewParser(config ParserConfig) *Parser {
	if config.Currency == "" {
		config.Currency = money.EUR
	}
	return &Parser{config: config}
}

// Parse reads a whole delimited file.
func (p *Parser) Parse(reader io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses an in-memory delimited file.
func (p *Parser) ParseBytes(data []byte) (*ParseResult, error) {
	data = sniffer.Decode(data)

	cfg, err := sniffer.DetectConfigWithOptions(data, &sniffer.DetectOptions{
		HeaderRowIndex: p.config.SkipLines,
		Delimiter:      p.config.Delimiter,
	})
	if err != nil {
		if errors.Is(err, sniffer.ErrEmptyFile) {
			return nil, ErrFileEmpty
		}
		return nil, fmt.Errorf("detect file layout: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	body := strings.Join(lines[cfg.SkipLines+1:], "\n")
	r := csv.NewReader(strings.NewReader(body))
	r.Comma = cfg.Delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records := make([][]string, 0, 256)
	rowNums := make([]int, 0, 256)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record)
		rowNums = append(rowNums, cfg.SkipLines+1+line)
	}

	result, err := p.parseRecords(cfg.Headers, records, rowNums)
	if err != nil {
		return nil, err
	}
	result.Fingerprint = cfg.Fingerprint
	return result, nil
}

// parseRecords maps the header, unmarshals records with gocsv and converts
// each row. rowNums gives the file line of each record.
func (p *Parser) parseRecords(headers []string, records [][]string, rowNums []int) (*ParseResult, error) {
	cols := MapColumns(headers)
	if !cols.Valid() {
		return nil, fmt.Errorf("%w: %s not found among %q", ErrMissingColumns, strings.Join(cols.Missing(), ", "), headers)
	}

	dataRows := make([][]string, 0, len(records))
	lines := make([]int, 0, len(records))
	for i, rec := range records {
		if isBlank(rec) {
			continue
		}
		dataRows = append(dataRows, rec)
		lines = append(lines, rowNums[i])
	}
	if len(dataRows) == 0 {
		return nil, ErrFileEmpty
	}

	var rows []operationRow
	in := &recordReader{header: cols.canonicalHeader(len(headers)), records: dataRows}
	if err := gocsv.UnmarshalCSV(in, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}

	dialect := sniffer.DetectDialect(dataRows, cols.amountColumns(), cols.Date)
	if p.config.Dialect != nil {
		dialect = *p.config.Dialect
	}

	result := &ParseResult{
		Headers:    headers,
		Columns:    cols,
		Dialect:    dialect,
		Operations: make([]ParsedOperation, 0, len(rows)),
		Errors:     make([]ParseError, 0),
		TotalRows:  len(rows),
	}
	for i, row := range rows {
		op, perr := p.convert(row, lines[i], dialect)
		if perr != nil {
			if p.config.Strict {
				return nil, *perr
			}
			result.Errors = append(result.Errors, *perr)
			continue
		}
		result.Operations = append(result.Operations, *op)
		result.ParsedRows++
	}
	result.SkippedRows = len(records) - len(dataRows)
	return result, nil
}

func (p *Parser) convert(row operationRow, rowNum int, dialect sniffer.Dialect) (*ParsedOperation, *ParseError) {
	dateStr := strings.TrimSpace(row.Date)
	date, err := p.parseDate(dateStr, dialect)
	if err != nil {
		return nil, &ParseError{Row: rowNum, Column: colDate, Message: fmt.Sprintf("invalid date: %s", err), RawData: dateStr}
	}

	desc := cleanDescription(row.Description)
	if desc == "" {
		return nil, &ParseError{Row: rowNum, Column: colDescription, Message: "missing description"}
	}

	amount, perr := p.rowAmount(row, rowNum, dialect)
	if perr != nil {
		return nil, perr
	}

	op := &ParsedOperation{
		Row:         rowNum,
		Date:        date,
		Description: desc,
		Amount:      amount,
		Category:    strings.TrimSpace(row.Category),
	}
	if s := strings.TrimSpace(row.BudgetDate); s != "" {
		if bd, err := p.parseDate(s, dialect); err == nil {
			op.BudgetDate = bd
		}
	}
	return op, nil
}

// rowAmount reads the signed amount column, or the debit/credit pair where
// debits are expenses and credits income whatever sign the file uses.
func (p *Parser) rowAmount(row operationRow, rowNum int, dialect sniffer.Dialect) (*money.Money, *ParseError) {
	if s := strings.TrimSpace(row.Amount); s != "" {
		m, err := p.parseAmount(s, dialect)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: colAmount, Message: err.Error(), RawData: s}
		}
		return m, nil
	}
	if s := strings.TrimSpace(row.Debit); s != "" {
		m, err := p.parseAmount(s, dialect)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: colDebit, Message: err.Error(), RawData: s}
		}
		return m.Abs().Negate(), nil
	}
	if s := strings.TrimSpace(row.Credit); s != "" {
		m, err := p.parseAmount(s, dialect)
		if err != nil {
			return nil, &ParseError{Row: rowNum, Column: colCredit, Message: err.Error(), RawData: s}
		}
		return m.Abs(), nil
	}
	return nil, &ParseError{Row: rowNum, Column: colAmount, Message: "no amount found"}
}

// Layouts tried in order, after ParserConfig.DateFormat.
var (
	dayFirstLayouts = []string{
		"02/01/2006",
		"2/1/2006",
		"02-01-2006",
		"02.01.2006",
		"02/01/06",
		"02/01/2006 15:04",
	}
	monthFirstLayouts = []string{
		"01/02/2006",
		"1/2/2006",
		"01-02-2006",
		"01/02/06",
		"01/02/2006 15:04",
	}
	isoLayouts = []string{
		"2006-01-02",
		"2006/01/02",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}
)

func (p *Parser) parseDate(s string, dialect sniffer.Dialect) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if p.config.DateFormat != "" {
		if t, err := time.Parse(p.config.DateFormat, s); err == nil {
			return ledger.TruncateDay(t), nil
		}
	}

	layouts := make([]string, 0, len(isoLayouts)+len(dayFirstLayouts)+len(monthFirstLayouts))
	layouts = append(layouts, isoLayouts...)
	if dialect.DayFirst {
		layouts = append(append(layouts, dayFirstLayouts...), monthFirstLayouts...)
	} else {
		layouts = append(append(layouts, monthFirstLayouts...), dayFirstLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ledger.TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized format: %s", s)
}

// parseAmount accepts French statement formats ("-5 428,69 €", "+45,00")
// as well as dot decimals. An amount whose own separators are unambiguous
// overrides the file dialect.
func (p *Parser) parseAmount(s string, dialect sniffer.Dialect) (*money.Money, error) {
	european := dialect.DecimalComma
	switch sniffer.AmountHint(s) {
	case 1:
		european = true
	case -1:
		european = false
	}
	m, err := money.NewFromString(s, p.config.Currency, european)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return m, nil
}

// cleanDescription trims and collapses runs of whitespace.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// recordReader feeds prepared records to gocsv behind a canonical header.
type recordReader struct {
	header  []string
	records [][]string
	pos     int
}

func (r *recordReader) Read() ([]string, error) {
	if r.pos > len(r.records) {
		return nil, io.EOF
	}
	defer func() { r.pos++ }()
	if r.pos == 0 {
		return r.header, nil
	}
	return r.records[r.pos-1], nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	all := make([][]string, 0, len(r.records)+1)
	all = append(all, r.header)
	all = append(all, r.records...)
	r.pos = len(r.records) + 1
	return all, nil
}

// Detect reports the layout of a delimited file without parsing its rows.
func Detect(data []byte) (*sniffer.FileConfig, Columns, error) {
	cfg, err := sniffer.DetectConfig(sniffer.Decode(data))
	if err != nil {
		return nil, Columns{}, err
	}
	return cfg, MapColumns(cfg.Headers), nil
}
