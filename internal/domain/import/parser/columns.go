package parser

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/comptine/internal/domain/import/sniffer"
)

// Canonical column names used as gocsv tags.
const (
	colDate        = "date"
	colBudgetDate  = "budget_date"
	colDescription = "description"
	colCategory    = "category"
	colDebit       = "debit"
	colCredit      = "credit"
	colAmount      = "amount"
)

// Header synonyms in normalized form (see sniffer.NormalizeHeader).
var headerSynonyms = map[string][]string{
	colDate:        {"date", "date de comptabilisation", "date operation", "date d'operation", "date comptable"},
	colBudgetDate:  {"date budget", "budget date"},
	colDescription: {"libelle simplifie", "libelle", "libelle operation", "description", "label", "operation", "memo", "payee"},
	colCategory:    {"sous categorie ce", "sous categorie", "sub-category", "subcategory", "categorie ce", "categorie", "category"},
	colDebit:       {"debit", "debit euros", "debit eur"},
	colCredit:      {"credit", "credit euros", "credit eur"},
	colAmount:      {"montant", "amount", "montant eur", "montant euros"},
}

// Columns holds the detected column index of each field, -1 when absent.
type Columns struct {
	Date        int
	BudgetDate  int
	Description int
	Category    int
	Debit       int
	Credit      int
	Amount      int
}

// Valid reports whether a date, a description and an amount-bearing column were found.
func (c Columns) Valid() bool {
	return c.Date >= 0 && c.Description >= 0 && (c.Amount >= 0 || c.Debit >= 0 || c.Credit >= 0)
}

// Missing names the required fields that were not found.
func (c Columns) Missing() []string {
	var missing []string
	if c.Date < 0 {
		missing = append(missing, colDate)
	}
	if c.Description < 0 {
		missing = append(missing, colDescription)
	}
	if c.Amount < 0 && c.Debit < 0 && c.Credit < 0 {
		missing = append(missing, "amount or debit/credit")
	}
	return missing
}

// MapColumns locates fields in a header row. Matching ignores case and
// accents. The first matching column wins, except for the category where the
// last (most specific) one does.
func MapColumns(headers []string) Columns {
	cols := Columns{Date: -1, BudgetDate: -1, Description: -1, Category: -1, Debit: -1, Credit: -1, Amount: -1}
	for i, h := range headers {
		switch fieldOf(sniffer.NormalizeHeader(h)) {
		case colDate:
			if cols.Date < 0 {
				cols.Date = i
			}
		case colBudgetDate:
			if cols.BudgetDate < 0 {
				cols.BudgetDate = i
			}
		case colDescription:
			if cols.Description < 0 {
				cols.Description = i
			}
		case colCategory:
			cols.Category = i
		case colDebit:
			if cols.Debit < 0 {
				cols.Debit = i
			}
		case colCredit:
			if cols.Credit < 0 {
				cols.Credit = i
			}
		case colAmount:
			if cols.Amount < 0 {
				cols.Amount = i
			}
		}
	}
	return cols
}

func fieldOf(normalized string) string {
	for field, synonyms := range headerSynonyms {
		for _, s := range synonyms {
			if normalized == s {
				return field
			}
		}
	}
	return ""
}

// canonicalHeader renames the selected columns to their gocsv tags. Other
// columns get names no struct field carries, so they are ignored.
func (c Columns) canonicalHeader(width int) []string {
	header := make([]string, width)
	for i := range header {
		header[i] = fmt.Sprintf("_%d", i)
	}
	set := func(idx int, name string) {
		if idx >= 0 && idx < width {
			header[idx] = name
		}
	}
	set(c.Date, colDate)
	set(c.BudgetDate, colBudgetDate)
	set(c.Description, colDescription)
	set(c.Category, colCategory)
	set(c.Debit, colDebit)
	set(c.Credit, colCredit)
	set(c.Amount, colAmount)
	return header
}

func (c Columns) amountColumns() []int {
	return []int{c.Amount, c.Debit, c.Credit}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.Trim(f, " \t\"") != "" {
			return false
		}
	}
	return true
}
