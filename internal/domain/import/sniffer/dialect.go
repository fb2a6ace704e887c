package sniffer

import "strings"

// Dialect is the regional formatting of dates and amounts in a file.
type Dialect struct {
	// DecimalComma is true for "1.234,56" style amounts.
	DecimalComma bool
	// DayFirst is true for dd/MM/yyyy dates.
	DayFirst bool
}

// FrenchDialect is assumed when samples are inconclusive.
var FrenchDialect = Dialect{DecimalComma: true, DayFirst: true}

// DetectDialect votes over sample amount and date cells. Columns are indices
// into each row; -1 skips the column.
func DetectDialect(rows [][]string, amountCols []int, dateCol int) Dialect {
	d := FrenchDialect
	comma, dot := 0, 0
	dayFirst, monthFirst := 0, 0

	for _, row := range rows {
		for _, col := range amountCols {
			if col < 0 || col >= len(row) {
				continue
			}
			switch AmountHint(row[col]) {
			case 1:
				comma++
			case -1:
				dot++
			}
		}
		if dateCol >= 0 && dateCol < len(row) {
			switch dateHint(row[dateCol]) {
			case 1:
				dayFirst++
			case -1:
				monthFirst++
			}
		}
	}

	if dot > comma {
		d.DecimalComma = false
	}
	if monthFirst > dayFirst {
		d.DayFirst = false
	}
	return d
}

// AmountHint returns 1 when the decimal separator of s is a comma, -1 when it
// is a dot, 0 when s does not tell.
func AmountHint(s string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, s)

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return 1
		}
		return -1
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
	case lastDot >= 0:
		if strings.Count(cleaned, ".") == 1 {
			return -1
		}
		return 1
	}
	return 0
}

// dateHint returns 1 when the first field of a separated date can only be a
// day, -1 when the second field can only be a day.
func dateHint(s string) int {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 || len(parts[0]) == 4 {
		return 0
	}
	first, second := atoi(parts[0]), atoi(parts[1])
	switch {
	case first > 12 && first <= 31:
		return 1
	case second > 12 && second <= 31:
		return -1
	}
	return 0
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}
