package ledger

import (
	"fmt"
	"time"
)

// Month identifies a budget month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// NewMonth builds a Month, normalizing out-of-range months (13 -> January next year).
func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// ParseMonth parses the YYYY-MM form produced by String.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) Next() Month { return NewMonth(m.Year, m.Month+1) }
func (m Month) Prev() Month { return NewMonth(m.Year, m.Month-1) }

// Compare returns -1, 0 or 1.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year, m.Year == o.Year && m.Month < o.Month:
		return -1
	case m == o:
		return 0
	}
	return 1
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }
func (m Month) After(o Month) bool  { return m.Compare(o) > 0 }

// IsZero reports whether m is the zero Month.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Date returns a calendar date at midnight UTC. Operation dates carry no time of day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the time of day, keeping the calendar date as seen in t's location.
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return Date(t.Year(), t.Month(), t.Day())
}
