package types

import (
	"fmt"
	"regexp"
	"time"
)

var monthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Month is a calendar month in UTC, written YYYY-MM on the wire and in storage.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a strict YYYY-MM string.
func ParseMonth(value string) (Month, error) {
	if !monthRe.MatchString(value) {
		return Month{}, fmt.Errorf("month %q must use the YYYY-MM format", value)
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", value, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the UTC calendar month containing t.
func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// AddMonths returns the month n months after m (n may be negative).
func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}
