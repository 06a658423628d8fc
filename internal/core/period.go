package core

import (
	"fmt"
	"time"
)

// Period identifies a budgeting month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"` // 1-12
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < 1900 || p.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// Next returns the following month, rolling December into January of the next year.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Days returns the number of days in the month.
func (p Period) Days() int {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay maps a day-of-month onto this period, so day 31 lands on the last day of shorter months.
func (p Period) ClampDay(day int) int {
	if last := p.Days(); day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
