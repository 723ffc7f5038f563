package model

import (
	"fmt"
	"time"
)

// BillingPeriod is a calendar-month invoicing window, rendered as "YYYY-MM".
type BillingPeriod struct {
	Year  int
	Month time.Month
}

// ParseBillingPeriod parses a "YYYY-MM" string.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return BillingPeriod{}, &ValidationError{Field: "billing_period", Reason: fmt.Sprintf("must be YYYY-MM, got %q", s)}
	}
	return BillingPeriod{Year: t.Year(), Month: t.Month()}, nil
}

// PreviousBillingPeriod returns the last fully completed calendar month as of now.
func PreviousBillingPeriod(now time.Time) BillingPeriod {
	prev := now.UTC().AddDate(0, -1, -now.UTC().Day()+1)
	return BillingPeriod{Year: prev.Year(), Month: prev.Month()}
}

func (p BillingPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Start returns the inclusive UTC start of the period.
func (p BillingPeriod) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive UTC end of the period (start of the next month).
func (p BillingPeriod) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// IsZero reports whether the period is unset.
func (p BillingPeriod) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}
