package model

import (
	"fmt"
	"time"
)

// ValidationError reports malformed input rejected at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InvalidRangeError reports an inverted time range on a usage query.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: start %s is after end %s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// NotFoundError reports an unknown tenant, plan, or record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError reports an attempt to duplicate a completed billing record.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

// ProviderError carries a payment provider failure code, and the card-network
// decline code when the provider reported one.
type ProviderError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *ProviderError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("provider error %s (decline %s): %s", e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// TimeoutError reports a provider call that exceeded its deadline. The outcome
// is indeterminate: the provider-side effect may still have occurred, which is
// what reconciliation exists to resolve.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}
