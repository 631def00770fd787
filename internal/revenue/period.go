package revenue

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RevenuePeriod is the reduction of the payments in one closed window.
// Values are returned by copy and never modified after construction.
type RevenuePeriod struct {
	TotalRevenue     decimal.Decimal
	NewSubscriptions int64
	Renewals         int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	// SkippedRecords counts malformed records that were left out.
	SkippedRecords int64
}

var hundred = decimal.NewFromInt(100)

// PercentChange is the relative revenue change between two periods. When the
// previous period had no revenue there is no baseline and Defined is false.
type PercentChange struct {
	Value   decimal.Decimal
	Defined bool
}

// ComputePercentChange returns (current - previous) / previous * 100, or an
// undefined change when previous.TotalRevenue is zero.
func ComputePercentChange(current, previous RevenuePeriod) PercentChange {
	if previous.TotalRevenue.IsZero() {
		return PercentChange{}
	}
	v := current.TotalRevenue.Sub(previous.TotalRevenue).
		Div(previous.TotalRevenue).
		Mul(hundred)
	return PercentChange{Value: v, Defined: true}
}

// Float returns the change as a float64 and whether it is defined.
func (c PercentChange) Float() (float64, bool) {
	if !c.Defined {
		return 0, false
	}
	return c.Value.InexactFloat64(), true
}

// MarshalJSON writes null for an undefined change.
func (c PercentChange) MarshalJSON() ([]byte, error) {
	if !c.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value.Round(2).InexactFloat64())
}

// Comparison pairs two periods with their percent change.
type Comparison struct {
	Current  RevenuePeriod
	Previous RevenuePeriod
	Change   PercentChange
}

// Compare builds a Comparison.
func Compare(current, previous RevenuePeriod) Comparison {
	return Comparison{
		Current:  current,
		Previous: previous,
		Change:   ComputePercentChange(current, previous),
	}
}
