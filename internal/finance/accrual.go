// Package finance implements the pure calculations behind the convertible-note
// ledger: interest accrual, conversion pricing, and qualified-financing checks.
// Functions here have no side effects and no I/O; all monetary arithmetic uses
// shopspring decimals.
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Compounding selects the interest convention for a note.
type Compounding string

const (
	CompoundingSimple   Compounding = "SIMPLE"
	CompoundingCompound Compounding = "COMPOUND"
)

// Valid reports whether c is a known compounding convention.
func (c Compounding) Valid() bool {
	return c == CompoundingSimple || c == CompoundingCompound
}

// The ledger uses the actual/365 day count for both conventions. Leap years
// and market conventions like 30/360 are intentionally not modeled.
var daysPerYear = decimal.NewFromInt(365)

var one = decimal.NewFromInt(1)

// DaysBetween returns the number of whole days elapsed from from to to.
// Returns 0 when to is not after from.
func DaysBetween(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / (24 * time.Hour))
}

// Accrue computes the interest earned on principal at the given annualized
// rate between from and to. SIMPLE is linear in elapsed days; COMPOUND
// compounds daily. The result is zero when no whole day has elapsed and is
// never negative for valid inputs.
func Accrue(principal, annualRate decimal.Decimal, from, to time.Time, compounding Compounding) decimal.Decimal {
	days := DaysBetween(from, to)
	if days <= 0 || principal.Sign() <= 0 || annualRate.Sign() <= 0 {
		return decimal.Zero
	}

	switch compounding {
	case CompoundingCompound:
		// principal * ((1 + rate/365)^days - 1)
		dailyFactor := one.Add(annualRate.Div(daysPerYear))
		growth := dailyFactor.Pow(decimal.NewFromInt(days)).Sub(one)
		return principal.Mul(growth)
	default:
		// principal * rate * days/365
		return principal.Mul(annualRate).Mul(decimal.NewFromInt(days)).Div(daysPerYear)
	}
}
