package finance

import "github.com/shopspring/decimal"

// IsQualified reports whether a financing round of roundAmount crosses the
// note's qualified-financing threshold. A nil threshold means the note never
// auto-qualifies and requires explicit manual conversion.
func IsQualified(threshold *decimal.Decimal, roundAmount decimal.Decimal) bool {
	if threshold == nil {
		return false
	}
	return roundAmount.GreaterThanOrEqual(*threshold)
}
