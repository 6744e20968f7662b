package rbac

import "github.com/shopspring/decimal"

// Budget variance severity thresholds, as a fraction of the estimate
var (
	VarianceHighThreshold   = decimal.RequireFromString("0.20")
	VarianceMediumThreshold = decimal.RequireFromString("0.10")
)

// Variance severities
const (
	SeverityNone   = "NONE"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// VarianceSeverity grades an overrun of actual over estimated. Underruns
// and zero estimates with no spend are NONE; spend against a zero estimate
// is HIGH.
func VarianceSeverity(estimated, actual decimal.Decimal) string {
	over := actual.Sub(estimated)
	if !over.IsPositive() {
		return SeverityNone
	}
	if !estimated.IsPositive() {
		return SeverityHigh
	}
	ratio := over.Div(estimated)
	switch {
	case ratio.GreaterThan(VarianceHighThreshold):
		return SeverityHigh
	case ratio.GreaterThan(VarianceMediumThreshold):
		return SeverityMedium
	default:
		return SeverityNone
	}
}
