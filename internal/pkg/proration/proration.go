// Package proration computes the refundable share of a billing period on
// cancellation, based on elapsed versus total days.
package proration

import (
	"time"

	"github.com/shopspring/decimal"
)

// minorUnitPlaces is the rounding precision for refund amounts. All supported
// currencies use two minor-unit decimal places.
const minorUnitPlaces = 2

// Refund returns the prorated refund for cancelling at `today` a period that
// runs from start to end and was paid with amount. The unused share is
// (totalDays - usedDays) / totalDays, rounded to minor-unit precision.
// Periods shorter than one day and fully used periods refund zero.
func Refund(amount decimal.Decimal, start, end, today time.Time) decimal.Decimal {
	totalDays := daysBetween(start, end)
	if totalDays < 1 {
		return decimal.Zero
	}

	usedDays := daysBetween(start, today)
	if usedDays < 0 {
		usedDays = 0
	}
	if usedDays >= totalDays {
		return decimal.Zero
	}

	unused := decimal.NewFromInt(totalDays - usedDays)
	total := decimal.NewFromInt(totalDays)

	return amount.Mul(unused).Div(total).Round(minorUnitPlaces)
}

func daysBetween(from, to time.Time) int64 {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int64(toDay.Sub(fromDay).Hours() / 24)
}
