package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func day(offset int) time.Time {
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestRefund_ThirtyDayCycle(t *testing.T) {
	// amount=100, 30-day period, cancelled on day 10: 100 * 20/30 = 66.67.
	refund := Refund(decimal.NewFromInt(100), day(0), day(30), day(10))
	assert.Equal(t, "66.67", refund.StringFixed(2))
}

func TestRefund_FirstDay(t *testing.T) {
	refund := Refund(decimal.NewFromInt(100), day(0), day(30), day(0))
	assert.Equal(t, "100.00", refund.StringFixed(2))
}

func TestRefund_FullyUsedPeriod(t *testing.T) {
	assert.True(t, Refund(decimal.NewFromInt(100), day(0), day(30), day(30)).IsZero())
	assert.True(t, Refund(decimal.NewFromInt(100), day(0), day(30), day(45)).IsZero())
}

func TestRefund_CancellationBeforeStartClampsToZeroUsed(t *testing.T) {
	refund := Refund(decimal.NewFromInt(90), day(5), day(35), day(0))
	assert.Equal(t, "90.00", refund.StringFixed(2))
}

func TestRefund_DegeneratePeriod(t *testing.T) {
	// One-time subscriptions have start == end; nothing to prorate.
	assert.True(t, Refund(decimal.NewFromInt(100), day(0), day(0), day(0)).IsZero())
}

func TestRefund_RoundsToMinorUnits(t *testing.T) {
	// 50 * 1/3 = 16.666... rounds to 16.67.
	refund := Refund(decimal.NewFromInt(50), day(0), day(3), day(2))
	assert.Equal(t, "16.67", refund.StringFixed(2))
}

func TestRefund_IgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2025, time.March, 11, 23, 50, 0, 0, time.UTC)
	refund := Refund(decimal.NewFromInt(100), day(0), day(30), late)
	assert.Equal(t, "66.67", refund.StringFixed(2))
}
