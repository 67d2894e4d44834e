package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleMonths(t *testing.T) {
	assert.Equal(t, 0, OneTime.Months())
	assert.Equal(t, 1, Monthly.Months())
	assert.Equal(t, 3, Quarterly.Months())
	assert.Equal(t, 6, SemiAnnual.Months())
	assert.Equal(t, 12, Annual.Months())
}

func TestAddCycle_Basic(t *testing.T) {
	assert.Equal(t, date(2025, time.February, 15), AddCycle(date(2025, time.January, 15), Monthly, 1))
	assert.Equal(t, date(2025, time.April, 15), AddCycle(date(2025, time.January, 15), Quarterly, 1))
	assert.Equal(t, date(2025, time.July, 15), AddCycle(date(2025, time.January, 15), SemiAnnual, 1))
	assert.Equal(t, date(2026, time.January, 15), AddCycle(date(2025, time.January, 15), Annual, 1))
}

func TestAddCycle_OneTime(t *testing.T) {
	start := date(2025, time.March, 10)
	assert.Equal(t, start, AddCycle(start, OneTime, 1))
	assert.Equal(t, start, EndDate(start, OneTime))
}

func TestAddCycle_ClampsToShorterMonth(t *testing.T) {
	// Jan 31 + 1 month lands on the last day of February, not March 3.
	assert.Equal(t, date(2025, time.February, 28), AddCycle(date(2025, time.January, 31), Monthly, 1))
	assert.Equal(t, date(2024, time.February, 29), AddCycle(date(2024, time.January, 31), Monthly, 1))
	assert.Equal(t, date(2025, time.April, 30), AddCycle(date(2025, time.March, 31), Monthly, 1))
}

func TestAddCycle_ClampDoesNotDrift(t *testing.T) {
	// End-of-January start: Feb clamps to 28, but March keeps the 31st day
	// when computed from the original date in one addition.
	end := EndDate(date(2025, time.January, 31), Monthly)
	assert.Equal(t, date(2025, time.February, 28), end)

	next := NextBillingDate(end, Monthly)
	assert.Equal(t, date(2025, time.March, 28), next)

	// A single two-month jump from the anchor date preserves the 31st.
	assert.Equal(t, date(2025, time.March, 31), AddCycle(date(2025, time.January, 31), Monthly, 2))
}

func TestAddCycle_YearBoundary(t *testing.T) {
	assert.Equal(t, date(2026, time.January, 15), AddCycle(date(2025, time.December, 15), Monthly, 1))
	assert.Equal(t, date(2026, time.February, 28), AddCycle(date(2025, time.November, 30), Quarterly, 1))
}

func TestAddCycle_LeapYear(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), AddCycle(date(2023, time.November, 30), Quarterly, 1))
	assert.Equal(t, date(2025, time.February, 28), AddCycle(date(2024, time.February, 29), Annual, 1))
}

func TestComposedAdditionsMatchSingleJump(t *testing.T) {
	// n sequential EndDate/NextBillingDate steps equal one AddCycle by n,
	// modulo day clamping, for mid-month anchors where no clamping occurs.
	for _, c := range []Cycle{Monthly, Quarterly, SemiAnnual, Annual} {
		start := date(2024, time.May, 15)
		stepped := start
		for i := 0; i < 4; i++ {
			stepped = AddCycle(stepped, c, 1)
		}
		assert.Equal(t, AddCycle(start, c, 4), stepped, "cycle %s", c)
	}
}

func TestAddCycle_DiscardsTimeOfDay(t *testing.T) {
	at := time.Date(2025, time.June, 3, 17, 45, 12, 0, time.UTC)
	assert.Equal(t, date(2025, time.July, 3), AddCycle(at, Monthly, 1))
}
