package refclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIsLeapYear(t *testing.T) {
	assert.True(t, IsLeapYear(2000))
	assert.False(t, IsLeapYear(1900))
	assert.True(t, IsLeapYear(2024))
	assert.False(t, IsLeapYear(2023))
}

func TestYeardayMonthDayRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(1, 9999).Draw(t, "year")
		leap := IsLeapYear(year)
		maxDay := 365
		if leap {
			maxDay = 366
		}
		yearday := rapid.IntRange(1, maxDay).Draw(t, "yearday")

		month, day := YeardayToMonthDay(yearday, leap)
		assert.GreaterOrEqual(t, month, 1)
		assert.LessOrEqual(t, month, 12)

		back := MonthDayToYearday(month, day, leap)
		assert.Equal(t, yearday, back)
	})
}

func TestCalendarFromYearday(t *testing.T) {
	cal := CalendarFromYearday(2024, 153)
	assert.EqualValues(t, 2024, cal.Year)
	assert.EqualValues(t, 153, cal.YearDay)
	assert.EqualValues(t, 6, cal.Month)
	assert.EqualValues(t, 1, cal.MonthDay)
}

func TestDaysFromCivil_EpochIsZero(t *testing.T) {
	assert.EqualValues(t, 0, daysFromCivil(1970, 1, 1))
}

func TestDaysFromCivil_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := int64(rapid.IntRange(1, 9999).Draw(t, "year"))
		yday := rapid.IntRange(1, 365).Draw(t, "yday")

		d1 := daysFromCivil(year, 1, 1) + int64(yday-1)
		d2 := daysFromCivil(year, 1, 1) + int64(yday)
		assert.Less(t, d1, d2)
	})
}
