package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	Proleptic Gregorian calendar conversions shared by every
 *		station: turning a yearday into month/day (and back), and
 *		turning an NTP second count into a full Calendar.
 *
 *----------------------------------------------------------------*/

// Calendar is a decoded wall-clock date. YearDay, Month, and MonthDay are
// all 1-based.
type Calendar struct {
	Year     uint16
	YearDay  uint16
	Month    uint8
	MonthDay uint8
}

// IsLeapYear applies the proleptic Gregorian 400/100/4-year rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// monthLengthPrefix[i] is the number of days in a non-leap year before
// month i+1 begins (so monthLengthPrefix[0]==0, ..., monthLengthPrefix[12]==365).
var monthLengthPrefix = [13]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 365}

// YeardayToMonthDay converts a 1-based day-of-year to (month, monthday)
// using the Dershowitz-Reingold integer transform from spec section 4.2.
func YeardayToMonthDay(yearday int, leap bool) (month, day int) {
	l := 0
	if leap {
		l = 1
	}
	yd := yearday - 1 // the transform works on a 0-based day index
	scaled := yd*7 + 217
	if yd >= 59+l {
		scaled += (2 - l) * 7
	}
	month = scaled / 214
	day = (scaled%214)/7 + 1
	return month, day
}

// MonthDayToYearday is the inverse of YeardayToMonthDay: the length-13
// prefix-sum table plus the leap-day adjustment for months after February.
func MonthDayToYearday(month, day int, leap bool) int {
	yearday := monthLengthPrefix[month-1] + day
	if leap && month > 2 {
		yearday++
	}
	return yearday
}

// CalendarFromYearday builds a full Calendar from a year and day-of-year.
func CalendarFromYearday(year, yearday int) Calendar {
	month, day := YeardayToMonthDay(yearday, IsLeapYear(year))
	return Calendar{
		Year:     uint16(year),
		YearDay:  uint16(yearday),
		Month:    uint8(month),
		MonthDay: uint8(day),
	}
}

// CalendarFromYMD builds a full Calendar from a year/month/day.
func CalendarFromYMD(year, month, day int) Calendar {
	return Calendar{
		Year:     uint16(year),
		YearDay:  uint16(MonthDayToYearday(month, day, IsLeapYear(year))),
		Month:    uint8(month),
		MonthDay: uint8(day),
	}
}

// floorDiv gives floor (round toward minus infinity) division that behaves for
// negative numerators the way Howard Hinnant's days_from_civil /
// civil_from_days algorithm (the basis of JulianDayNumber below) needs.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// daysFromCivil converts a proleptic-Gregorian (y, m, d) to a day count
// relative to the Unix epoch (1970-01-01), valid for any year representable
// in int64. Algorithm: Hinnant, "chrono-Compatible Low-Level Date Algorithms".
func daysFromCivil(y, m, d int64) int64 {
	if m <= 2 {
		y--
	}
	var era int64
	if y >= 0 {
		era = y / 400
	} else {
		era = (y - 399) / 400
	}
	yoe := y - era*400 // [0, 399]
	var mp int64
	if m > 2 {
		mp = m - 3
	} else {
		mp = m + 9
	}
	doy := (153*mp+2)/5 + d - 1                    // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy          // [0, 146096]
	return era*146097 + doe - 719468
}

// civilFromDays is the inverse of daysFromCivil.
func civilFromDays(z int64) (y, m, d int64) {
	z += 719468
	var era int64
	if z >= 0 {
		era = z / 146097
	} else {
		era = floorDiv(z, 146097)
	}
	doe := z - era*146097                                       // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365       // [0, 399]
	y = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100) // [0, 365]
	mp := (5*doy + 2) / 153                  // [0, 11]
	d = doy - (153*mp+2)/5 + 1                // [1, 31]
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return y, m, d
}

// julianDayEpochOffset is the Julian Day Number of the Unix epoch,
// 1970-01-01 00:00 UTC.
const julianDayEpochOffset = 2440588

// JulianDayNumber returns the (noon-based) Julian day number for a
// proleptic-Gregorian calendar date. Exact and invertible by
// CalendarFromJulianDayNumber for 1 AD <= year <= 9999, per spec section 8.
func JulianDayNumber(year, month, day int) int64 {
	return daysFromCivil(int64(year), int64(month), int64(day)) + julianDayEpochOffset
}

// CalendarFromJulianDayNumber is the inverse of JulianDayNumber.
func CalendarFromJulianDayNumber(jdn int64) Calendar {
	y, m, d := civilFromDays(jdn - julianDayEpochOffset)
	return CalendarFromYMD(int(y), int(m), int(d))
}

// ntpEpochDays is the day count of the NTP epoch, 1900-01-01 00:00 UTC,
// relative to the Unix epoch (negative, since 1900 precedes 1970).
var ntpEpochDays = daysFromCivil(1900, 1, 1)

// SecondsPerDay is the number of seconds in a day, used throughout the
// calendar and second-of-minute bookkeeping.
const SecondsPerDay = 86400

// CalendarFromNTPSeconds converts a count of seconds since the NTP epoch
// (1900-01-01 00:00:00 UTC, wrapping mod 2^32 like Timestamp.Sec) to a
// full Calendar, per spec section 4.2.
func CalendarFromNTPSeconds(sec uint32) Calendar {
	day := int64(sec) / SecondsPerDay
	y, m, d := civilFromDays(ntpEpochDays + day)
	return CalendarFromYMD(int(y), int(m), int(d))
}

// SecondOfDay returns the number of seconds past midnight represented by
// an NTP second count.
func SecondOfDay(sec uint32) int {
	return int(int64(sec) % SecondsPerDay)
}
