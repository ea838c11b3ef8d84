package quotes

import (
	"strings"
	"time"
)

// LastNTradingDays returns the last n NYSE trading days up to and including from's
// date (most recent first).
func LastNTradingDays(n int, from time.Time) []time.Time {
	out := make([]time.Time, 0, n)
	d := truncateToDate(from)

	for len(out) < n {
		if IsTradingDay(d) {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

// LastSession returns the most recent session date for symbol on or before from.
// Crypto pairs (symbols containing "-") trade every calendar day.
func LastSession(symbol string, from time.Time) time.Time {
	if isCryptoPair(symbol) {
		return truncateToDate(from)
	}
	return LastNTradingDays(1, from)[0]
}

func isCryptoPair(symbol string) bool {
	return strings.Contains(symbol, "-")
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTradingDay returns true if date is a regular NYSE session.
// It excludes Saturdays, Sundays, and full-day exchange holidays.
func IsTradingDay(d time.Time) bool {
	d = truncateToDate(d)

	// Weekend
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	_, holiday := holidays(d.Year())[d]
	return !holiday
}

// holidays lists the observed NYSE full-day closures for a year.
func holidays(year int) map[time.Time]struct{} {
	out := make(map[time.Time]struct{}, 10)
	add := func(t time.Time) { out[t] = struct{}{} }

	// Fixed-date holidays move to Friday when on Saturday and to Monday when on Sunday.
	// New Year's Day on a Saturday is not observed on the prior Friday.
	if ny := date(year, time.January, 1); ny.Weekday() == time.Sunday {
		add(ny.AddDate(0, 0, 1))
	} else if ny.Weekday() != time.Saturday {
		add(ny)
	}
	if year >= 2022 {
		add(observed(date(year, time.June, 19))) // Juneteenth
	}
	add(observed(date(year, time.July, 4)))       // Independence Day
	add(observed(date(year, time.December, 25)))  // Christmas

	add(nthWeekday(year, time.January, time.Monday, 3))    // Martin Luther King Jr. Day
	add(nthWeekday(year, time.February, time.Monday, 3))   // Washington's Birthday
	add(lastWeekday(year, time.May, time.Monday))          // Memorial Day
	add(nthWeekday(year, time.September, time.Monday, 1))  // Labor Day
	add(nthWeekday(year, time.November, time.Thursday, 4)) // Thanksgiving

	// Good Friday (2 days before Easter)
	add(easterSunday(year).AddDate(0, 0, -2))

	return out
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := date(year, month, 1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := date(year, month+1, 1).AddDate(0, 0, -1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// easterSunday returns the date of Easter Sunday for a given year
// (Meeus/Jones/Butcher algorithm).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return date(year, time.Month(month), day)
}
