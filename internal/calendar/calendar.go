// Package calendar computes US business-day offsets used to size
// historical data requests.
package calendar

import "time"

// IsBusinessDay reports whether t falls on a weekday that is not a US
// federal holiday (observed date).
func IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !IsHoliday(t)
}

// AddBusinessDays moves t by n business days. A negative n moves back.
// The time of day is preserved.
func AddBusinessDays(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		t = t.AddDate(0, 0, step)
		if IsBusinessDay(t) {
			n--
		}
	}
	return t
}

// IsHoliday reports whether t is an observed US federal holiday.
func IsHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range Holidays(y) {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == d {
			return true
		}
	}
	// New Year's Day of the following year observed on Dec 31.
	if m == time.December && d == 31 {
		ny := observed(date(y+1, time.January, 1))
		return ny.Year() == y
	}
	return false
}

// Holidays returns the observed federal holidays for year y.
func Holidays(y int) []time.Time {
	hs := []time.Time{
		observed(date(y, time.January, 1)),
		nthWeekday(y, time.January, time.Monday, 3),
		nthWeekday(y, time.February, time.Monday, 3),
		lastWeekday(y, time.May, time.Monday),
		observed(date(y, time.July, 4)),
		nthWeekday(y, time.September, time.Monday, 1),
		nthWeekday(y, time.October, time.Monday, 2),
		observed(date(y, time.November, 11)),
		nthWeekday(y, time.November, time.Thursday, 4),
		observed(date(y, time.December, 25)),
	}
	if y >= 2021 {
		hs = append(hs, observed(date(y, time.June, 19)))
	}
	return hs
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed shifts Saturday holidays to Friday and Sunday holidays to Monday.
func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	t := date(y, m, 1)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	t := date(y, m+1, 1).AddDate(0, 0, -1)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, -1)
	}
	return t
}
