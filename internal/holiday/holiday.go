// Package holiday classifies dates against the French public-holiday
// calendar: eight fixed days plus three days tied to Easter Sunday.
package holiday

import (
	"sync"
	"time"
)

type entry struct {
	month time.Month
	day   int
	name  string
}

var (
	mu      sync.Mutex
	byYear  = map[int][]entry{}
	maxMemo = 16
)

// EasterSunday computes Easter Sunday for a Gregorian year using the
// Anonymous Gregorian (Meeus/Jones/Butcher) algorithm.
func EasterSunday(year int) time.Time {
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
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func holidays(year int) []entry {
	mu.Lock()
	defer mu.Unlock()
	if hs, ok := byYear[year]; ok {
		return hs
	}

	easter := EasterSunday(year)
	easterMonday := easter.AddDate(0, 0, 1)
	ascension := easter.AddDate(0, 0, 39)
	whitMonday := easter.AddDate(0, 0, 50)

	hs := []entry{
		{time.January, 1, "Jour de l'An"},
		{time.May, 1, "Fête du Travail"},
		{time.May, 8, "Victoire 1945"},
		{time.July, 14, "Fête Nationale"},
		{time.August, 15, "Assomption"},
		{time.November, 1, "Toussaint"},
		{time.November, 11, "Armistice"},
		{time.December, 25, "Noël"},
		{easterMonday.Month(), easterMonday.Day(), "Lundi de Pâques"},
		{ascension.Month(), ascension.Day(), "Ascension"},
		{whitMonday.Month(), whitMonday.Day(), "Lundi de Pentecôte"},
	}

	if len(byYear) >= maxMemo {
		byYear = map[int][]entry{}
	}
	byYear[year] = hs
	return hs
}

// IsHoliday reports whether the calendar date of t (time of day is
// ignored) is a French public holiday.
func IsHoliday(t time.Time) bool {
	return Name(t) != ""
}

// Name returns the holiday name for the calendar date of t, or "" when
// the date is not a holiday.
func Name(t time.Time) string {
	for _, h := range holidays(t.Year()) {
		if t.Month() == h.month && t.Day() == h.day {
			return h.name
		}
	}
	return ""
}
