package holiday

import (
	"testing"
	"time"
)

func TestEasterSunday(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		day   int
	}{
		{2024, time.March, 31},
		{2025, time.April, 20},
		{2026, time.April, 5},
		{2000, time.April, 23},
	}
	for _, tc := range cases {
		got := EasterSunday(tc.year)
		if got.Month() != tc.month || got.Day() != tc.day {
			t.Errorf("EasterSunday(%d) = %s, want %s %d", tc.year, got.Format("2006-01-02"), tc.month, tc.day)
		}
	}
}

func TestEasterMonday2024(t *testing.T) {
	d := time.Date(2024, time.April, 1, 15, 30, 0, 0, time.UTC)
	if !IsHoliday(d) {
		t.Fatal("April 1 2024 (Easter Monday) should be a holiday")
	}
	if name := Name(d); name != "Lundi de Pâques" {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestFixedHolidays(t *testing.T) {
	fixed := map[string]string{
		"2026-01-01": "Jour de l'An",
		"2026-05-01": "Fête du Travail",
		"2026-05-08": "Victoire 1945",
		"2026-07-14": "Fête Nationale",
		"2026-08-15": "Assomption",
		"2026-11-01": "Toussaint",
		"2026-11-11": "Armistice",
		"2026-12-25": "Noël",
	}
	for date, want := range fixed {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			t.Fatalf("bad fixture %q: %v", date, err)
		}
		if got := Name(d); got != want {
			t.Errorf("Name(%s) = %q, want %q", date, got, want)
		}
	}
}

func TestOrdinaryDayIsNotHoliday(t *testing.T) {
	d := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	if IsHoliday(d) {
		t.Fatalf("March 10 2026 should not be a holiday (got %q)", Name(d))
	}
}

func TestTimeOfDayIgnored(t *testing.T) {
	morning := time.Date(2026, time.December, 25, 8, 0, 0, 0, time.UTC)
	night := time.Date(2026, time.December, 25, 23, 59, 59, 0, time.UTC)
	if !IsHoliday(morning) || !IsHoliday(night) {
		t.Fatal("holiday classification must ignore time of day")
	}
}
