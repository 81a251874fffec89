package model

import "time"

// Settings is the single-row cabinet configuration edited from the
// admin area. The allocator treats it as read-only input.
type Settings struct {
	ID                  int64
	WorkStartHour       int
	WorkEndHour         int
	SlotDurationMinutes int
	LunchBreakEnabled   bool
	LunchBreakStart     string // "HH:mm", within working hours
	LunchBreakEnd       string
	GoogleCalendarID    string
	AdminEmail          string
	AppointmentReasons  []string
	UpdatedAt           time.Time
}

// DefaultSettings mirrors the values the cabinet has always opened with.
func DefaultSettings() Settings {
	return Settings{
		WorkStartHour:       9,
		WorkEndHour:         17,
		SlotDurationMinutes: 30,
		LunchBreakEnabled:   true,
		LunchBreakStart:     "12:00",
		LunchBreakEnd:       "14:00",
		GoogleCalendarID:    "primary",
		AppointmentReasons: []string{
			"Consultation générale",
			"Renouvellement ordonnance",
			"Suivi médical",
			"Vaccination",
			"Certificat médical",
			"Autre",
		},
	}
}
