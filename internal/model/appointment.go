package model

import "time"

const (
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

type Appointment struct {
	ID                string
	StartTime         time.Time
	EndTime           time.Time
	PatientName       string
	PatientEmail      string
	PatientPhone      string
	Reason            string
	GoogleEventID     *string
	CancellationToken string
	Status            string
	ReminderSent      bool
	CreatedAt         time.Time
}

// Projection is the restricted view returned for token lookups. It
// carries only the bearer's own appointment fields.
type Projection struct {
	ID           string
	PatientName  string
	PatientEmail string
	StartTime    time.Time
	EndTime      time.Time
	Reason       string
	Status       string
}
