package booking

import "errors"

// Sentinel errors of the booking lifecycle. Handlers translate them
// into HTTP statuses and patient-facing French messages; anything not
// listed here is an internal failure and must not leak verbatim.
var (
	ErrMissingFields    = errors.New("required contact fields are empty")
	ErrInvalidDateTime  = errors.New("invalid date or time")
	ErrPastSlot         = errors.New("cannot book a past slot")
	ErrBeyondHorizon    = errors.New("bookings limited to 3 months ahead")
	ErrSlotTaken        = errors.New("slot no longer available")
	ErrNotFound         = errors.New("appointment not found")
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
	ErrPastAppointment  = errors.New("cannot cancel a past appointment")
	ErrNoticePeriod     = errors.New("cancellation requires at least 24h notice")
	ErrStorage          = errors.New("storage failure")
)
