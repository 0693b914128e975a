package model

import "time"

// Booking status values. A booking is created confirmed and flips to paid
// exactly once; cancellation removes the row entirely.
const (
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
)

// AppointmentOption is an immutable catalog entry: a treatment with a price
// and the fixed, ordered slot labels it offers on any day.
type AppointmentOption struct {
	ID         string
	Name       string
	PriceCents int64
	Slots      []string
}

type Booking struct {
	ID              string
	PatientName     string
	PatientEmail    string
	Treatment       string
	AppointmentDate time.Time // calendar date, UTC midnight
	Slot            string
	Status          string
	Paid            bool
	TransactionID   string
	CreatedAt       time.Time
}
