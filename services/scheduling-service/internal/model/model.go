package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Live statuses are the ones that occupy a slot and participate in
// conflict detection.
func (s AppointmentStatus) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Appointment is one booked consultation. Date carries the calendar day
// (midnight UTC); Time is the canonical zero-padded "HH:MM" wall clock.
type Appointment struct {
	ID              string
	DoctorID        string
	PatientID       string
	ServiceID       string
	Date            time.Time
	Time            string
	DurationMinutes int
	Status          AppointmentStatus
	Reason          string
	Notes           string
	Severity        Severity
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleEntry is a doctor's recurring availability window for one weekday
// (0=Sunday .. 6=Saturday). Start and end are canonical "HH:MM" strings.
type ScheduleEntry struct {
	ID        string
	DoctorID  string
	DayOfWeek int
	StartTime string
	EndTime   string
	IsActive  bool
}

type Service struct {
	ID              string
	DoctorID        string
	Name            string
	Description     string
	Price           float64
	DurationMinutes int
	IsActive        bool
}

type Doctor struct {
	ID    string
	Name  string
	Phone string
}

type Patient struct {
	ID        string
	AccountID string
	Name      string
	Phone     string
}
