package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/careslot/careslot/services/scheduling-service/internal/model"
	"github.com/careslot/careslot/services/scheduling-service/internal/outbox"
)

// Store is the narrow persistence surface the scheduling pipeline needs.
// *storage.Repository implements it; tests substitute an in-memory fake.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	DoctorByPhone(ctx context.Context, phone string) (model.Doctor, error)
	PatientByID(ctx context.Context, id string) (model.Patient, error)

	ServiceByID(ctx context.Context, tx pgx.Tx, id string) (model.Service, error)
	ServiceByName(ctx context.Context, tx pgx.Tx, doctorID, name string, durationMinutes int) (model.Service, error)
	DefaultService(ctx context.Context, tx pgx.Tx, doctorID string, durationMinutes int) (model.Service, error)

	ScheduleFor(ctx context.Context, doctorID string, dayOfWeek int) (model.ScheduleEntry, bool, error)

	HasLiveAppointment(ctx context.Context, tx pgx.Tx, doctorID string, date time.Time, hhmm, excludeID string) (bool, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	AppointmentForUpdate(ctx context.Context, tx pgx.Tx, doctorID, appointmentID string) (model.Appointment, error)
	AppointmentOwner(ctx context.Context, tx pgx.Tx, appointmentID string) (string, error)
	Reschedule(ctx context.Context, tx pgx.Tx, appointmentID string, date time.Time, hhmm string) error
	CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, appointmentID string, status model.AppointmentStatus) error

	LiveTimesForDay(ctx context.Context, doctorID string, date time.Time) ([]string, error)
	ListByDoctor(ctx context.Context, doctorID string, limit int) ([]model.Appointment, error)
}

// EventSink records a lifecycle event inside the caller's transaction.
// *outbox.Repository implements it.
type EventSink interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}
