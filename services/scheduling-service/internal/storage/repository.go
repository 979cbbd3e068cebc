package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/services/scheduling-service/internal/model"
)

// DefaultServiceName is auto-provisioned for bookings that reference no service.
const DefaultServiceName = "General Consultation"

// liveSlotConstraint is the partial unique index over (doctor_id, date, time)
// restricted to live statuses. It is the source of truth for the
// one-live-appointment-per-slot invariant; the advisory read in the handler
// only exists to produce a friendly 409 in the common case.
const liveSlotConstraint = "appointments_live_slot_key"

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) DoctorByPhone(ctx context.Context, phone string) (model.Doctor, error) {
	var d model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone
		FROM doctors
		WHERE phone = $1
	`, phone).Scan(&d.ID, &d.Name, &d.Phone)
	if err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

// PatientByID resolves a patient by its own id first, then by the owning
// account reference, so callers may pass either.
func (r *Repository) PatientByID(ctx context.Context, id string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(account_id::text, ''), name, COALESCE(phone, '')
		FROM patients
		WHERE id::text = $1 OR account_id::text = $1
		LIMIT 1
	`, id).Scan(&p.ID, &p.AccountID, &p.Name, &p.Phone)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (r *Repository) ServiceByID(ctx context.Context, tx pgx.Tx, id string) (model.Service, error) {
	return scanService(tx.QueryRow(ctx, `
		SELECT id, doctor_id, name, COALESCE(description, ''), price, duration_minutes, is_active
		FROM services
		WHERE id::text = $1
	`, id))
}

// ServiceByName finds the doctor's service with the given name, creating it
// with the supplied duration when absent. The unique index over
// (doctor_id, lower(name)) makes the create race-safe: a concurrent first
// booking that wins the insert leaves ON CONFLICT with no row, and the
// winner's row is picked up by the re-select.
func (r *Repository) ServiceByName(ctx context.Context, tx pgx.Tx, doctorID, name string, durationMinutes int) (model.Service, error) {
	svc, err := r.serviceByNameSelect(ctx, tx, doctorID, name)
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, err
	}
	return r.createService(ctx, tx, doctorID, name, durationMinutes)
}

func (r *Repository) serviceByNameSelect(ctx context.Context, tx pgx.Tx, doctorID, name string) (model.Service, error) {
	return scanService(tx.QueryRow(ctx, `
		SELECT id, doctor_id, name, COALESCE(description, ''), price, duration_minutes, is_active
		FROM services
		WHERE doctor_id = $1 AND lower(name) = lower($2)
	`, doctorID, name))
}

// DefaultService returns the doctor's auto-provisioned default consultation
// service, creating it on first use with the requested duration.
func (r *Repository) DefaultService(ctx context.Context, tx pgx.Tx, doctorID string, durationMinutes int) (model.Service, error) {
	return r.ServiceByName(ctx, tx, doctorID, DefaultServiceName, durationMinutes)
}

func (r *Repository) createService(ctx context.Context, tx pgx.Tx, doctorID, name string, durationMinutes int) (model.Service, error) {
	if durationMinutes <= 0 {
		durationMinutes = 30
	}
	svc := model.Service{
		DoctorID:        doctorID,
		Name:            name,
		DurationMinutes: durationMinutes,
		IsActive:        true,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO services (doctor_id, name, duration_minutes, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (doctor_id, lower(name)) DO NOTHING
		RETURNING id
	`, doctorID, name, durationMinutes).Scan(&svc.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the create race; the winner's row exists now.
		return r.serviceByNameSelect(ctx, tx, doctorID, name)
	}
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// ScheduleFor returns the doctor's active schedule entry for the weekday
// (0=Sunday .. 6=Saturday). The second return is false when the doctor has no
// active window that day.
func (r *Repository) ScheduleFor(ctx context.Context, doctorID string, dayOfWeek int) (model.ScheduleEntry, bool, error) {
	var e model.ScheduleEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, day_of_week, start_time, end_time, is_active
		FROM schedule_entries
		WHERE doctor_id = $1 AND day_of_week = $2 AND is_active = TRUE
	`, doctorID, dayOfWeek).Scan(&e.ID, &e.DoctorID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScheduleEntry{}, false, nil
	}
	if err != nil {
		return model.ScheduleEntry{}, false, err
	}
	return e, true, nil
}

// HasLiveAppointment is the advisory conflict check: does another live
// appointment already hold (doctorID, date, hhmm)? excludeID is skipped so a
// reschedule does not collide with itself.
func (r *Repository) HasLiveAppointment(ctx context.Context, tx pgx.Tx, doctorID string, date time.Time, hhmm, excludeID string) (bool, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
			AND date = $2
			AND time = $3
			AND status IN ('PENDING', 'CONFIRMED')
			AND ($4 = '' OR id::text <> $4)
	`, doctorID, date, hhmm, excludeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(doctor_id, patient_id, service_id, date, time, duration_minutes, status, reason, notes, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		RETURNING id
	`, appt.DoctorID, appt.PatientID, appt.ServiceID, appt.Date, appt.Time, appt.DurationMinutes,
		appt.Status, appt.Reason, appt.Notes, string(appt.Severity)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AppointmentForUpdate loads and row-locks one of the doctor's appointments.
func (r *Repository) AppointmentForUpdate(ctx context.Context, tx pgx.Tx, doctorID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	var severity *string
	err := tx.QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, service_id, date, time, duration_minutes,
			status, COALESCE(reason, ''), COALESCE(notes, ''), severity, created_at, updated_at
		FROM appointments
		WHERE id::text = $1 AND doctor_id = $2
		FOR UPDATE
	`, appointmentID, doctorID).Scan(
		&appt.ID,
		&appt.DoctorID,
		&appt.PatientID,
		&appt.ServiceID,
		&appt.Date,
		&appt.Time,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.Reason,
		&appt.Notes,
		&severity,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if severity != nil {
		appt.Severity = model.Severity(*severity)
	}
	return appt, nil
}

// AppointmentOwner returns the doctor id holding the appointment, regardless
// of which doctor is asking. Used to distinguish 403 from 404 on reschedule.
func (r *Repository) AppointmentOwner(ctx context.Context, tx pgx.Tx, appointmentID string) (string, error) {
	var doctorID string
	err := tx.QueryRow(ctx, `
		SELECT doctor_id FROM appointments WHERE id::text = $1
	`, appointmentID).Scan(&doctorID)
	return doctorID, err
}

// Reschedule moves the appointment to a new slot and forces CONFIRMED.
func (r *Repository) Reschedule(ctx context.Context, tx pgx.Tx, appointmentID string, date time.Time, hhmm string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, time = $3, status = 'CONFIRMED', updated_at = now()
		WHERE id = $1
	`, appointmentID, date, hhmm)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			reason = CASE WHEN $2 <> '' THEN $2 ELSE reason END,
			notes = CASE WHEN $2 <> '' THEN trim(both ' ' from notes || ' [cancelled: ' || $2 || ']') ELSE notes END,
			updated_at = now()
		WHERE id = $1
	`, appointmentID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, appointmentID string, status model.AppointmentStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, appointmentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LiveTimesForDay lists the "HH:MM" starts already held by live appointments
// for the doctor on the given calendar day.
func (r *Repository) LiveTimesForDay(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time
		FROM appointments
		WHERE doctor_id = $1
			AND date = $2
			AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *Repository) ListByDoctor(ctx context.Context, doctorID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, service_id, date, time, duration_minutes,
			status, COALESCE(reason, ''), COALESCE(notes, ''), severity, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY date DESC, time DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var severity *string
		if err := rows.Scan(
			&appt.ID,
			&appt.DoctorID,
			&appt.PatientID,
			&appt.ServiceID,
			&appt.Date,
			&appt.Time,
			&appt.DurationMinutes,
			&appt.Status,
			&appt.Reason,
			&appt.Notes,
			&severity,
			&appt.CreatedAt,
			&appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if severity != nil {
			appt.Severity = model.Severity(*severity)
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func scanService(row pgx.Row) (model.Service, error) {
	var svc model.Service
	err := row.Scan(&svc.ID, &svc.DoctorID, &svc.Name, &svc.Description, &svc.Price, &svc.DurationMinutes, &svc.IsActive)
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// IsConflict reports whether err is the live-slot uniqueness violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == liveSlotConstraint
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
