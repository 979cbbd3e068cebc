package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/careslot/careslot/libs/db"
)

// Notification is the immutable record of a scheduling event. Only the read
// flag ever changes after insert.
type Notification struct {
	ID            string
	Type          string
	Title         string
	Message       string
	DoctorID      string
	PatientID     string
	AppointmentID string
	IsRead        bool
	CreatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the notification inside the caller's transaction, alongside
// the inbox dedupe row for the event that produced it.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (type, title, message, doctor_id, patient_id, appointment_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, n.Type, n.Title, n.Message, n.DoctorID, n.PatientID, n.AppointmentID)
	return err
}

func (r *Repository) ListByDoctor(ctx context.Context, doctorID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, title, message, doctor_id, COALESCE(patient_id::text, ''), appointment_id, is_read, created_at
		FROM notifications
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.DoctorID, &n.PatientID, &n.AppointmentID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead flips the read flag. The second return is false when no such
// notification exists.
func (r *Repository) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id::text = $1
	`, notificationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
