package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/careslot/careslot/services/notification-service/internal/storage"
)

// lifecycleEvent mirrors the payload the scheduling service writes to its
// outbox for booked/rescheduled/cancelled transitions.
type lifecycleEvent struct {
	NotificationType string `json:"notification_type"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	DoctorID         string `json:"doctor_id"`
	PatientID        string `json:"patient_id"`
	AppointmentID    string `json:"appointment_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
}

var ErrInvalidEvent = errors.New("invalid lifecycle event")

// ParseLifecycleEvent turns a raw event payload into the notification record
// to persist. Malformed payloads are rejected so the consumer can drop them
// without retrying.
func ParseLifecycleEvent(raw []byte) (storage.Notification, error) {
	var evt lifecycleEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return storage.Notification{}, ErrInvalidEvent
	}
	evt.NotificationType = strings.TrimSpace(evt.NotificationType)
	evt.DoctorID = strings.TrimSpace(evt.DoctorID)
	evt.AppointmentID = strings.TrimSpace(evt.AppointmentID)
	if evt.NotificationType == "" || evt.DoctorID == "" || evt.AppointmentID == "" {
		return storage.Notification{}, ErrInvalidEvent
	}

	title := evt.Title
	if title == "" {
		title = evt.NotificationType
	}
	return storage.Notification{
		Type:          evt.NotificationType,
		Title:         title,
		Message:       evt.Message,
		DoctorID:      evt.DoctorID,
		PatientID:     evt.PatientID,
		AppointmentID: evt.AppointmentID,
	}, nil
}
