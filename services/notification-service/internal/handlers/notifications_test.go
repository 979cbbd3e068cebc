package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/careslot/careslot/services/notification-service/internal/storage"
)

type fakeStore struct {
	notifications map[string]*storage.Notification
}

func (f *fakeStore) ListByDoctor(_ context.Context, doctorID string, _ int) ([]storage.Notification, error) {
	var out []storage.Notification
	for _, n := range f.notifications {
		if n.DoctorID == doctorID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(_ context.Context, id string) (bool, error) {
	n, ok := f.notifications[id]
	if !ok {
		return false, nil
	}
	n.IsRead = true
	return true, nil
}

func newTestHandler() (*NotificationHandler, *fakeStore) {
	store := &fakeStore{notifications: map[string]*storage.Notification{
		"n-1": {
			ID:            "n-1",
			Type:          "APPOINTMENT_BOOKED",
			Title:         "New appointment booked",
			Message:       "Asha Rahman booked General Consultation on 2026-07-06 at 10:30.",
			DoctorID:      "doc-1",
			PatientID:     "pat-1",
			AppointmentID: "appt-1",
			CreatedAt:     time.Date(2026, time.July, 1, 10, 0, 0, 0, time.UTC),
		},
	}}
	return NewNotificationHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestList(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/notifications?doctorId=doc-1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var items []notificationItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Type != "APPOINTMENT_BOOKED" || items[0].IsRead {
		t.Fatalf("item = %+v", items[0])
	}
}

func TestList_RequiresDoctorID(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	h, store := newTestHandler()

	body, _ := json.Marshal(map[string]string{"notificationId": "n-1"})
	req := httptest.NewRequest(http.MethodPost, "/notifications/read", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !store.notifications["n-1"].IsRead {
		t.Fatal("notification should be marked read")
	}

	body, _ = json.Marshal(map[string]string{"notificationId": "missing"})
	req = httptest.NewRequest(http.MethodPost, "/notifications/read", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.MarkRead(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestParseLifecycleEvent(t *testing.T) {
	raw := []byte(`{
		"notification_type": "APPOINTMENT_CANCELLED",
		"title": "Appointment cancelled",
		"message": "Appointment on 2026-07-06 at 10:30 was cancelled.",
		"doctor_id": "doc-1",
		"patient_id": "pat-1",
		"appointment_id": "appt-1",
		"date": "2026-07-06",
		"time": "10:30"
	}`)
	n, err := ParseLifecycleEvent(raw)
	if err != nil {
		t.Fatalf("ParseLifecycleEvent: %v", err)
	}
	if n.Type != "APPOINTMENT_CANCELLED" || n.DoctorID != "doc-1" || n.AppointmentID != "appt-1" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestParseLifecycleEvent_Invalid(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"notification_type": "APPOINTMENT_BOOKED"}`),
	}
	for _, raw := range cases {
		if _, err := ParseLifecycleEvent(raw); err == nil {
			t.Fatalf("ParseLifecycleEvent(%s): expected error", raw)
		}
	}
}
