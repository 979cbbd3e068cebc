package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/careslot/careslot/services/notification-service/internal/storage"
)

// Store is the read-model surface the HTTP handlers need.
type Store interface {
	ListByDoctor(ctx context.Context, doctorID string, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (bool, error)
}

type NotificationHandler struct {
	store  Store
	logger *slog.Logger
}

func NewNotificationHandler(store Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

type notificationItem struct {
	NotificationID string `json:"notificationId"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	PatientID      string `json:"patientId,omitempty"`
	AppointmentID  string `json:"appointmentId"`
	IsRead         bool   `json:"isRead"`
	CreatedAt      string `json:"createdAt"`
}

type markReadRequest struct {
	NotificationID string `json:"notificationId"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doctorID := strings.TrimSpace(r.URL.Query().Get("doctorId"))
	if doctorID == "" {
		http.Error(w, "doctorId required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notifications, err := h.store.ListByDoctor(r.Context(), doctorID, limit)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := make([]notificationItem, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationItem{
			NotificationID: n.ID,
			Type:           n.Type,
			Title:          n.Title,
			Message:        n.Message,
			PatientID:      n.PatientID,
			AppointmentID:  n.AppointmentID,
			IsRead:         n.IsRead,
			CreatedAt:      n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.NotificationID = strings.TrimSpace(req.NotificationID)
	if req.NotificationID == "" {
		http.Error(w, "notificationId required", http.StatusBadRequest)
		return
	}

	found, err := h.store.MarkRead(r.Context(), req.NotificationID)
	if err != nil {
		h.logger.Error("mark read failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"notificationId": req.NotificationID,
		"isRead":         true,
	})
}
