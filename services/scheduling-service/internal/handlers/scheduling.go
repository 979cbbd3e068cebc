package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
	"github.com/careslot/careslot/services/scheduling-service/internal/model"
	"github.com/careslot/careslot/services/scheduling-service/internal/outbox"
	"github.com/careslot/careslot/services/scheduling-service/internal/storage"
	"github.com/careslot/careslot/services/scheduling-service/internal/timeparse"
)

type SchedulingHandler struct {
	store           Store
	events          EventSink
	logger          *slog.Logger
	defaultDuration int
	now             func() time.Time
}

func NewSchedulingHandler(store Store, events EventSink, logger *slog.Logger, defaultDurationMinutes int) *SchedulingHandler {
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 30
	}
	return &SchedulingHandler{
		store:           store,
		events:          events,
		logger:          logger,
		defaultDuration: defaultDurationMinutes,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type bookRequest struct {
	DoctorPhone     string `json:"doctorPhone"`
	PatientID       string `json:"patientId"`
	Date            any    `json:"date"`
	Time            any    `json:"time"`
	ServiceID       string `json:"serviceId"`
	ServiceName     string `json:"serviceName"`
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason"`
	Severity        string `json:"severity"`
}

type bookResponse struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Service       string `json:"service,omitempty"`
}

type cancelRequest struct {
	DoctorPhone   string `json:"doctorPhone"`
	AppointmentID string `json:"appointmentId"`
	Reason        string `json:"reason"`
}

type rescheduleRequest struct {
	DoctorPhone   string `json:"doctorPhone"`
	AppointmentID string `json:"appointmentId"`
	NewDate       any    `json:"newDate"`
	NewTime       any    `json:"newTime"`
}

type statusUpdateRequest struct {
	DoctorPhone   string `json:"doctorPhone"`
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
}

type availabilityRequest struct {
	Phone string `json:"phone"`
	Date  any    `json:"date"`
}

type availableSlot struct {
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration"`
}

type availabilityResponse struct {
	DoctorID       string          `json:"doctorId"`
	Date           string          `json:"date"`
	AvailableSlots []availableSlot `json:"availableSlots"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointmentId"`
	PatientID       string `json:"patientId"`
	ServiceID       string `json:"serviceId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Severity        string `json:"severity,omitempty"`
}

// lifecycleEvent is the payload shape the notification service consumes.
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

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorPhone = strings.TrimSpace(req.DoctorPhone)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.Severity = strings.ToUpper(strings.TrimSpace(req.Severity))

	if req.DoctorPhone == "" || req.PatientID == "" || req.Date == nil || req.Time == nil {
		http.Error(w, "doctorPhone, patientId, date and time are required", http.StatusBadRequest)
		return
	}
	if req.Severity != "" && !model.Severity(req.Severity).Valid() {
		http.Error(w, "severity must be one of LOW, MEDIUM, HIGH, CRITICAL", http.StatusBadRequest)
		return
	}

	date, hhmm, err := timeparse.NormalizeDateTime(req.Date, req.Time)
	if err != nil {
		http.Error(w, "invalid date or time format", http.StatusBadRequest)
		return
	}
	if !timeparse.IsValidFutureDate(date, h.now(), true) {
		http.Error(w, "appointment date cannot be in the past", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, req.DoctorPhone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	ok, err := h.withinAvailability(ctx, doctor.ID, date, hhmm)
	if err != nil {
		h.internalError(w, "availability lookup failed", err)
		return
	}
	if !ok {
		http.Error(w, "requested time is outside the doctor's working hours", http.StatusBadRequest)
		return
	}

	patient, err := h.store.PatientByID(ctx, req.PatientID)
	if err != nil {
		h.respondLookupError(w, err, "patient not found")
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, "begin transaction failed", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	svc, err := h.resolveService(ctx, tx, doctor.ID, req)
	if err != nil {
		h.respondLookupError(w, err, "service not found")
		return
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = svc.DurationMinutes
	}
	if duration <= 0 {
		duration = h.defaultDuration
	}

	// Advisory check; the partial unique index on live slots is the source of
	// truth under concurrent requests.
	taken, err := h.store.HasLiveAppointment(ctx, tx, doctor.ID, date, hhmm, "")
	if err != nil {
		h.internalError(w, "conflict check failed", err)
		return
	}
	if taken {
		http.Error(w, "time slot already booked", http.StatusConflict)
		return
	}

	appt := &model.Appointment{
		DoctorID:        doctor.ID,
		PatientID:       patient.ID,
		ServiceID:       svc.ID,
		Date:            date,
		Time:            hhmm,
		DurationMinutes: duration,
		Status:          model.StatusPending,
		Reason:          strings.TrimSpace(req.Reason),
		Severity:        model.Severity(req.Severity),
	}
	id, err := h.store.CreateAppointment(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, "create appointment failed", err)
		return
	}

	evt := lifecycleEvent{
		NotificationType: "APPOINTMENT_BOOKED",
		Title:            "New appointment booked",
		Message:          fmt.Sprintf("%s booked %s on %s at %s.", patient.Name, svc.Name, timeparse.FormatDate(date), hhmm),
		DoctorID:         doctor.ID,
		PatientID:        patient.ID,
		AppointmentID:    id,
		Date:             timeparse.FormatDate(date),
		Time:             hhmm,
	}
	if err := h.emit(ctx, tx, outbox.EventAppointmentBooked, id, evt); err != nil {
		h.internalError(w, "write outbox event failed", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, "commit failed", err)
		return
	}

	writeJSON(w, http.StatusOK, bookResponse{
		AppointmentID: id,
		Status:        string(model.StatusPending),
		Date:          timeparse.FormatDate(date),
		Time:          hhmm,
		Service:       svc.Name,
	})
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorPhone = strings.TrimSpace(req.DoctorPhone)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.DoctorPhone == "" || req.AppointmentID == "" || req.NewDate == nil || req.NewTime == nil {
		http.Error(w, "doctorPhone, appointmentId, newDate and newTime are required", http.StatusBadRequest)
		return
	}

	date, hhmm, err := timeparse.NormalizeDateTime(req.NewDate, req.NewTime)
	if err != nil {
		http.Error(w, "invalid date or time format", http.StatusBadRequest)
		return
	}
	if !timeparse.IsValidFutureDate(date, h.now(), true) {
		http.Error(w, "appointment date cannot be in the past", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, req.DoctorPhone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	ok, err := h.withinAvailability(ctx, doctor.ID, date, hhmm)
	if err != nil {
		h.internalError(w, "availability lookup failed", err)
		return
	}
	if !ok {
		http.Error(w, "requested time is outside the doctor's working hours", http.StatusBadRequest)
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, "begin transaction failed", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.store.AppointmentForUpdate(ctx, tx, doctor.ID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			// Distinguish "does not exist" from "belongs to another doctor".
			if _, ownerErr := h.store.AppointmentOwner(ctx, tx, req.AppointmentID); ownerErr == nil {
				http.Error(w, "appointment belongs to a different doctor", http.StatusForbidden)
				return
			}
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "load appointment failed", err)
		return
	}

	taken, err := h.store.HasLiveAppointment(ctx, tx, doctor.ID, date, hhmm, appt.ID)
	if err != nil {
		h.internalError(w, "conflict check failed", err)
		return
	}
	if taken {
		http.Error(w, "new time slot already booked", http.StatusConflict)
		return
	}

	if err := h.store.Reschedule(ctx, tx, appt.ID, date, hhmm); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "new time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, "reschedule failed", err)
		return
	}

	evt := lifecycleEvent{
		NotificationType: "APPOINTMENT_RESCHEDULED",
		Title:            "Appointment rescheduled",
		Message:          fmt.Sprintf("Appointment moved to %s at %s.", timeparse.FormatDate(date), hhmm),
		DoctorID:         doctor.ID,
		PatientID:        appt.PatientID,
		AppointmentID:    appt.ID,
		Date:             timeparse.FormatDate(date),
		Time:             hhmm,
	}
	if err := h.emit(ctx, tx, outbox.EventAppointmentRescheduled, appt.ID, evt); err != nil {
		h.internalError(w, "write outbox event failed", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "new time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, "commit failed", err)
		return
	}

	writeJSON(w, http.StatusOK, bookResponse{
		AppointmentID: appt.ID,
		Status:        string(model.StatusConfirmed),
		Date:          timeparse.FormatDate(date),
		Time:          hhmm,
	})
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorPhone = strings.TrimSpace(req.DoctorPhone)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.DoctorPhone == "" || req.AppointmentID == "" {
		http.Error(w, "doctorPhone and appointmentId are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, req.DoctorPhone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, "begin transaction failed", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.store.AppointmentForUpdate(ctx, tx, doctor.ID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "load appointment failed", err)
		return
	}

	if appt.Status == model.StatusCancelled {
		writeJSON(w, http.StatusOK, map[string]string{
			"appointmentId": appt.ID,
			"status":        string(model.StatusCancelled),
		})
		return
	}
	if appt.Status == model.StatusCompleted || appt.Status == model.StatusNoShow {
		http.Error(w, "appointment can no longer be cancelled", http.StatusConflict)
		return
	}

	if err := h.store.CancelAppointment(ctx, tx, appt.ID, req.Reason); err != nil {
		h.internalError(w, "cancel failed", err)
		return
	}

	evt := lifecycleEvent{
		NotificationType: "APPOINTMENT_CANCELLED",
		Title:            "Appointment cancelled",
		Message:          cancelMessage(appt, req.Reason),
		DoctorID:         doctor.ID,
		PatientID:        appt.PatientID,
		AppointmentID:    appt.ID,
		Date:             timeparse.FormatDate(appt.Date),
		Time:             appt.Time,
	}
	if err := h.emit(ctx, tx, outbox.EventAppointmentCancelled, appt.ID, evt); err != nil {
		h.internalError(w, "write outbox event failed", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.internalError(w, "commit failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"appointmentId": appt.ID,
		"status":        string(model.StatusCancelled),
	})
}

// StatusUpdate is the administrative transition used to mark COMPLETED or
// NO_SHOW after the fact. It is a bare field update with no notification.
func (h *SchedulingHandler) StatusUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorPhone = strings.TrimSpace(req.DoctorPhone)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	status := model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if req.DoctorPhone == "" || req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "doctorPhone, appointmentId and status are required", http.StatusBadRequest)
		return
	}
	if !status.Valid() {
		http.Error(w, "status must be one of PENDING, CONFIRMED, COMPLETED, CANCELLED, NO_SHOW", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, req.DoctorPhone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, "begin transaction failed", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.store.AppointmentForUpdate(ctx, tx, doctor.ID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "load appointment failed", err)
		return
	}

	if err := h.store.UpdateStatus(ctx, tx, appt.ID, status); err != nil {
		if storage.IsConflict(err) {
			// Reviving a CANCELLED slot back to a live status can collide.
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, "status update failed", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.internalError(w, "commit failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"appointmentId": appt.ID,
		"status":        string(status),
	})
}

func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" || req.Date == nil {
		http.Error(w, "phone and date are required", http.StatusBadRequest)
		return
	}

	date, err := timeparse.NormalizeDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, req.Phone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	resp := availabilityResponse{
		DoctorID:       doctor.ID,
		Date:           timeparse.FormatDate(date),
		AvailableSlots: []availableSlot{},
	}

	entry, found, err := h.store.ScheduleFor(ctx, doctor.ID, int(date.Weekday()))
	if err != nil {
		h.internalError(w, "schedule lookup failed", err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	times, err := h.store.LiveTimesForDay(ctx, doctor.ID, date)
	if err != nil {
		h.internalError(w, "booked slots lookup failed", err)
		return
	}
	busy := make(map[string]struct{}, len(times))
	for _, t := range times {
		busy[t] = struct{}{}
	}

	// Past slots are only filtered when the requested day is today.
	notBefore := ""
	now := h.now()
	if timeparse.Truncate(date).Equal(timeparse.Truncate(now)) {
		notBefore = now.Format("15:04")
	}

	for _, t := range availability.SlotTimes(entry.StartTime, entry.EndTime, h.defaultDuration, busy, notBefore) {
		resp.AvailableSlots = append(resp.AvailableSlots, availableSlot{Time: t, DurationMinutes: h.defaultDuration})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	phone := strings.TrimSpace(r.URL.Query().Get("doctorPhone"))
	if phone == "" {
		http.Error(w, "doctorPhone required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	ctx := r.Context()
	doctor, err := h.store.DoctorByPhone(ctx, phone)
	if err != nil {
		h.respondLookupError(w, err, "doctor not found")
		return
	}

	appts, err := h.store.ListByDoctor(ctx, doctor.ID, limit)
	if err != nil {
		h.internalError(w, "list appointments failed", err)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentItem{
			AppointmentID:   appt.ID,
			PatientID:       appt.PatientID,
			ServiceID:       appt.ServiceID,
			Date:            timeparse.FormatDate(appt.Date),
			Time:            appt.Time,
			DurationMinutes: appt.DurationMinutes,
			Status:          string(appt.Status),
			Reason:          appt.Reason,
			Severity:        string(appt.Severity),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// withinAvailability is the single working-hours policy applied by both Book
// and Reschedule.
func (h *SchedulingHandler) withinAvailability(ctx context.Context, doctorID string, date time.Time, hhmm string) (bool, error) {
	entry, found, err := h.store.ScheduleFor(ctx, doctorID, int(date.Weekday()))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return availability.WithinWindow(entry.StartTime, entry.EndTime, hhmm), nil
}

func (h *SchedulingHandler) resolveService(ctx context.Context, tx pgx.Tx, doctorID string, req bookRequest) (model.Service, error) {
	switch {
	case req.ServiceID != "":
		return h.store.ServiceByID(ctx, tx, req.ServiceID)
	case req.ServiceName != "":
		return h.store.ServiceByName(ctx, tx, doctorID, req.ServiceName, req.DurationMinutes)
	default:
		return h.store.DefaultService(ctx, tx, doctorID, req.DurationMinutes)
	}
}

func (h *SchedulingHandler) emit(ctx context.Context, tx pgx.Tx, eventType, appointmentID string, evt lifecycleEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (h *SchedulingHandler) respondLookupError(w http.ResponseWriter, err error, notFoundMsg string) {
	if storage.IsNotFound(err) {
		http.Error(w, notFoundMsg, http.StatusNotFound)
		return
	}
	h.internalError(w, "lookup failed", err)
}

// internalError logs the real error and returns a redacted message.
func (h *SchedulingHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func cancelMessage(appt model.Appointment, reason string) string {
	msg := fmt.Sprintf("Appointment on %s at %s was cancelled.", timeparse.FormatDate(appt.Date), appt.Time)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
