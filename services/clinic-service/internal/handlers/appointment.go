package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/stats"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/storage"
)

type Handler struct {
	repo       Store
	outboxRepo EventStore
	stats      *stats.Aggregator
	logger     *slog.Logger
}

func New(repo Store, outboxRepo EventStore, aggregator *stats.Aggregator, logger *slog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		outboxRepo: outboxRepo,
		stats:      aggregator,
		logger:     logger,
	}
}

type appointmentRequest struct {
	MemberID     string  `json:"member_id"`
	CustomerName string  `json:"customer_name"`
	TreatmentID  string  `json:"treatment_id"`
	TherapistID  string  `json:"therapist_id"`
	ScheduledAt  string  `json:"scheduled_at"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Notes        string  `json:"notes"`
}

type appointmentItem struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id,omitempty"`
	CustomerName string  `json:"customer_name"`
	TreatmentID  string  `json:"treatment_id"`
	TherapistID  string  `json:"therapist_id,omitempty"`
	ScheduledAt  string  `json:"scheduled_at"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Notes        string  `json:"notes,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:           appt.ID,
		CustomerName: appt.CustomerName,
		TreatmentID:  appt.TreatmentID,
		ScheduledAt:  appt.ScheduledAt.UTC().Format(time.RFC3339),
		Amount:       appt.Amount,
		Status:       string(appt.Status),
		Notes:        appt.Notes,
		CreatedAt:    appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if appt.MemberID != nil {
		item.MemberID = *appt.MemberID
	}
	if appt.TherapistID != nil {
		item.TherapistID = *appt.TherapistID
	}
	return item
}

// parseAppointmentRequest validates the shared request shape. defaultStatus
// applies when the status field is omitted.
func parseAppointmentRequest(req appointmentRequest, defaultStatus model.Status) (model.Appointment, error) {
	var appt model.Appointment

	appt.CustomerName = strings.TrimSpace(req.CustomerName)
	appt.TreatmentID = strings.TrimSpace(req.TreatmentID)
	appt.Notes = strings.TrimSpace(req.Notes)
	if appt.CustomerName == "" {
		return model.Appointment{}, errMissingField("customer_name")
	}
	if appt.TreatmentID == "" {
		return model.Appointment{}, errMissingField("treatment_id")
	}

	if memberID := strings.TrimSpace(req.MemberID); memberID != "" {
		appt.MemberID = &memberID
	}
	if therapistID := strings.TrimSpace(req.TherapistID); therapistID != "" {
		appt.TherapistID = &therapistID
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return model.Appointment{}, errInvalidField("scheduled_at")
	}
	appt.ScheduledAt = scheduledAt

	if req.Amount < 0 {
		return model.Appointment{}, errInvalidField("amount")
	}
	appt.Amount = req.Amount

	status := defaultStatus
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err = model.ParseStatus(raw)
		if err != nil {
			return model.Appointment{}, err
		}
	}
	appt.Status = status

	return appt, nil
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	appt, err := parseAppointmentRequest(req, model.StatusPending)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	err = h.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := h.repo.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		code, err := h.repo.NextAppointmentCode(ctx, tx)
		if err != nil {
			return err
		}
		appt.ID = code

		if err := h.repo.InsertAppointment(ctx, tx, &appt); err != nil {
			return err
		}
		status := appt.Status
		if err := h.applyTransition(ctx, tx, appt, nil, &status); err != nil {
			return err
		}
		if err := h.emitCreated(ctx, tx, appt); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		h.writeCommandError(w, "create", appt.ID, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": appt.ID})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
		appointmentRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	// A full replace without an explicit status would silently revert the
	// appointment to pending; demand one instead.
	if strings.TrimSpace(req.Status) == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	updated, err := parseAppointmentRequest(req.appointmentRequest, model.StatusPending)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated.ID = id

	var result model.Appointment
	ctx := r.Context()
	err = h.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := h.repo.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// The stored status is authoritative; whatever the admin UI thought
		// the previous status was is ignored.
		stored, err := h.repo.GetAppointmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := stored.Status
		next := updated.Status

		if sameRef(stored.TherapistID, updated.TherapistID) && sameRef(stored.MemberID, updated.MemberID) {
			if err := h.applyTransition(ctx, tx, updated, &prev, &next); err != nil {
				return err
			}
		} else {
			if err := h.applyRefChange(ctx, tx, stored, updated, next); err != nil {
				return err
			}
		}

		if err := h.repo.UpdateAppointment(ctx, tx, &updated); err != nil {
			return err
		}
		if prev != next {
			if err := h.emitStatusChanged(ctx, tx, updated, prev, next); err != nil {
				return err
			}
		}

		result, err = h.repo.GetAppointmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		h.writeCommandError(w, "update", id, err)
		return
	}

	writeJSON(w, http.StatusOK, toItem(result))
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	next, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result model.Appointment
	ctx := r.Context()
	err = h.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := h.repo.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		stored, err := h.repo.GetAppointmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := stored.Status

		if err := h.applyTransition(ctx, tx, stored, &prev, &next); err != nil {
			return err
		}
		if err := h.repo.UpdateAppointmentStatus(ctx, tx, id, next); err != nil {
			return err
		}
		stored.Status = next
		if prev != next {
			if err := h.emitStatusChanged(ctx, tx, stored, prev, next); err != nil {
				return err
			}
		}

		result = stored
		return tx.Commit(ctx)
	})
	if err != nil {
		h.writeCommandError(w, "change status", id, err)
		return
	}

	writeJSON(w, http.StatusOK, toItem(result))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	err := h.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := h.repo.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// Counters come off before the row goes away; cumulative counters
		// and history stay.
		stored, err := h.repo.GetAppointmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := stored.Status
		if err := h.applyTransition(ctx, tx, stored, &prev, nil); err != nil {
			return err
		}
		if err := h.repo.DeleteAppointment(ctx, tx, id); err != nil {
			return err
		}
		if err := h.emitDeleted(ctx, tx, stored); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		h.writeCommandError(w, "delete", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	appt, err := h.repo.GetAppointment(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	appts, err := h.repo.ListAppointments(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toItem(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) MemberHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	memberID := strings.TrimSpace(r.URL.Query().Get("member_id"))
	if memberID == "" {
		http.Error(w, "member_id required", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 500)

	entries, err := h.repo.ListMemberHistory(r.Context(), memberID, limit)
	if err != nil {
		http.Error(w, "failed to load treatment history", http.StatusInternalServerError)
		return
	}

	type historyItem struct {
		AppointmentID string  `json:"appointment_id"`
		TreatmentName string  `json:"treatment_name"`
		TherapistName string  `json:"therapist_name,omitempty"`
		Date          string  `json:"date"`
		Amount        float64 `json:"amount"`
		Notes         string  `json:"notes,omitempty"`
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			AppointmentID: e.AppointmentID,
			TreatmentName: e.TreatmentName,
			TherapistName: e.TherapistName,
			Date:          e.TreatmentDate.UTC().Format(time.RFC3339),
			Amount:        e.Amount,
			Notes:         e.Notes,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// writeCommandError maps transaction failures onto HTTP statuses: missing
// rows and dangling references are caller errors, exhausted conflict
// retries surface as 409, everything else is a 500 with the transaction
// already rolled back.
func (h *Handler) writeCommandError(w http.ResponseWriter, op, id string, err error) {
	switch {
	case storage.IsNotFound(err):
		http.Error(w, "referenced record not found", http.StatusNotFound)
	case storage.IsForeignKeyViolation(err):
		http.Error(w, "referenced record not found", http.StatusNotFound)
	case storage.IsSerializationFailure(err):
		http.Error(w, "conflicting concurrent update, try again", http.StatusConflict)
	default:
		h.logger.Error("appointment command failed", "op", op, "appointment_id", id, "err", err)
		http.Error(w, "failed to "+op+" appointment", http.StatusInternalServerError)
	}
}

func parseLimit(raw string, fallback, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

func errMissingField(name string) error { return fieldError(name + " is required") }
func errInvalidField(name string) error { return fieldError("invalid " + name) }
