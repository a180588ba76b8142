package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Lifecycle events ride the transactional outbox so they commit atomically
// with the state change and reach Kafka via the background publisher.

func (h *Handler) emitCreated(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	if err := h.insertEvent(ctx, tx, outbox.EventAppointmentCreated, appt.ID, appointmentPayload(appt)); err != nil {
		return err
	}
	if appt.Status == model.StatusCompleted {
		return h.insertEvent(ctx, tx, outbox.EventAppointmentCompleted, appt.ID, appointmentPayload(appt))
	}
	return nil
}

func (h *Handler) emitStatusChanged(ctx context.Context, tx pgx.Tx, appt model.Appointment, prev, next model.Status) error {
	payload := appointmentPayload(appt)
	payload["previous_status"] = string(prev)
	payload["new_status"] = string(next)
	if err := h.insertEvent(ctx, tx, outbox.EventAppointmentStatusChanged, appt.ID, payload); err != nil {
		return err
	}
	if next == model.StatusCompleted && prev != model.StatusCompleted {
		return h.insertEvent(ctx, tx, outbox.EventAppointmentCompleted, appt.ID, appointmentPayload(appt))
	}
	return nil
}

func (h *Handler) emitDeleted(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	payload := appointmentPayload(appt)
	payload["last_status"] = string(appt.Status)
	return h.insertEvent(ctx, tx, outbox.EventAppointmentDeleted, appt.ID, payload)
}

func (h *Handler) insertEvent(ctx context.Context, tx pgx.Tx, eventType, appointmentID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       body,
	})
}

func appointmentPayload(appt model.Appointment) map[string]any {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"treatment_id":   appt.TreatmentID,
		"customer_name":  appt.CustomerName,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"amount":         appt.Amount,
		"status":         string(appt.Status),
	}
	if appt.MemberID != nil {
		payload["member_id"] = *appt.MemberID
	}
	if appt.TherapistID != nil {
		payload["therapist_id"] = *appt.TherapistID
	}
	return payload
}
