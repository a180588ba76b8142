package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/lifecycle"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

const maxTxAttempts = 3

// withConflictRetry runs fn, retrying the whole unit on transaction
// conflicts. Caller errors (not found, validation) surface immediately.
func (h *Handler) withConflictRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !storage.IsSerializationFailure(err) {
			return err
		}
		h.logger.Warn("transaction conflict, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return err
}

// applyDeltas folds one delta set into the therapist and member referenced
// by appt, inside the surrounding transaction. A reference that no longer
// resolves fails the whole transaction rather than being skipped. The
// returned therapist name feeds the history entry when one is due.
func (h *Handler) applyDeltas(ctx context.Context, tx pgx.Tx, appt model.Appointment, deltas lifecycle.Deltas) (therapistName string, err error) {
	if deltas.IsZero() {
		return "", nil
	}

	if appt.TherapistID != nil {
		therapist, err := h.repo.GetTherapistForUpdate(ctx, tx, *appt.TherapistID)
		if err != nil {
			return "", fmt.Errorf("therapist %s: %w", *appt.TherapistID, err)
		}
		clamped := lifecycle.ApplyToTherapist(&therapist, deltas)
		if len(clamped) > 0 {
			// A clamp means the bucket was already out of sync with the
			// appointment set; worth surfacing, not hiding.
			h.logger.Warn("therapist counter clamped at zero",
				"therapist_id", therapist.ID,
				"appointment_id", appt.ID,
				"fields", clamped,
			)
		}
		if err := h.repo.SaveTherapistCounters(ctx, tx, therapist); err != nil {
			return "", fmt.Errorf("therapist %s: %w", *appt.TherapistID, err)
		}
		therapistName = therapist.Name
	}

	if appt.MemberID != nil && (deltas.TotalVisits != 0 || deltas.LastVisit != nil) {
		member, err := h.repo.GetMemberForUpdate(ctx, tx, *appt.MemberID)
		if err != nil {
			return "", fmt.Errorf("member %s: %w", *appt.MemberID, err)
		}
		lifecycle.ApplyToMember(&member, deltas)
		if err := h.repo.SaveMemberCounters(ctx, tx, member); err != nil {
			return "", fmt.Errorf("member %s: %w", *appt.MemberID, err)
		}
	}

	return therapistName, nil
}

// applyTransition moves appt from its stored status to next (nil = delete),
// updating counters and, on a first completion with a member present,
// appending the treatment-history entry.
func (h *Handler) applyTransition(ctx context.Context, tx pgx.Tx, appt model.Appointment, prev, next *model.Status) error {
	deltas := lifecycle.ComputeDeltas(prev, next, appt.ScheduledAt)
	therapistName, err := h.applyDeltas(ctx, tx, appt, deltas)
	if err != nil {
		return err
	}

	if deltas.RecordHistory && appt.MemberID != nil {
		treatmentName, err := h.repo.GetTreatmentName(ctx, tx, appt.TreatmentID)
		if err != nil {
			return fmt.Errorf("treatment %s: %w", appt.TreatmentID, err)
		}
		inserted, err := h.repo.RecordCompletion(ctx, tx, model.TreatmentHistoryEntry{
			MemberID:      *appt.MemberID,
			AppointmentID: appt.ID,
			TreatmentName: treatmentName,
			TherapistName: therapistName,
			TreatmentDate: appt.ScheduledAt,
			Amount:        appt.Amount,
			Notes:         appt.Notes,
		})
		if err != nil {
			return fmt.Errorf("treatment history for %s: %w", appt.ID, err)
		}
		if !inserted {
			h.logger.Info("treatment history already recorded",
				"appointment_id", appt.ID,
				"member_id", *appt.MemberID,
			)
		}
	}

	return nil
}

// applyRefChange handles a full edit that moves the appointment to a
// different therapist and/or member: the old references give up their live
// buckets only, the new references receive the live bucket for next plus,
// when this edit is the appointment's first completion, the cumulative
// side effects.
func (h *Handler) applyRefChange(ctx context.Context, tx pgx.Tx, stored, updated model.Appointment, next model.Status) error {
	prev := stored.Status

	removal := lifecycle.ComputeDeltas(&prev, nil, stored.ScheduledAt)
	if _, err := h.applyDeltas(ctx, tx, stored, removal); err != nil {
		return err
	}

	addition := lifecycle.ComputeDeltas(nil, &next, updated.ScheduledAt)
	if prev == model.StatusCompleted {
		// Not a first completion: cumulative counters and history stay
		// with whoever delivered the treatment.
		addition = addition.BucketsOnly()
	}
	therapistName, err := h.applyDeltas(ctx, tx, updated, addition)
	if err != nil {
		return err
	}

	if addition.RecordHistory && updated.MemberID != nil {
		treatmentName, err := h.repo.GetTreatmentName(ctx, tx, updated.TreatmentID)
		if err != nil {
			return fmt.Errorf("treatment %s: %w", updated.TreatmentID, err)
		}
		inserted, err := h.repo.RecordCompletion(ctx, tx, model.TreatmentHistoryEntry{
			MemberID:      *updated.MemberID,
			AppointmentID: updated.ID,
			TreatmentName: treatmentName,
			TherapistName: therapistName,
			TreatmentDate: updated.ScheduledAt,
			Amount:        updated.Amount,
			Notes:         updated.Notes,
		})
		if err != nil {
			return fmt.Errorf("treatment history for %s: %w", updated.ID, err)
		}
		if !inserted {
			h.logger.Info("treatment history already recorded", "appointment_id", updated.ID)
		}
	}

	return nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
