package storage

import (
	"context"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/jackc/pgx/v5"
)

// RecordCompletion appends the treatment-history entry for an appointment's
// first completion. The unique constraint on appointment_id makes repeated
// calls no-ops: the bool result is false when the entry already existed, so
// the caller can log the duplicate without treating it as a failure.
func (r *Repository) RecordCompletion(ctx context.Context, tx pgx.Tx, entry model.TreatmentHistoryEntry) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO treatment_history
			(member_id, appointment_id, treatment_name, therapist_name, treatment_date, amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id) DO NOTHING
	`, entry.MemberID, entry.AppointmentID, entry.TreatmentName, entry.TherapistName,
		entry.TreatmentDate, entry.Amount, entry.Notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListMemberHistory(ctx context.Context, memberID string, limit int) ([]model.TreatmentHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id::text, appointment_id, treatment_name, therapist_name,
			treatment_date, amount::float8, COALESCE(notes, ''), created_at
		FROM treatment_history
		WHERE member_id = $1
		ORDER BY treatment_date DESC, id DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TreatmentHistoryEntry
	for rows.Next() {
		var e model.TreatmentHistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.MemberID,
			&e.AppointmentID,
			&e.TreatmentName,
			&e.TherapistName,
			&e.TreatmentDate,
			&e.Amount,
			&e.Notes,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
