package storage

import (
	"context"
	"errors"

	"github.com/dwiratna/bellaclinic/libs/db"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// NextAppointmentCode reserves the next clinic booking code from a DB
// sequence inside the creating transaction.
func (r *Repository) NextAppointmentCode(ctx context.Context, tx pgx.Tx) (string, error) {
	var code string
	err := tx.QueryRow(ctx, `
		SELECT 'APT-' || lpad(nextval('appointment_code_seq')::text, 6, '0')
	`).Scan(&code)
	return code, err
}

func (r *Repository) InsertAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, member_id, customer_name, treatment_id, therapist_id, scheduled_at, amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appt.ID, appt.MemberID, appt.CustomerName, appt.TreatmentID, appt.TherapistID,
		appt.ScheduledAt, appt.Amount, string(appt.Status), appt.Notes)
	return err
}

const appointmentColumns = `
	id, member_id::text, customer_name, treatment_id::text, therapist_id::text,
	scheduled_at, amount::float8, status, COALESCE(notes, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.MemberID,
		&appt.CustomerName,
		&appt.TreatmentID,
		&appt.TherapistID,
		&appt.ScheduledAt,
		&appt.Amount,
		&status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

// GetAppointmentForUpdate loads the row under FOR UPDATE so the status it
// returns stays authoritative for the rest of the transaction.
func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *Repository) UpdateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET member_id = $2,
			customer_name = $3,
			treatment_id = $4,
			therapist_id = $5,
			scheduled_at = $6,
			amount = $7,
			status = $8,
			notes = $9,
			updated_at = now()
		WHERE id = $1
	`, appt.ID, appt.MemberID, appt.CustomerName, appt.TreatmentID, appt.TherapistID,
		appt.ScheduledAt, appt.Amount, string(appt.Status), appt.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteAppointment(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListAppointments(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY scheduled_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// GetTherapistForUpdate locks the therapist row for the duration of the
// transaction so concurrent transitions against the same therapist
// serialize on it.
func (r *Repository) GetTherapistForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Therapist, error) {
	var t model.Therapist
	err := tx.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(phone, ''), is_active,
			pending_count, confirmed_count, completed_count, total_treatments
		FROM therapists
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&t.ID,
		&t.Name,
		&t.Phone,
		&t.IsActive,
		&t.PendingCount,
		&t.ConfirmedCount,
		&t.CompletedCount,
		&t.TotalTreatments,
	)
	if err != nil {
		return model.Therapist{}, err
	}
	return t, nil
}

func (r *Repository) SaveTherapistCounters(ctx context.Context, tx pgx.Tx, t model.Therapist) error {
	tag, err := tx.Exec(ctx, `
		UPDATE therapists
		SET pending_count = $2,
			confirmed_count = $3,
			completed_count = $4,
			total_treatments = $5,
			updated_at = now()
		WHERE id = $1
	`, t.ID, t.PendingCount, t.ConfirmedCount, t.CompletedCount, t.TotalTreatments)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) GetMemberForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Member, error) {
	var m model.Member
	err := tx.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(phone, ''), is_active, total_visits, last_visit
		FROM members
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&m.ID,
		&m.Name,
		&m.Phone,
		&m.IsActive,
		&m.TotalVisits,
		&m.LastVisit,
	)
	if err != nil {
		return model.Member{}, err
	}
	return m, nil
}

func (r *Repository) SaveMemberCounters(ctx context.Context, tx pgx.Tx, m model.Member) error {
	tag, err := tx.Exec(ctx, `
		UPDATE members
		SET total_visits = $2,
			last_visit = $3,
			updated_at = now()
		WHERE id = $1
	`, m.ID, m.TotalVisits, m.LastVisit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) GetTreatmentName(ctx context.Context, tx pgx.Tx, id string) (string, error) {
	var name string
	err := tx.QueryRow(ctx, `
		SELECT name
		FROM treatments
		WHERE id = $1
	`, id).Scan(&name)
	return name, err
}

// IsNotFound reports whether err means the referenced row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsForeignKeyViolation reports whether err means a referenced member,
// therapist, or treatment row does not exist.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsSerializationFailure reports whether err is a transaction conflict
// (serialization failure or deadlock) worth retrying as a whole unit.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
