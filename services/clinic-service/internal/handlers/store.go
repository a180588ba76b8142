package handlers

import (
	"context"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Store is the persistence surface the command handlers orchestrate.
// *storage.Repository is the production implementation; tests substitute
// an in-memory one.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	NextAppointmentCode(ctx context.Context, tx pgx.Tx) (string, error)
	InsertAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) error
	DeleteAppointment(ctx context.Context, tx pgx.Tx, id string) error
	ListAppointments(ctx context.Context, limit int) ([]model.Appointment, error)

	GetTherapistForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Therapist, error)
	SaveTherapistCounters(ctx context.Context, tx pgx.Tx, t model.Therapist) error
	GetMemberForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Member, error)
	SaveMemberCounters(ctx context.Context, tx pgx.Tx, m model.Member) error
	GetTreatmentName(ctx context.Context, tx pgx.Tx, id string) (string, error)

	RecordCompletion(ctx context.Context, tx pgx.Tx, entry model.TreatmentHistoryEntry) (bool, error)
	ListMemberHistory(ctx context.Context, memberID string, limit int) ([]model.TreatmentHistoryEntry, error)
}

// EventStore stages domain events inside the command transaction.
type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}
