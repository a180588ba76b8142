package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// memStore implements Store and EventStore over plain maps with
// transaction semantics: Begin clones the committed state, every write
// lands on the clone, Commit swaps it in and Rollback discards it. Close
// enough to the real repository to drive the command handlers end to end.
type memStore struct {
	state *memState

	failTherapistSave error
}

type memState struct {
	appointments map[string]model.Appointment
	therapists   map[string]model.Therapist
	members      map[string]model.Member
	treatments   map[string]string
	history      map[string]model.TreatmentHistoryEntry
	events       []outbox.Event
	seq          int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		appointments: map[string]model.Appointment{},
		therapists:   map[string]model.Therapist{},
		members:      map[string]model.Member{},
		treatments:   map[string]string{},
		history:      map[string]model.TreatmentHistoryEntry{},
	}}
}

func (st *memState) clone() *memState {
	next := &memState{
		appointments: make(map[string]model.Appointment, len(st.appointments)),
		therapists:   make(map[string]model.Therapist, len(st.therapists)),
		members:      make(map[string]model.Member, len(st.members)),
		treatments:   make(map[string]string, len(st.treatments)),
		history:      make(map[string]model.TreatmentHistoryEntry, len(st.history)),
		events:       append([]outbox.Event(nil), st.events...),
		seq:          st.seq,
	}
	for k, v := range st.appointments {
		next.appointments[k] = v
	}
	for k, v := range st.therapists {
		next.therapists[k] = v
	}
	for k, v := range st.members {
		next.members[k] = v
	}
	for k, v := range st.treatments {
		next.treatments[k] = v
	}
	for k, v := range st.history {
		next.history[k] = v
	}
	return next
}

// memTx satisfies pgx.Tx through the embedded nil interface; only Commit
// and Rollback are ever called by the handlers.
type memTx struct {
	pgx.Tx
	store *memStore
	stage *memState
	done  bool
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.state = t.stage
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	return nil
}

func (s *memStore) Begin(context.Context) (pgx.Tx, error) {
	return &memTx{store: s, stage: s.state.clone()}, nil
}

func stage(tx pgx.Tx) *memState {
	return tx.(*memTx).stage
}

func (s *memStore) NextAppointmentCode(_ context.Context, tx pgx.Tx) (string, error) {
	st := stage(tx)
	st.seq++
	return fmt.Sprintf("APT-%06d", st.seq), nil
}

func (s *memStore) InsertAppointment(_ context.Context, tx pgx.Tx, appt *model.Appointment) error {
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stage(tx).appointments[appt.ID] = *appt
	return nil
}

func (s *memStore) GetAppointmentForUpdate(_ context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	appt, ok := stage(tx).appointments[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func (s *memStore) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := s.state.appointments[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func (s *memStore) UpdateAppointment(_ context.Context, tx pgx.Tx, appt *model.Appointment) error {
	st := stage(tx)
	current, ok := st.appointments[appt.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	next := *appt
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	st.appointments[appt.ID] = next
	return nil
}

func (s *memStore) UpdateAppointmentStatus(_ context.Context, tx pgx.Tx, id string, status model.Status) error {
	st := stage(tx)
	appt, ok := st.appointments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	appt.Status = status
	appt.UpdatedAt = time.Now().UTC()
	st.appointments[id] = appt
	return nil
}

func (s *memStore) DeleteAppointment(_ context.Context, tx pgx.Tx, id string) error {
	st := stage(tx)
	if _, ok := st.appointments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(st.appointments, id)
	return nil
}

func (s *memStore) ListAppointments(context.Context, int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range s.state.appointments {
		out = append(out, appt)
	}
	return out, nil
}

func (s *memStore) GetTherapistForUpdate(_ context.Context, tx pgx.Tx, id string) (model.Therapist, error) {
	t, ok := stage(tx).therapists[id]
	if !ok {
		return model.Therapist{}, pgx.ErrNoRows
	}
	return t, nil
}

func (s *memStore) SaveTherapistCounters(_ context.Context, tx pgx.Tx, t model.Therapist) error {
	if s.failTherapistSave != nil {
		return s.failTherapistSave
	}
	stage(tx).therapists[t.ID] = t
	return nil
}

func (s *memStore) GetMemberForUpdate(_ context.Context, tx pgx.Tx, id string) (model.Member, error) {
	m, ok := stage(tx).members[id]
	if !ok {
		return model.Member{}, pgx.ErrNoRows
	}
	return m, nil
}

func (s *memStore) SaveMemberCounters(_ context.Context, tx pgx.Tx, m model.Member) error {
	stage(tx).members[m.ID] = m
	return nil
}

func (s *memStore) GetTreatmentName(_ context.Context, tx pgx.Tx, id string) (string, error) {
	name, ok := stage(tx).treatments[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return name, nil
}

func (s *memStore) RecordCompletion(_ context.Context, tx pgx.Tx, entry model.TreatmentHistoryEntry) (bool, error) {
	st := stage(tx)
	if _, exists := st.history[entry.AppointmentID]; exists {
		return false, nil
	}
	entry.CreatedAt = time.Now().UTC()
	st.history[entry.AppointmentID] = entry
	return true, nil
}

func (s *memStore) ListMemberHistory(_ context.Context, memberID string, _ int) ([]model.TreatmentHistoryEntry, error) {
	var out []model.TreatmentHistoryEntry
	for _, e := range s.state.history {
		if e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, tx pgx.Tx, evt outbox.Event) error {
	st := stage(tx)
	st.events = append(st.events, evt)
	return nil
}
