package model

import "time"

// Therapist rows are owned by roster management; this service only ever
// touches the counter columns. The three live buckets mirror the current
// appointment set, total_treatments accumulates completions forever.
type Therapist struct {
	ID              string
	Name            string
	Phone           string
	IsActive        bool
	PendingCount    int
	ConfirmedCount  int
	CompletedCount  int
	TotalTreatments int
}

type Member struct {
	ID          string
	Name        string
	Phone       string
	IsActive    bool
	TotalVisits int
	LastVisit   *time.Time
}

// TreatmentHistoryEntry is the append-only audit record written once per
// appointment at its first completion. It survives later status edits and
// even deletion of the appointment itself.
type TreatmentHistoryEntry struct {
	ID            int64
	MemberID      string
	AppointmentID string
	TreatmentName string
	TherapistName string
	TreatmentDate time.Time
	Amount        float64
	Notes         string
	CreatedAt     time.Time
}
