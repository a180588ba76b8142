package model

import (
	"fmt"
	"time"
)

// Status is the live state of an appointment. Deletion is not a stored
// status; it is modeled as a transition with no target (see lifecycle).
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCompleted:
		return Status(raw), nil
	}
	return "", fmt.Errorf("invalid appointment status %q", raw)
}

type Appointment struct {
	ID           string // clinic-assigned sequential code, e.g. APT-000042
	MemberID     *string
	CustomerName string
	TreatmentID  string
	TherapistID  *string
	ScheduledAt  time.Time
	Amount       float64 // price snapshot taken at booking, editable afterwards
	Status       Status
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
