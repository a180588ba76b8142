// Package lifecycle computes the counter side effects of an appointment
// status change. The rules distinguish live bucket counters (pending /
// confirmed / completed counts on the therapist) from cumulative business
// counters (therapist total_treatments, member total_visits): live buckets
// follow the appointment wherever it moves, cumulative counters and the
// treatment history only ever grow, even when an appointment is later
// moved out of completed or deleted.
package lifecycle

import (
	"time"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
)

// Deltas is the full set of counter adjustments one transition requires.
// Live bucket fields apply to the therapist; TotalVisits and LastVisit to
// the member. RecordHistory signals that a treatment-history entry is due.
type Deltas struct {
	Pending   int
	Confirmed int
	Completed int

	TotalTreatments int
	TotalVisits     int
	LastVisit       *time.Time

	RecordHistory bool
}

// BucketsOnly strips the cumulative side effects, leaving just the live
// bucket adjustments. Used when an edit re-homes an already-completed
// appointment: the new therapist/member inherit the live slot but not the
// completion credit.
func (d Deltas) BucketsOnly() Deltas {
	return Deltas{Pending: d.Pending, Confirmed: d.Confirmed, Completed: d.Completed}
}

func (d Deltas) IsZero() bool {
	return d.Pending == 0 && d.Confirmed == 0 && d.Completed == 0 &&
		d.TotalTreatments == 0 && d.TotalVisits == 0 &&
		d.LastVisit == nil && !d.RecordHistory
}

// ComputeDeltas derives the counter adjustments for moving an appointment
// from prev to next. prev == nil means the appointment is being created;
// next == nil means it is being deleted. The caller must pass the status
// actually stored on the row, read under lock in the same transaction,
// never a client-held copy.
func ComputeDeltas(prev, next *model.Status, date time.Time) Deltas {
	var d Deltas

	for _, s := range []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCompleted} {
		step := 0
		if prev != nil && *prev == s && (next == nil || *next != s) {
			step--
		}
		if next != nil && *next == s && (prev == nil || *prev != s) {
			step++
		}
		switch s {
		case model.StatusPending:
			d.Pending = step
		case model.StatusConfirmed:
			d.Confirmed = step
		case model.StatusCompleted:
			d.Completed = step
		}
	}

	// First arrival at completed is the only event that moves cumulative
	// counters. Leaving completed later does not retract them.
	if next != nil && *next == model.StatusCompleted && (prev == nil || *prev != model.StatusCompleted) {
		d.TotalTreatments = 1
		d.TotalVisits = 1
		visit := date
		d.LastVisit = &visit
		d.RecordHistory = true
	}

	return d
}

// ApplyToTherapist folds the deltas into the therapist's counters. Live
// buckets are floored at zero; any bucket that had to be clamped is
// returned so the caller can log the drift — a clamp means the counters
// had already diverged from the appointment set.
func ApplyToTherapist(t *model.Therapist, d Deltas) (clamped []string) {
	t.PendingCount, clamped = addClamped(t.PendingCount, d.Pending, "pending_count", clamped)
	t.ConfirmedCount, clamped = addClamped(t.ConfirmedCount, d.Confirmed, "confirmed_count", clamped)
	t.CompletedCount, clamped = addClamped(t.CompletedCount, d.Completed, "completed_count", clamped)
	t.TotalTreatments += d.TotalTreatments
	return clamped
}

// ApplyToMember folds the member-side deltas in. LastVisit only moves
// forward so that completing a backdated appointment cannot roll the
// most-recent-visit date backwards.
func ApplyToMember(m *model.Member, d Deltas) {
	m.TotalVisits += d.TotalVisits
	if d.LastVisit != nil && (m.LastVisit == nil || d.LastVisit.After(*m.LastVisit)) {
		visit := *d.LastVisit
		m.LastVisit = &visit
	}
}

func addClamped(current, delta int, field string, clamped []string) (int, []string) {
	next := current + delta
	if next < 0 {
		return 0, append(clamped, field)
	}
	return next, clamped
}
