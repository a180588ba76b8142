// Package stats computes clinic-wide rollups by scanning the current
// appointment rows on every call. Nothing here is cached or materialized;
// the counters kept on therapist/member rows are deliberately not consulted
// so the two views can be compared when chasing drift.
package stats

import (
	"context"
	"time"

	"github.com/dwiratna/bellaclinic/libs/db"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
)

type Aggregator struct {
	pool *db.Pool
}

func NewAggregator(pool *db.Pool) *Aggregator {
	return &Aggregator{pool: pool}
}

type StatusCounts struct {
	Pending   int
	Confirmed int
	Completed int
	Total     int
}

type DayRevenue struct {
	Day     string  `json:"day"` // YYYY-MM-DD, UTC
	Revenue float64 `json:"revenue"`
}

type TherapistRank struct {
	TherapistID string  `json:"therapist_id"`
	Name        string  `json:"name"`
	Completed   int     `json:"completed"`
	Revenue     float64 `json:"revenue"`
}

type MemberRank struct {
	MemberID  string `json:"member_id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
}

// CountsByStatus buckets every appointment row. Rows with a missing status
// count as pending.
func (a *Aggregator) CountsByStatus(ctx context.Context) (StatusCounts, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(status, ''), 'pending'), COUNT(*)
		FROM appointments
		GROUP BY 1
	`)
	if err != nil {
		return StatusCounts{}, err
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, err
		}
		switch model.Status(status) {
		case model.StatusConfirmed:
			counts.Confirmed += n
		case model.StatusCompleted:
			counts.Completed += n
		default:
			counts.Pending += n
		}
		counts.Total += n
	}
	if rows.Err() != nil {
		return StatusCounts{}, rows.Err()
	}
	return counts, nil
}

// TotalRevenue sums appointment amounts, optionally filtered to one status.
// NULL amounts count as zero.
func (a *Aggregator) TotalRevenue(ctx context.Context, statusFilter string) (float64, error) {
	var total float64
	var err error
	if statusFilter == "" {
		err = a.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(COALESCE(amount, 0)), 0)::float8
			FROM appointments
		`).Scan(&total)
	} else {
		err = a.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(COALESCE(amount, 0)), 0)::float8
			FROM appointments
			WHERE COALESCE(NULLIF(status, ''), 'pending') = $1
		`, statusFilter).Scan(&total)
	}
	return total, err
}

// RevenueByDay returns completed revenue for each of the last windowDays
// days, oldest first, with zero rows for days that saw no completions.
func (a *Aggregator) RevenueByDay(ctx context.Context, windowDays int) ([]DayRevenue, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -(windowDays - 1)).Truncate(24 * time.Hour)

	rows, err := a.pool.Query(ctx, `
		SELECT (scheduled_at AT TIME ZONE 'UTC')::date, SUM(COALESCE(amount, 0))::float8
		FROM appointments
		WHERE status = 'completed' AND scheduled_at >= $1
		GROUP BY 1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string]float64)
	for rows.Next() {
		var day time.Time
		var revenue float64
		if err := rows.Scan(&day, &revenue); err != nil {
			return nil, err
		}
		byDay[day.Format("2006-01-02")] = revenue
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return fillDays(since, windowDays, byDay), nil
}

// TopTherapists ranks therapists by completed appointments in the current
// set, computed from appointment rows rather than the therapist counters.
func (a *Aggregator) TopTherapists(ctx context.Context, limit int) ([]TherapistRank, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := a.pool.Query(ctx, `
		SELECT t.id::text, t.name,
			COUNT(*) FILTER (WHERE ap.status = 'completed'),
			COALESCE(SUM(COALESCE(ap.amount, 0)) FILTER (WHERE ap.status = 'completed'), 0)::float8
		FROM therapists t
		JOIN appointments ap ON ap.therapist_id = t.id
		GROUP BY t.id, t.name
		ORDER BY 3 DESC, 4 DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TherapistRank
	for rows.Next() {
		var tr TherapistRank
		if err := rows.Scan(&tr.TherapistID, &tr.Name, &tr.Completed, &tr.Revenue); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (a *Aggregator) TopMembersByVisits(ctx context.Context, limit int) ([]MemberRank, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := a.pool.Query(ctx, `
		SELECT m.id::text, m.name, COUNT(*)
		FROM members m
		JOIN appointments ap ON ap.member_id = m.id
		WHERE ap.status = 'completed'
		GROUP BY m.id, m.name
		ORDER BY 3 DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberRank
	for rows.Next() {
		var mr MemberRank
		if err := rows.Scan(&mr.MemberID, &mr.Name, &mr.Completed); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// fillDays expands sparse per-day revenue into a dense, oldest-first series
// of exactly windowDays entries starting at since.
func fillDays(since time.Time, windowDays int, byDay map[string]float64) []DayRevenue {
	out := make([]DayRevenue, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, DayRevenue{Day: day, Revenue: byDay[day]})
	}
	return out
}
