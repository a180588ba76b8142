package handlers

import (
	"net/http"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/stats"
)

type statsResponse struct {
	Pending          int                   `json:"pending"`
	Confirmed        int                   `json:"confirmed"`
	Completed        int                   `json:"completed"`
	Total            int                   `json:"total"`
	TotalRevenue     float64               `json:"totalRevenue"`
	CompletedRevenue float64               `json:"completedRevenue"`
	RevenueHistory   []stats.DayRevenue    `json:"revenueHistory"`
	TopTherapists    []stats.TherapistRank `json:"topTherapists"`
	TopMembers       []stats.MemberRank    `json:"topMembers"`
}

// Stats is the only rollup surface; the admin UI must not keep its own
// counters. Everything here is recomputed from appointment rows per call.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	counts, err := h.stats.CountsByStatus(ctx)
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	totalRevenue, err := h.stats.TotalRevenue(ctx, "")
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	completedRevenue, err := h.stats.TotalRevenue(ctx, string(model.StatusCompleted))
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	windowDays := parseLimit(r.URL.Query().Get("window_days"), 7, 90)
	history, err := h.stats.RevenueByDay(ctx, windowDays)
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	topTherapists, err := h.stats.TopTherapists(ctx, 5)
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	topMembers, err := h.stats.TopMembersByVisits(ctx, 5)
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Pending:          counts.Pending,
		Confirmed:        counts.Confirmed,
		Completed:        counts.Completed,
		Total:            counts.Total,
		TotalRevenue:     totalRevenue,
		CompletedRevenue: completedRevenue,
		RevenueHistory:   history,
		TopTherapists:    topTherapists,
		TopMembers:       topMembers,
	})
}
