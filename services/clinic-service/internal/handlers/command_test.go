package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/outbox"
)

func newCommandEnv() (*memStore, *Handler) {
	ms := newMemStore()
	ms.state.treatments["tr1"] = "Hydrating Facial"
	h := New(ms, ms, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return ms, h
}

func seedRoster(ms *memStore, therapistIDs, memberIDs []string) {
	for _, id := range therapistIDs {
		ms.state.therapists[id] = model.Therapist{ID: id, Name: "Therapist " + id, IsActive: true}
	}
	for _, id := range memberIDs {
		ms.state.members[id] = model.Member{ID: id, Name: "Member " + id, IsActive: true}
	}
}

func doJSON(t *testing.T, fn http.HandlerFunc, method string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(method, "/", &buf))
	return rec
}

func createAppointment(t *testing.T, h *Handler, req appointmentRequest) string {
	t.Helper()
	rec := doJSON(t, h.Create, http.MethodPost, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("create returned no id")
	}
	return resp["id"]
}

var baseRequest = appointmentRequest{
	CustomerName: "Sari Wulandari",
	TreatmentID:  "tr1",
	TherapistID:  "t1",
	MemberID:     "m1",
	ScheduledAt:  "2026-04-01T09:30:00Z",
	Amount:       250,
	Notes:        "facial",
}

// Completing the same appointment twice must move the cumulative counters
// and write the history entry exactly once: the second call reads the
// stored status, computes zero deltas and succeeds as a no-op.
func TestChangeStatus_CompleteTwiceRecordsOnce(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1"}, []string{"m1"})

	req := baseRequest
	req.Status = "confirmed"
	id := createAppointment(t, h, req)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h.ChangeStatus, http.MethodPost, map[string]string{"id": id, "status": "completed"})
		if rec.Code != http.StatusOK {
			t.Fatalf("complete call %d: got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	therapist := ms.state.therapists["t1"]
	if therapist.ConfirmedCount != 0 || therapist.CompletedCount != 1 {
		t.Fatalf("therapist buckets: confirmed=%d completed=%d", therapist.ConfirmedCount, therapist.CompletedCount)
	}
	if therapist.TotalTreatments != 1 {
		t.Fatalf("total treatments = %d, want 1", therapist.TotalTreatments)
	}
	member := ms.state.members["m1"]
	if member.TotalVisits != 1 {
		t.Fatalf("member visits = %d, want 1", member.TotalVisits)
	}
	if member.LastVisit == nil {
		t.Fatal("member last visit not set")
	}
	if len(ms.state.history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(ms.state.history))
	}
	entry := ms.state.history[id]
	if entry.TreatmentName != "Hydrating Facial" || entry.TherapistName != "Therapist t1" {
		t.Fatalf("history entry = %+v", entry)
	}
}

// The status-changed event must describe the appointment after the
// transition, not before it.
func TestChangeStatus_EventCarriesNewStatus(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1"}, []string{"m1"})

	req := baseRequest
	req.Status = "confirmed"
	id := createAppointment(t, h, req)

	rec := doJSON(t, h.ChangeStatus, http.MethodPost, map[string]string{"id": id, "status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: got %d", rec.Code)
	}

	var changed *outbox.Event
	for i, evt := range ms.state.events {
		if evt.EventType == outbox.EventAppointmentStatusChanged {
			changed = &ms.state.events[i]
		}
	}
	if changed == nil {
		t.Fatal("no status-changed event staged")
	}
	var payload map[string]any
	if err := json.Unmarshal(changed.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "completed" {
		t.Fatalf("payload status = %v, want completed", payload["status"])
	}
	if payload["previous_status"] != "confirmed" || payload["new_status"] != "completed" {
		t.Fatalf("payload transition = %v -> %v", payload["previous_status"], payload["new_status"])
	}
}

// Editing a completed appointment onto a different therapist and member
// moves the live completed bucket but leaves the completion credit (total
// treatments, visits, history) where it was earned.
func TestUpdate_RehomingCompletedKeepsCreditWithOriginal(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1", "t2"}, []string{"m1", "m2"})

	req := baseRequest
	req.Status = "completed"
	id := createAppointment(t, h, req)

	update := struct {
		ID string `json:"id"`
		appointmentRequest
	}{ID: id, appointmentRequest: baseRequest}
	update.TherapistID = "t2"
	update.MemberID = "m2"
	update.Status = "completed"

	rec := doJSON(t, h.Update, http.MethodPut, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d: %s", rec.Code, rec.Body.String())
	}

	oldTherapist, newTherapist := ms.state.therapists["t1"], ms.state.therapists["t2"]
	if oldTherapist.CompletedCount != 0 || newTherapist.CompletedCount != 1 {
		t.Fatalf("completed buckets: t1=%d t2=%d", oldTherapist.CompletedCount, newTherapist.CompletedCount)
	}
	if oldTherapist.TotalTreatments != 1 || newTherapist.TotalTreatments != 0 {
		t.Fatalf("completion credit moved: t1=%d t2=%d", oldTherapist.TotalTreatments, newTherapist.TotalTreatments)
	}
	if ms.state.members["m1"].TotalVisits != 1 || ms.state.members["m2"].TotalVisits != 0 {
		t.Fatalf("visits: m1=%d m2=%d", ms.state.members["m1"].TotalVisits, ms.state.members["m2"].TotalVisits)
	}
	if len(ms.state.history) != 1 || ms.state.history[id].MemberID != "m1" {
		t.Fatalf("history must stay with the original member: %+v", ms.state.history)
	}

	appt := ms.state.appointments[id]
	if appt.TherapistID == nil || *appt.TherapistID != "t2" || appt.MemberID == nil || *appt.MemberID != "m2" {
		t.Fatalf("appointment refs not updated: %+v", appt)
	}
}

// A failing counter write aborts the whole command: the appointment row
// and the staged event must not survive the rollback.
func TestCreate_CounterWriteFailureRollsBackEverything(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1"}, []string{"m1"})
	ms.failTherapistSave = errors.New("write refused")

	req := baseRequest
	req.Status = "confirmed"
	rec := doJSON(t, h.Create, http.MethodPost, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(ms.state.appointments) != 0 {
		t.Fatalf("appointment row survived rollback: %+v", ms.state.appointments)
	}
	if len(ms.state.events) != 0 {
		t.Fatalf("events survived rollback: %+v", ms.state.events)
	}
	if ms.state.therapists["t1"].ConfirmedCount != 0 {
		t.Fatal("therapist counter survived rollback")
	}
}

// Deleting a completed appointment frees the live bucket but keeps the
// cumulative counters and the history entry.
func TestDelete_CompletedKeepsHistoryAndCredit(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1"}, []string{"m1"})

	req := baseRequest
	req.Status = "completed"
	id := createAppointment(t, h, req)

	rec := doJSON(t, h.Delete, http.MethodPost, map[string]string{"id": id})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ms.state.appointments) != 0 {
		t.Fatal("appointment row still present after delete")
	}
	therapist := ms.state.therapists["t1"]
	if therapist.CompletedCount != 0 || therapist.TotalTreatments != 1 {
		t.Fatalf("after delete: completed=%d treatments=%d", therapist.CompletedCount, therapist.TotalTreatments)
	}
	if ms.state.members["m1"].TotalVisits != 1 {
		t.Fatalf("visits = %d, want 1", ms.state.members["m1"].TotalVisits)
	}
	if len(ms.state.history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(ms.state.history))
	}
}

func TestUpdate_RejectsMissingStatus(t *testing.T) {
	ms, h := newCommandEnv()
	seedRoster(ms, []string{"t1"}, []string{"m1"})

	req := baseRequest
	req.Status = "completed"
	id := createAppointment(t, h, req)

	update := struct {
		ID string `json:"id"`
		appointmentRequest
	}{ID: id, appointmentRequest: baseRequest}
	update.Status = ""

	rec := doJSON(t, h.Update, http.MethodPut, update)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for omitted status, got %d", rec.Code)
	}
	if ms.state.appointments[id].Status != model.StatusCompleted {
		t.Fatal("rejected update still changed the stored status")
	}
}
