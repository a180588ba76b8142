package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dwiratna/bellaclinic/services/clinic-service/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestParseAppointmentRequest(t *testing.T) {
	base := appointmentRequest{
		CustomerName: "  Sari Wulandari ",
		TreatmentID:  "a3f2b6e0-0000-0000-0000-000000000001",
		TherapistID:  "a3f2b6e0-0000-0000-0000-000000000002",
		MemberID:     "",
		ScheduledAt:  "2026-04-01T09:30:00Z",
		Amount:       250,
		Status:       "",
		Notes:        "facial",
	}

	appt, err := parseAppointmentRequest(base, model.StatusPending)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if appt.CustomerName != "Sari Wulandari" {
		t.Fatalf("customer name not trimmed: %q", appt.CustomerName)
	}
	if appt.MemberID != nil {
		t.Fatal("empty member_id must stay nil (walk-in)")
	}
	if appt.TherapistID == nil {
		t.Fatal("therapist_id lost")
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("expected default status pending, got %s", appt.Status)
	}
}

func TestParseAppointmentRequest_Errors(t *testing.T) {
	valid := appointmentRequest{
		CustomerName: "A",
		TreatmentID:  "tr1",
		ScheduledAt:  "2026-04-01T09:30:00Z",
		Amount:       10,
	}

	tests := []struct {
		name   string
		mutate func(*appointmentRequest)
	}{
		{"missing customer name", func(r *appointmentRequest) { r.CustomerName = " " }},
		{"missing treatment", func(r *appointmentRequest) { r.TreatmentID = "" }},
		{"bad date", func(r *appointmentRequest) { r.ScheduledAt = "tomorrow" }},
		{"negative amount", func(r *appointmentRequest) { r.Amount = -1 }},
		{"unknown status", func(r *appointmentRequest) { r.Status = "done" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if _, err := parseAppointmentRequest(req, model.StatusPending); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"pending", "confirmed", "completed"} {
		if _, err := model.ParseStatus(raw); err != nil {
			t.Fatalf("%s should parse: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "deleted", "Done", "CONFIRMED "} {
		if _, err := model.ParseStatus(raw); err == nil {
			t.Fatalf("%q should not parse", raw)
		}
	}
}

func testHandler() *Handler {
	return &Handler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestWithConflictRetry_RetriesSerializationFailures(t *testing.T) {
	h := testHandler()
	attempts := 0
	err := h.withConflictRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithConflictRetry_GivesUpEventually(t *testing.T) {
	h := testHandler()
	attempts := 0
	err := h.withConflictRetry(context.Background(), func(context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected the conflict to surface, got %v", err)
	}
	if attempts != maxTxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxTxAttempts, attempts)
	}
}

func TestWithConflictRetry_DoesNotRetryCallerErrors(t *testing.T) {
	h := testHandler()
	attempts := 0
	sentinel := errors.New("boom")
	err := h.withConflictRetry(context.Background(), func(context.Context) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("caller errors must not be retried, got %d attempts", attempts)
	}
}

func TestSameRef(t *testing.T) {
	a, b := "x", "x"
	c := "y"
	if !sameRef(nil, nil) || !sameRef(&a, &b) {
		t.Fatal("equal refs reported different")
	}
	if sameRef(&a, nil) || sameRef(nil, &a) || sameRef(&a, &c) {
		t.Fatal("different refs reported equal")
	}
}

func TestParseLimit(t *testing.T) {
	if got := parseLimit("", 50, 200); got != 50 {
		t.Fatalf("empty: got %d", got)
	}
	if got := parseLimit("25", 50, 200); got != 25 {
		t.Fatalf("valid: got %d", got)
	}
	if got := parseLimit("9999", 50, 200); got != 50 {
		t.Fatalf("over max: got %d", got)
	}
	if got := parseLimit("-3", 50, 200); got != 50 {
		t.Fatalf("negative: got %d", got)
	}
}
