package reporting

import (
	"context"
	"testing"
	"time"

	"leadcall-platform/internal/callog"
)

func seededJournal(t *testing.T, base time.Time) *callog.MemoryRepo {
	t.Helper()
	j := callog.NewMemoryRepo()
	ctx := context.Background()

	entries := []callog.Entry{
		{CallID: "c1", LeadID: "lead-1", Attempt: 1, Status: callog.StatusFailed, CreatedAt: base.Add(time.Hour)},
		{CallID: "c1", LeadID: "lead-1", Attempt: 2, Status: callog.StatusSuccess, DurationSeconds: 120, CreatedAt: base.Add(2 * time.Hour)},
		{CallID: "c2", LeadID: "lead-2", Attempt: 1, Status: callog.StatusCancelled, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, e := range entries {
		if _, err := j.RecordAttempt(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return j
}

func TestCallOutcomes(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewService(seededJournal(t, base))

	rep, err := s.CallOutcomes(context.Background(), TimeRange{From: base, To: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if rep.Summary.TotalAttempts != 3 || rep.Summary.Successful != 1 || rep.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
	if rep.Summary.TotalDurationSeconds != 120 {
		t.Errorf("duration: got %d", rep.Summary.TotalDurationSeconds)
	}
}

func TestCallOutcomes_InvalidRange(t *testing.T) {
	s := NewService(callog.NewMemoryRepo())
	now := time.Now()

	for _, r := range []TimeRange{
		{},
		{From: now},
		{From: now, To: now},
		{From: now, To: now.Add(-time.Hour)},
	} {
		if _, err := s.CallOutcomes(context.Background(), r); err != ErrInvalidRequest {
			t.Errorf("range %+v: expected ErrInvalidRequest, got %v", r, err)
		}
	}
}

func TestHistoryForLead(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewService(seededJournal(t, base))

	h, err := s.HistoryForLead(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(h.Attempts))
	}
	if h.Attempts[0].Attempt != 1 || h.Attempts[1].Attempt != 2 {
		t.Errorf("attempts out of order: %+v", h.Attempts)
	}

	if _, err := s.HistoryForLead(context.Background(), ""); err != ErrInvalidRequest {
		t.Errorf("expected ErrInvalidRequest for empty lead, got %v", err)
	}
}
