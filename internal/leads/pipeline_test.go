package leads

import (
	"context"
	"errors"
	"testing"

	"leadcall-platform/internal/crm"
)

type stubWriter struct {
	created   []crm.Record
	updated   map[string]crm.Record
	createErr error
	updateErr error
}

func (w *stubWriter) Create(ctx context.Context, data crm.Record) (string, error) {
	if w.createErr != nil {
		return "", w.createErr
	}
	w.created = append(w.created, data)
	return "new-1", nil
}

func (w *stubWriter) Update(ctx context.Context, id string, data crm.Record) (string, error) {
	if w.updateErr != nil {
		return "", w.updateErr
	}
	if w.updated == nil {
		w.updated = map[string]crm.Record{}
	}
	w.updated[id] = data
	return id, nil
}

func newTestPipeline(s *stubSearcher, w *stubWriter) *Pipeline {
	return NewPipeline(NewDetector(s, nil), w, NewFieldProtector(), nil)
}

func TestProcessLead_RequiresIdentity(t *testing.T) {
	p := newTestPipeline(&stubSearcher{}, &stubWriter{})

	_, err := p.ProcessLead(context.Background(), NormalizedLead{DisplayName: "No Contact"})
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestProcessLead_CreatesWhenNoMatch(t *testing.T) {
	w := &stubWriter{}
	p := newTestPipeline(&stubSearcher{}, w)

	res, err := p.ProcessLead(context.Background(), NormalizedLead{
		Email:  "a@b.com",
		Source: "website",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Action != ActionCreated || res.RecordID != "new-1" {
		t.Fatalf("expected create, got %+v", res)
	}
	if len(w.created) != 1 {
		t.Fatalf("expected one create, got %d", len(w.created))
	}
	payload := w.created[0]
	if payload["Last_Name"] != "Unknown" {
		t.Errorf("missing name should default Last_Name, got %v", payload["Last_Name"])
	}
	if payload["Email"] != "a@b.com" || payload["Lead_Source"] != "website" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestProcessLead_UpdatesWithProtection(t *testing.T) {
	s := &stubSearcher{byField: map[string]crm.Record{
		"Email": {"id": "42", "Lead_Status": "Qualified"},
	}}
	w := &stubWriter{}
	p := newTestPipeline(s, w)

	res, err := p.ProcessLead(context.Background(), NormalizedLead{
		DisplayName: "Asha",
		Email:       "a@b.com",
		Extra:       map[string]any{"Lead_Status": "New"},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Action != ActionUpdated || res.RecordID != "42" || res.MatchedBy != MatchedByEmail {
		t.Fatalf("expected update of 42 via email, got %+v", res)
	}
	data := w.updated["42"]
	if _, ok := data["Lead_Status"]; ok {
		t.Error("human-owned Lead_Status must survive the update")
	}
	if data["Last_Name"] != "Asha" {
		t.Errorf("expected Last_Name write, got %v", data)
	}
}

func TestProcessLead_SkipsWriteWhenFullyProtected(t *testing.T) {
	s := &stubSearcher{byField: map[string]crm.Record{
		"Email": {"id": "42", "Last_Name": "Rao", "Email": "a@b.com"},
	}}
	w := &stubWriter{}
	p := newTestPipeline(s, w)
	if err := p.protector.RegisterField("Last_Name", TierHumanOwned); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.protector.RegisterField("Email", TierHumanOwned); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := p.ProcessLead(context.Background(), NormalizedLead{
		DisplayName: "Asha",
		Email:       "a@b.com",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Action != ActionUpdated || res.RecordID != "42" {
		t.Fatalf("expected no-op update result, got %+v", res)
	}
	if len(w.updated) != 0 {
		t.Fatalf("expected no CRM write, got %v", w.updated)
	}
}

func TestProcessLead_SearchFailureFallsBackToCreate(t *testing.T) {
	w := &stubWriter{}
	p := newTestPipeline(&stubSearcher{err: errors.New("crm down")}, w)

	res, err := p.ProcessLead(context.Background(), NormalizedLead{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Action != ActionCreated {
		t.Fatalf("search failure should fail open to create, got %+v", res)
	}
}

func TestProcessLead_WriteErrorPropagates(t *testing.T) {
	boom := errors.New("write failed")
	p := newTestPipeline(&stubSearcher{}, &stubWriter{createErr: boom})

	_, err := p.ProcessLead(context.Background(), NormalizedLead{Email: "a@b.com"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
}
