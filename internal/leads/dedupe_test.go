package leads

import (
	"context"
	"errors"
	"testing"

	"leadcall-platform/internal/crm"
)

type stubSearcher struct {
	byField map[string]crm.Record
	err     error
	queries []string
}

func (s *stubSearcher) SearchByField(ctx context.Context, field, value string) (crm.Record, error) {
	s.queries = append(s.queries, field)
	if s.err != nil {
		return nil, s.err
	}
	return s.byField[field], nil
}

func TestFindDuplicate_EmailWins(t *testing.T) {
	s := &stubSearcher{byField: map[string]crm.Record{
		"Email": {"id": "e1"},
		"Phone": {"id": "p1"},
	}}
	d := NewDetector(s, nil)

	m, err := d.FindDuplicate(context.Background(), NormalizedLead{Email: "a@b.com", Phone: "+919876543210"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m == nil || m.Record.ID() != "e1" || m.MatchedBy != MatchedByEmail {
		t.Fatalf("expected email match e1, got %+v", m)
	}
	if len(s.queries) != 1 {
		t.Fatalf("phone search should be skipped after email hit, got %v", s.queries)
	}
}

func TestFindDuplicate_FallsBackToPhone(t *testing.T) {
	s := &stubSearcher{byField: map[string]crm.Record{
		"Phone": {"id": "p1"},
	}}
	d := NewDetector(s, nil)

	m, err := d.FindDuplicate(context.Background(), NormalizedLead{Email: "a@b.com", Phone: "+919876543210"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m == nil || m.Record.ID() != "p1" || m.MatchedBy != MatchedByPhone {
		t.Fatalf("expected phone match p1, got %+v", m)
	}
}

func TestFindDuplicate_NoMatch(t *testing.T) {
	d := NewDetector(&stubSearcher{}, nil)

	m, err := d.FindDuplicate(context.Background(), NormalizedLead{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m != nil {
		t.Fatalf("expected no match, got %+v", m)
	}
}

func TestFindDuplicate_SearchErrorPropagates(t *testing.T) {
	boom := errors.New("crm down")
	d := NewDetector(&stubSearcher{err: boom}, nil)

	_, err := d.FindDuplicate(context.Background(), NormalizedLead{Email: "a@b.com"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped search error, got %v", err)
	}
}
