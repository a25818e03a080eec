package reporting

import (
	"context"
	"errors"
	"time"

	"leadcall-platform/internal/callog"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// TimeRange bounds a report; half-open [From, To).
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// OutcomeReport aggregates dial outcomes over a window.
type OutcomeReport struct {
	Range   TimeRange      `json:"range"`
	Summary callog.Summary `json:"summary"`
}

// LeadHistory is the attempt trail for one lead.
type LeadHistory struct {
	LeadID   string         `json:"lead_id"`
	Attempts []callog.Entry `json:"attempts"`
}

// Service reads reports off the call journal. Reads only; the journal
// is written by the dialer.
type Service struct {
	journal callog.Repository
}

func NewService(journal callog.Repository) *Service { return &Service{journal: journal} }

func (s *Service) CallOutcomes(ctx context.Context, r TimeRange) (OutcomeReport, error) {
	if !r.valid() {
		return OutcomeReport{}, ErrInvalidRequest
	}
	if s.journal == nil {
		return OutcomeReport{}, errors.New("reporting: journal not configured")
	}

	sum, err := s.journal.Summarize(ctx, r.From, r.To)
	if err != nil {
		return OutcomeReport{}, err
	}
	return OutcomeReport{Range: r, Summary: sum}, nil
}

func (s *Service) HistoryForLead(ctx context.Context, leadID string) (LeadHistory, error) {
	if leadID == "" {
		return LeadHistory{}, ErrInvalidRequest
	}
	if s.journal == nil {
		return LeadHistory{}, errors.New("reporting: journal not configured")
	}

	entries, err := s.journal.ListByLead(ctx, leadID)
	if err != nil {
		return LeadHistory{}, err
	}
	return LeadHistory{LeadID: leadID, Attempts: entries}, nil
}
