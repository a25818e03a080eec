package leads

import (
	"context"
	"fmt"
	"log/slog"

	"leadcall-platform/internal/crm"
)

// Searcher is the CRM lookup capability the detector needs.
// Satisfied by *crm.Client.
type Searcher interface {
	SearchByField(ctx context.Context, field, value string) (crm.Record, error)
}

// Match is a found duplicate and how it was identified.
type Match struct {
	Record    crm.Record
	MatchedBy string
}

const (
	MatchedByEmail = "email"
	MatchedByPhone = "phone"
)

// Detector searches the CRM for an existing record matching a lead.
//
// Search errors are returned, not swallowed; callers decide whether to
// fail open. The upsert pipeline does: a duplicate lead beats a lost one.
type Detector struct {
	crm Searcher
	log *slog.Logger
}

func NewDetector(searcher Searcher, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{crm: searcher, log: log}
}

// FindDuplicate searches by email first, then phone; the first match
// wins. Returns (nil, nil) when nothing matches.
func (d *Detector) FindDuplicate(ctx context.Context, lead NormalizedLead) (*Match, error) {
	if lead.Email != "" {
		rec, err := d.crm.SearchByField(ctx, "Email", lead.Email)
		if err != nil {
			return nil, fmt.Errorf("duplicate search by email: %w", err)
		}
		if rec != nil {
			return &Match{Record: rec, MatchedBy: MatchedByEmail}, nil
		}
	}

	if lead.Phone != "" {
		rec, err := d.crm.SearchByField(ctx, "Phone", lead.Phone)
		if err != nil {
			return nil, fmt.Errorf("duplicate search by phone: %w", err)
		}
		if rec != nil {
			return &Match{Record: rec, MatchedBy: MatchedByPhone}, nil
		}
	}

	return nil, nil
}
