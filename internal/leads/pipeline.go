package leads

import (
	"context"
	"errors"
	"log/slog"

	"leadcall-platform/internal/crm"
)

// Writer is the CRM write capability the pipeline needs.
// Satisfied by *crm.Client.
type Writer interface {
	Create(ctx context.Context, data crm.Record) (string, error)
	Update(ctx context.Context, id string, data crm.Record) (string, error)
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Result describes what the upsert did.
type Result struct {
	Action    string `json:"action"`
	RecordID  string `json:"recordId"`
	MatchedBy string `json:"matchedBy,omitempty"`
}

var ErrMissingIdentity = errors.New("leads: email or phone required")

// Pipeline upserts normalized leads into the CRM: duplicate search, then
// a protected update or a create.
//
// Ordering invariant: the duplicate search always happens before any
// write. There is no compare-and-swap; two concurrent identical
// submissions can still race to two records. The idempotency guard
// upstream absorbs exact retries.
type Pipeline struct {
	detector  *Detector
	crm       Writer
	protector *FieldProtector
	log       *slog.Logger
}

func NewPipeline(detector *Detector, writer Writer, protector *FieldProtector, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{detector: detector, crm: writer, protector: protector, log: log}
}

// ProcessLead validates, dedupes and writes one lead.
//
// A failed duplicate search is logged and treated as no-match
// (fail-open); a failed create/update propagates.
func (p *Pipeline) ProcessLead(ctx context.Context, lead NormalizedLead) (Result, error) {
	if !lead.HasIdentity() {
		return Result{}, ErrMissingIdentity
	}

	payload := crmPayload(lead)

	match, err := p.detector.FindDuplicate(ctx, lead)
	if err != nil {
		p.log.Warn("duplicate detection failed, treating lead as new", "err", err)
		match = nil
	}

	if match != nil {
		data := p.protector.FilterUpdate(payload, match.Record, true)
		if len(data) == 0 {
			// Everything we wanted to write is protected; nothing to do.
			p.log.Debug("lead update fully protected, skipping write", "record_id", match.Record.ID())
			return Result{Action: ActionUpdated, RecordID: match.Record.ID(), MatchedBy: match.MatchedBy}, nil
		}

		id, err := p.crm.Update(ctx, match.Record.ID(), data)
		if err != nil {
			return Result{}, err
		}
		p.log.Info("lead updated", "record_id", id, "matched_by", match.MatchedBy)
		return Result{Action: ActionUpdated, RecordID: id, MatchedBy: match.MatchedBy}, nil
	}

	data := p.protector.FilterUpdate(payload, nil, false)
	id, err := p.crm.Create(ctx, data)
	if err != nil {
		return Result{}, err
	}
	p.log.Info("lead created", "record_id", id, "source", lead.Source)
	return Result{Action: ActionCreated, RecordID: id}, nil
}

// crmPayload maps a normalized lead onto CRM field names.
func crmPayload(lead NormalizedLead) crm.Record {
	out := crm.Record{}
	for k, v := range lead.Extra {
		out[k] = v
	}

	name := lead.DisplayName
	if name == "" {
		// Last_Name is mandatory in the CRM.
		name = "Unknown"
	}
	out["Last_Name"] = name

	if lead.Email != "" {
		out["Email"] = lead.Email
	}
	if lead.Phone != "" {
		out["Phone"] = lead.Phone
	}
	if lead.Company != "" {
		out["Company"] = lead.Company
	}
	if lead.Source != "" {
		out["Lead_Source"] = lead.Source
	}
	return out
}
