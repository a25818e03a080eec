package leads

import (
	"errors"
	"strings"
	"sync"

	"leadcall-platform/internal/crm"
)

// Tier classifies who owns writes to a CRM field.
type Tier string

const (
	// TierSystemOwned fields are always written by automation.
	TierSystemOwned Tier = "system_owned"
	// TierHumanOwned fields are protected once a person has set them.
	TierHumanOwned Tier = "human_owned"
	// TierShared fields accept last-write-wins from either side.
	TierShared Tier = "shared"
	// TierSystemManaged fields belong to the CRM itself and are never
	// written by this service.
	TierSystemManaged Tier = "system_managed"
	// TierUnknown is any unclassified field; permissive by default so
	// new custom fields flow through rather than silently dropping.
	TierUnknown Tier = "unknown"
)

var ErrInvalidTier = errors.New("leads: invalid ownership tier")

// FieldProtector filters automated update payloads so they never clobber
// human-curated CRM fields.
//
// Pure and synchronous; RegisterField is the only mutation.
type FieldProtector struct {
	mu    sync.RWMutex
	tiers map[string]Tier
}

func NewFieldProtector() *FieldProtector {
	return &FieldProtector{tiers: map[string]Tier{
		// Identity and intake fields automation keeps current.
		"First_Name":  TierSystemOwned,
		"Last_Name":   TierSystemOwned,
		"Email":       TierSystemOwned,
		"Phone":       TierSystemOwned,
		"Mobile":      TierSystemOwned,
		"Company":     TierSystemOwned,
		"Lead_Source": TierSystemOwned,
		"Website":     TierSystemOwned,

		// Sales-team judgement; never overwritten once set.
		"Lead_Status":      TierHumanOwned,
		"Rating":           TierHumanOwned,
		"Owner":            TierHumanOwned,
		"Industry":         TierHumanOwned,
		"Annual_Revenue":   TierHumanOwned,
		"No_of_Employees":  TierHumanOwned,
		"Next_Follow_Up":   TierHumanOwned,
		"Qualification_Notes": TierHumanOwned,

		// Either side may update; last write wins.
		"Description": TierShared,
		"Street":      TierShared,
		"City":        TierShared,
		"State":       TierShared,
		"Zip_Code":    TierShared,
		"Country":     TierShared,

		// CRM bookkeeping; writes are rejected upstream anyway.
		"id":            TierSystemManaged,
		"Created_Time":  TierSystemManaged,
		"Modified_Time": TierSystemManaged,
		"Created_By":    TierSystemManaged,
		"Modified_By":   TierSystemManaged,
	}}
}

// Tier returns the classification for a field name.
func (p *FieldProtector) Tier(name string) Tier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.tiers[name]; ok {
		return t
	}
	return TierUnknown
}

// RegisterField classifies a custom field at runtime. System-managed is
// not externally assignable.
func (p *FieldProtector) RegisterField(name string, tier Tier) error {
	switch tier {
	case TierSystemOwned, TierHumanOwned, TierShared:
	default:
		return ErrInvalidTier
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("leads: field name required")
	}

	p.mu.Lock()
	p.tiers[name] = tier
	p.mu.Unlock()
	return nil
}

// FilterUpdate returns the subset of newData that automation may write.
//
// Priority order:
//  1. system-owned and shared fields pass through
//  2. human-owned fields are dropped when updating a record that already
//     has a non-empty value for them
//  3. system-managed fields are always dropped
//  4. unknown fields pass through
//
// Nil values in newData are always skipped.
func (p *FieldProtector) FilterUpdate(newData, existing crm.Record, isUpdate bool) crm.Record {
	out := crm.Record{}
	for name, value := range newData {
		if value == nil {
			continue
		}

		switch p.Tier(name) {
		case TierSystemOwned, TierShared, TierUnknown:
			out[name] = value
		case TierSystemManaged:
			// never ours to write
		case TierHumanOwned:
			if isUpdate && existing != nil && hasHumanValue(existing[name]) {
				continue
			}
			out[name] = value
		}
	}
	return out
}

// hasHumanValue reports whether an existing field holds a meaningful
// human-set value. Empty strings and the literal string "null" (seen in
// CRM exports) count as empty.
func hasHumanValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		s := strings.TrimSpace(t)
		return s != "" && !strings.EqualFold(s, "null")
	default:
		return true
	}
}
