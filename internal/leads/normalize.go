package leads

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "IN"

// NormalizedLead is the canonical in-process lead shape. It is transient:
// the CRM owns the durable record.
type NormalizedLead struct {
	DisplayName string
	Email       string
	Phone       string
	Company     string
	Source      string

	// Extra carries unclassified payload fields through to the CRM,
	// keyed by CRM field name.
	Extra map[string]any
}

// LeadInput is the raw shape accepted from webhook payloads.
type LeadInput struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Company string         `json:"company"`
	Source  string         `json:"source"`
	Extra   map[string]any `json:"extra"`
}

// Normalize canonicalizes identity fields: emails are lower-cased and
// trimmed, phones formatted to E.164 where parseable.
func Normalize(in LeadInput) NormalizedLead {
	return NormalizedLead{
		DisplayName: strings.TrimSpace(in.Name),
		Email:       NormalizeEmail(in.Email),
		Phone:       NormalizePhone(in.Phone),
		Company:     strings.TrimSpace(in.Company),
		Source:      strings.TrimSpace(in.Source),
		Extra:       in.Extra,
	}
}

// HasIdentity reports whether the lead carries at least one identity
// field usable for deduplication.
func (l NormalizedLead) HasIdentity() bool {
	return l.Email != "" || l.Phone != ""
}

func NormalizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// NormalizePhone formats a phone number to E.164. If parsing fails, it
// falls back to stripping everything but digits and a leading plus.
func NormalizePhone(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err == nil && phonenumbers.IsValidNumber(number) {
		return phonenumbers.Format(number, phonenumbers.E164)
	}

	return digitsAndPlus(trimmed)
}

func digitsAndPlus(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
