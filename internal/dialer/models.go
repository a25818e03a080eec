package dialer

import (
	"time"

	"leadcall-platform/internal/callog"
)

// CallRecord tracks one scheduled outbound call chain through its
// attempts. State lives in the scheduler; the journal keeps history.
type CallRecord struct {
	CallID string `json:"call_id"`
	LeadID string `json:"lead_id"`
	Phone  string `json:"phone"`

	Status callog.Status `json:"status"`

	// Attempts counts dials made so far.
	Attempts int `json:"attempts"`

	// NextAttemptAt is set while a retry timer is armed.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`

	ProviderCallID string `json:"provider_call_id,omitempty"`
	LastError      string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats is a point-in-time census of the scheduler's records.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Dialing   int `json:"dialing"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}
