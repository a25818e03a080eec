package callog

import "time"

// Entry is one dial attempt, append-only.
//
// Provider-specific fields (like the Twilio CallSid) live in
// provider_call_id, not mixed into the provider-agnostic core.
type Entry struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`
	LeadID string `json:"lead_id" db:"lead_id"`

	Phone   string `json:"phone" db:"phone"`
	Attempt int    `json:"attempt" db:"attempt"`

	Status Status `json:"status" db:"status"`

	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// DurationSeconds is populated from the provider status callback.
	DurationSeconds int `json:"duration" db:"duration"`

	// Error holds the dial failure message, if any.
	Error string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusDialing   Status = "dialing"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further attempts follow this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Summary aggregates attempt outcomes over a time window.
type Summary struct {
	TotalAttempts int `json:"total_attempts"`
	Successful    int `json:"successful"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	Cancelled     int `json:"cancelled"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectRate is successful over total, 0 when no attempts.
	ConnectRate float64 `json:"connect_rate"`
}
