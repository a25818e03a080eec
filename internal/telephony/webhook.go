package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsing for provider voice callbacks. Providers send
// application/x-www-form-urlencoded; our call_id rides the query string.
//
// Business logic (IVR decisions, retry scheduling) is not made here.

// GatherCallback is a digit-press event.
type GatherCallback struct {
	CallID         string
	ProviderCallID string
	Digits         string
}

// StatusCallback is a call lifecycle event.
type StatusCallback struct {
	CallID         string
	ProviderCallID string

	// Status is the provider's call status, lower-cased
	// (e.g. "completed", "busy", "no-answer", "failed").
	Status string

	DurationSeconds int
}

func ParseGatherCallback(r *http.Request) (GatherCallback, error) {
	if err := r.ParseForm(); err != nil {
		return GatherCallback{}, err
	}
	return GatherCallback{
		CallID:         r.URL.Query().Get("call_id"),
		ProviderCallID: r.PostFormValue("CallSid"),
		Digits:         strings.TrimSpace(r.PostFormValue("Digits")),
	}, nil
}

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	duration, _ := strconv.Atoi(r.PostFormValue("CallDuration"))
	return StatusCallback{
		CallID:          r.URL.Query().Get("call_id"),
		ProviderCallID:  r.PostFormValue("CallSid"),
		Status:          strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		DurationSeconds: duration,
	}, nil
}

// IsAnswered reports whether a terminal status means a human picked up.
func (s StatusCallback) IsAnswered() bool {
	return s.Status == "completed" || s.Status == "in-progress" || s.Status == "answered"
}

// IsTerminalFailure reports statuses worth a retry.
func (s StatusCallback) IsTerminalFailure() bool {
	switch s.Status {
	case "busy", "no-answer", "failed", "canceled":
		return true
	}
	return false
}
