package telephony

import "context"

// CallProvider is the provider-agnostic outbound dialing interface.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; raw provider payloads
//   stay inside the adapter.
type CallProvider interface {
	Name() string
	MakeCall(ctx context.Context, req MakeCallRequest) (MakeCallResult, error)
}

// MakeCallRequest asks the provider to originate one outbound call.
type MakeCallRequest struct {
	// To is the callee, E.164 where possible.
	To string `json:"to"`

	// CallID is our identifier for the attempt, echoed back on webhooks
	// via the callback URLs.
	CallID string `json:"call_id"`

	// AnswerURL is fetched by the provider when the callee answers.
	AnswerURL string `json:"answer_url"`
	// StatusCallbackURL receives terminal call status events.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`

	// TimeoutSeconds bounds how long the provider lets the phone ring.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// MakeCallResult reports how origination went at the provider boundary.
type MakeCallResult struct {
	// ProviderCallID is the provider's identifier for the call leg.
	ProviderCallID string `json:"provider_call_id"`

	// Status is the provider's initial status (e.g. "queued", "ringing").
	Status string `json:"status"`

	// Skipped is set when the adapter declined to dial without error,
	// e.g. no provider configured. Reason says why.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
