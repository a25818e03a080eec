package ivr

import "strings"

// Engine maps IVR keypresses to lead outcomes.
//
// Return a decision only. No side effects (no CRM writes, no provider
// calls); the HTTP layer applies the decision.

// Choice is one menu option.
type Choice struct {
	// LeadStatus is written to the CRM when this option is chosen.
	LeadStatus string `json:"lead_status"`
	// Reply is spoken back to the caller.
	Reply string `json:"reply"`
}

// Decision is the provider-agnostic output of a keypress evaluation.
type Decision struct {
	// Digit is the keypress that produced this decision, empty on replay.
	Digit string `json:"digit,omitempty"`

	// LeadStatus to record in the CRM; empty means no CRM write.
	LeadStatus string `json:"lead_status,omitempty"`

	// Say is spoken before hanging up or replaying.
	Say string `json:"say"`

	// Replay repeats the menu instead of hanging up.
	Replay bool `json:"replay"`
}

type Engine struct {
	prompt     string
	menu       map[string]Choice
	maxReplays int
}

// NewEngine builds the engine with the stock qualification menu.
func NewEngine() *Engine {
	return &Engine{
		prompt: "Thank you for your interest. Press 1 if you would like to speak with our team. " +
			"Press 2 to be called back later. Press 3 to opt out.",
		menu: map[string]Choice{
			"1": {LeadStatus: "Interested", Reply: "Great, our team will reach out to you shortly. Goodbye."},
			"2": {LeadStatus: "Call Back Later", Reply: "No problem, we will call you back later. Goodbye."},
			"3": {LeadStatus: "Not Interested", Reply: "You have been opted out. Goodbye."},
		},
		maxReplays: 2,
	}
}

// Prompt is the menu text spoken when the callee answers.
func (e *Engine) Prompt() string { return e.prompt }

// SetChoice installs or replaces a menu option.
func (e *Engine) SetChoice(digit string, c Choice) {
	digit = strings.TrimSpace(digit)
	if digit == "" {
		return
	}
	e.menu[digit] = c
}

// Decide evaluates a keypress. Unrecognized or empty digits replay the
// menu; after maxReplays the call is politely ended.
func (e *Engine) Decide(digits string, replays int) Decision {
	digits = strings.TrimSpace(digits)

	if c, ok := e.menu[digits]; ok {
		return Decision{Digit: digits, LeadStatus: c.LeadStatus, Say: c.Reply}
	}

	if replays >= e.maxReplays {
		return Decision{Say: "Sorry, we did not receive a valid response. Goodbye."}
	}
	return Decision{Say: "Sorry, that was not a valid option.", Replay: true}
}
