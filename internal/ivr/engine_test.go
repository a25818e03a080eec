package ivr

import "testing"

func TestDecide_KnownDigits(t *testing.T) {
	e := NewEngine()

	cases := map[string]string{
		"1": "Interested",
		"2": "Call Back Later",
		"3": "Not Interested",
	}
	for digit, want := range cases {
		d := e.Decide(digit, 0)
		if d.LeadStatus != want {
			t.Errorf("digit %s: got status %q, want %q", digit, d.LeadStatus, want)
		}
		if d.Replay {
			t.Errorf("digit %s: should not replay", digit)
		}
		if d.Say == "" {
			t.Errorf("digit %s: expected a spoken reply", digit)
		}
	}
}

func TestDecide_TrimsInput(t *testing.T) {
	e := NewEngine()
	if d := e.Decide(" 1 ", 0); d.LeadStatus != "Interested" {
		t.Errorf("expected trimmed digit to match, got %+v", d)
	}
}

func TestDecide_UnknownDigitReplays(t *testing.T) {
	e := NewEngine()

	d := e.Decide("9", 0)
	if !d.Replay || d.LeadStatus != "" {
		t.Errorf("unknown digit should replay without status, got %+v", d)
	}

	// Replay budget spent: end the call instead of looping forever.
	d = e.Decide("9", 2)
	if d.Replay {
		t.Errorf("expected hangup after max replays, got %+v", d)
	}
}

func TestSetChoice(t *testing.T) {
	e := NewEngine()
	e.SetChoice("4", Choice{LeadStatus: "Escalated", Reply: "Connecting you."})

	if d := e.Decide("4", 0); d.LeadStatus != "Escalated" {
		t.Errorf("custom choice not honored: %+v", d)
	}

	e.SetChoice("  ", Choice{LeadStatus: "x"})
	if d := e.Decide("", 0); d.LeadStatus != "" {
		t.Errorf("blank digit must not be registrable: %+v", d)
	}
}
