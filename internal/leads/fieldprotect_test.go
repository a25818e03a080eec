package leads

import (
	"testing"

	"leadcall-platform/internal/crm"
)

func TestFilterUpdate_ProtectsHumanOwnedOnUpdate(t *testing.T) {
	p := NewFieldProtector()

	existing := crm.Record{"id": "1", "Lead_Status": "Qualified", "Email": "old@b.com"}
	got := p.FilterUpdate(crm.Record{
		"Lead_Status": "New",
		"Email":       "new@b.com",
	}, existing, true)

	if _, ok := got["Lead_Status"]; ok {
		t.Error("Lead_Status with existing value must not be overwritten")
	}
	if got["Email"] != "new@b.com" {
		t.Errorf("system-owned Email should pass through, got %v", got["Email"])
	}
}

func TestFilterUpdate_HumanOwnedPassesWhenExistingEmpty(t *testing.T) {
	p := NewFieldProtector()

	for _, existing := range []crm.Record{
		{"Rating": ""},
		{"Rating": "null"},
		{"Rating": nil},
		{},
	} {
		got := p.FilterUpdate(crm.Record{"Rating": "Hot"}, existing, true)
		if got["Rating"] != "Hot" {
			t.Errorf("existing=%v: Rating should pass through, got %v", existing["Rating"], got)
		}
	}
}

func TestFilterUpdate_CreatePassesHumanOwnedThrough(t *testing.T) {
	p := NewFieldProtector()

	got := p.FilterUpdate(crm.Record{"Lead_Status": "New", "Last_Name": "Rao"}, nil, false)
	if got["Lead_Status"] != "New" || got["Last_Name"] != "Rao" {
		t.Errorf("create should not protect anything, got %v", got)
	}
}

func TestFilterUpdate_DropsSystemManagedAndNil(t *testing.T) {
	p := NewFieldProtector()

	got := p.FilterUpdate(crm.Record{
		"id":            "9",
		"Modified_Time": "2026-01-01",
		"Company":       nil,
		"Description":   "note",
	}, crm.Record{}, true)

	if len(got) != 1 || got["Description"] != "note" {
		t.Errorf("expected only Description, got %v", got)
	}
}

func TestFilterUpdate_UnknownFieldsPassThrough(t *testing.T) {
	p := NewFieldProtector()

	got := p.FilterUpdate(crm.Record{"Custom_Score__c": 42}, crm.Record{"Custom_Score__c": 7}, true)
	if got["Custom_Score__c"] != 42 {
		t.Errorf("unknown field should pass through, got %v", got)
	}
}

func TestRegisterField(t *testing.T) {
	p := NewFieldProtector()

	if err := p.RegisterField("Custom_Score__c", TierHumanOwned); err != nil {
		t.Fatalf("register: %v", err)
	}
	got := p.FilterUpdate(crm.Record{"Custom_Score__c": 42}, crm.Record{"Custom_Score__c": 7}, true)
	if _, ok := got["Custom_Score__c"]; ok {
		t.Errorf("registered human-owned field should be protected, got %v", got)
	}

	if err := p.RegisterField("X", TierSystemManaged); err == nil {
		t.Error("system-managed should not be registrable")
	}
	if err := p.RegisterField("X", Tier("bogus")); err == nil {
		t.Error("bogus tier should be rejected")
	}
	if err := p.RegisterField("  ", TierShared); err == nil {
		t.Error("blank name should be rejected")
	}
}
