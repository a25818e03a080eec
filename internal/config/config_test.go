package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
		CRM: CRMConfig{
			AccountsURL:  "https://accounts.example.com",
			APIBaseURL:   "https://api.example.com",
			ClientID:     "id",
			ClientSecret: "secret",
			RefreshToken: "refresh",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.CRM.Module != "Leads" {
		t.Fatalf("expected default CRM module, got %q", c.CRM.Module)
	}
	if c.CRM.TokenBuffer != 5*time.Minute {
		t.Fatalf("expected default token buffer, got %s", c.CRM.TokenBuffer)
	}
	if c.Dialer.MaxRetries != 3 {
		t.Fatalf("expected default max retries, got %d", c.Dialer.MaxRetries)
	}
	if c.Idempotency.TTL != time.Hour {
		t.Fatalf("expected default idempotency ttl, got %s", c.Idempotency.TTL)
	}
}

func TestValidate_ProductionRequiresDBSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "leadcall"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsDBSSLMode(t *testing.T) {
	c := validConfig()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "leadcall"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	c := validConfig()
	c.Telephony.Provider = "plivo"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestValidate_TwilioRequiresCredentials(t *testing.T) {
	c := validConfig()
	c.Telephony.Provider = "twilio"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for twilio without credentials")
	}

	c.Telephony.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550001111"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_TokenBufferFloor(t *testing.T) {
	c := validConfig()
	c.CRM.TokenBuffer = 10 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for sub-minute token buffer")
	}
}
