package twiliowhatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}
}

func TestWhatsAppAddress(t *testing.T) {
	tests := map[string]string{
		"15551234567":           "whatsapp:+15551234567",
		"+15551234567":          "whatsapp:+15551234567",
		"whatsapp:+15551234567": "whatsapp:+15551234567",
		" 15551234567 ":         "whatsapp:+15551234567",
	}
	for in, want := range tests {
		if got := whatsAppAddress(in); got != want {
			t.Errorf("whatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without sender number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromWhats("+15550000000")); err != nil {
		t.Errorf("unexpected error with full config: %v", err)
	}
}

func TestResolveOpts_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000000")

	cfg := resolveOpts(WithAccountSID("ACflag"))
	if cfg.AccountSID != "ACflag" {
		t.Errorf("option should win over env, got %q", cfg.AccountSID)
	}
	if cfg.AuthToken != "envtoken" || cfg.FromWhats != "+15550000000" {
		t.Errorf("expected env fallback, got %+v", cfg)
	}
}

func TestWebhookValidator_RejectsUnsigned(t *testing.T) {
	v := NewWebhookValidator("secret", "https://example.com/webhooks/twilio")
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"1"}}
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(SignatureHeader, "bogus")
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if v.Validate(r) {
		t.Error("expected bogus signature to be rejected")
	}
}
