package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/twiliowhatsapp"
)

func postWebhook(svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, req)
	return rr
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock, nil)

	if err := svc.SendMessage(context.Background(), "+1 555 123 4567", "Question 1: ..."); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("unexpected sent messages %+v", sent)
	}
	select {
	case r := <-svc.Receipts():
		if r.Status != models.MessageStatusSent {
			t.Errorf("expected sent receipt, got %s", r.Status)
		}
	default:
		t.Error("expected a receipt")
	}
}

func TestTwilioService_Webhook(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), nil)

	rr := postWebhook(svc, url.Values{
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"2"},
		"MessageSid": {"SM123"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "15551234567" || resp.Body != "2" || resp.MessageID != "SM123" {
			t.Errorf("unexpected response %+v", resp)
		}
	default:
		t.Fatal("expected inbound response")
	}
}

func TestTwilioService_WebhookMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), nil)
	rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestTwilioService_WebhookBadSignature(t *testing.T) {
	validator := twiliowhatsapp.NewWebhookValidator("secret", "https://example.com/webhooks/twilio")
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), validator)
	rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"1"}})
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestTwilioService_Stop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), nil)
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "x"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	rr := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"1"}})
	if rr.Code != http.StatusOK {
		t.Errorf("stopped service should still acknowledge webhook, got %d", rr.Code)
	}
}
