package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/whatsapp"
)

// Ensure both services implement the Service interface
func TestServices_ImplementService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"whatsapp:+15551234567", "15551234567", false},
		{"15551234567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Test SendMessage emits a sent receipt
func TestWhatsAppService_SendMessage_Receipt(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "+1 555 123 4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if sent := mockClient.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("expected canonical recipient, got %+v", sent)
	}
	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "15551234567" {
			t.Errorf("expected receipt.To 15551234567, got %s", receipt.To)
		}
		if receipt.Status != models.MessageStatusSent {
			t.Errorf("expected receipt.Status %s, got %s", models.MessageStatusSent, receipt.Status)
		}
	default:
		t.Fatal("expected receipt, got none")
	}
}

func TestWhatsAppService_SendError(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	mockClient.Err = errors.New("not connected")
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "15551234567", "hello"); err == nil {
		t.Fatal("expected error")
	}
	select {
	case r := <-svc.Receipts():
		t.Errorf("no receipt expected on failure, got %+v", r)
	default:
	}
}

// Test Start and Stop do not error and close channels
func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Receipts(); ok {
		t.Error("expected receipts channel closed")
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "x"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
