package messaging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/BTreeMap/DASSPipe/internal/assessment"
	"github.com/BTreeMap/DASSPipe/internal/flow"
	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
	"github.com/BTreeMap/DASSPipe/internal/whatsapp"
)

type handlerFixture struct {
	client  *whatsapp.MockClient
	service *WhatsAppService
	store   *store.InMemoryStore
	flow    *flow.AssessmentFlow
	handler *ResponseHandler
}

func newHandlerFixture() *handlerFixture {
	client := whatsapp.NewMockClient()
	service := NewWhatsAppService(client)
	st := store.NewInMemoryStore()
	af := flow.NewAssessmentFlow(flow.NewStoreBasedStateManager(st), service)
	return &handlerFixture{
		client:  client,
		service: service,
		store:   st,
		flow:    af,
		handler: NewResponseHandler(service, WithStore(st), WithAssessmentFlow(af)),
	}
}

func (f *handlerFixture) last() string {
	sent := f.client.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Body
}

func (f *handlerFixture) send(t *testing.T, body, messageID string) {
	t.Helper()
	err := f.handler.ProcessResponse(context.Background(), models.Response{
		From: "+1 555 123 4567", Body: body, Time: 1, MessageID: messageID,
	})
	if err != nil {
		t.Fatalf("ProcessResponse(%q): %v", body, err)
	}
}

func TestResponseHandler_RegisterHook(t *testing.T) {
	handler := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()))

	testHook := func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		return true, nil
	}
	if err := handler.RegisterHook("+1234567890", testHook); err != nil {
		t.Fatalf("Failed to register hook: %v", err)
	}
	if !handler.IsHookRegistered("1234567890") {
		t.Error("Hook should be registered under the canonical number")
	}
	if handler.GetHookCount() != 1 {
		t.Errorf("Expected 1 hook, got %d", handler.GetHookCount())
	}

	if err := handler.RegisterHook("abc", testHook); err == nil {
		t.Error("Expected error for invalid recipient")
	}

	if err := handler.UnregisterHook("+1234567890"); err != nil {
		t.Fatalf("Failed to unregister hook: %v", err)
	}
	if handler.IsHookRegistered("1234567890") {
		t.Error("Hook should be unregistered")
	}
}

func TestResponseHandler_DefaultMessage(t *testing.T) {
	f := newHandlerFixture()
	f.send(t, "hello", "")

	if f.last() != DefaultMessage {
		t.Errorf("expected default message, got %q", f.last())
	}
	if _, err := f.flow.GetSession(context.Background(), "15551234567"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("a stray message must not create a session, got %v", err)
	}
}

func TestResponseHandler_CustomDefaultMessage(t *testing.T) {
	f := newHandlerFixture()
	f.handler.SetDefaultMessage("Text START when you are ready.")
	f.send(t, "hi", "")
	if f.last() != "Text START when you are ready." {
		t.Errorf("expected custom default, got %q", f.last())
	}
}

func TestResponseHandler_StartKeywordRunsAssessment(t *testing.T) {
	f := newHandlerFixture()
	f.send(t, " start\n", "m0")

	if !strings.HasPrefix(f.last(), "Question 1: ") {
		t.Fatalf("expected first question, got %q", f.last())
	}
	if !f.handler.IsHookRegistered("15551234567") {
		t.Fatal("expected assessment hook registered")
	}

	f.send(t, "9", "m1")
	if f.last() != assessment.OutOfRangeMessage {
		t.Errorf("expected out-of-range correction, got %q", f.last())
	}

	for i := 0; i < assessment.QuestionCount; i++ {
		f.send(t, "0", "a"+strings.Repeat("x", i))
	}
	if f.last() != assessment.NormalOrMildMessage {
		t.Errorf("expected normal/mild message, got %q", f.last())
	}
	if f.handler.IsHookRegistered("15551234567") {
		t.Error("hook should be dropped once the assessment completes")
	}

	f.send(t, "2", "after")
	if f.last() != DefaultMessage {
		t.Errorf("expected default message after completion, got %q", f.last())
	}
}

func TestResponseHandler_DuplicateDropped(t *testing.T) {
	f := newHandlerFixture()
	f.send(t, "START", "m0")
	f.send(t, "1", "wamid-1")
	f.send(t, "1", "wamid-1")

	s, err := f.flow.GetSession(context.Background(), "15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Responses) != 1 {
		t.Errorf("redelivered message recorded twice: %v", s.Responses)
	}
	responses, _ := f.store.GetResponses()
	if len(responses) != 2 {
		t.Errorf("expected 2 stored responses (START and one answer), got %d", len(responses))
	}
}

func TestResponseHandler_StoresResponses(t *testing.T) {
	f := newHandlerFixture()
	f.send(t, "hello", "m1")

	responses, err := f.store.GetResponses()
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 || responses[0].From != "15551234567" || responses[0].MessageID != "m1" {
		t.Errorf("unexpected stored responses %+v", responses)
	}
}

func TestResponseHandler_RestoresHookForPendingSession(t *testing.T) {
	f := newHandlerFixture()
	if _, err := f.flow.Start(context.Background(), "15551234567"); err != nil {
		t.Fatal(err)
	}
	if f.handler.IsHookRegistered("15551234567") {
		t.Fatal("precondition: no hook registered")
	}

	f.send(t, "2", "m1")
	if !strings.HasPrefix(f.last(), "Question 2: ") {
		t.Errorf("expected question 2, got %q", f.last())
	}
	if !f.handler.IsHookRegistered("15551234567") {
		t.Error("expected hook restored")
	}
}

func TestResponseHandler_HookError(t *testing.T) {
	client := whatsapp.NewMockClient()
	handler := NewResponseHandler(NewWhatsAppService(client))
	_ = handler.RegisterHook("15551234567", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		return false, errors.New("boom")
	})

	err := handler.ProcessResponse(context.Background(), models.Response{From: "15551234567", Body: "x"})
	if err == nil {
		t.Fatal("expected hook error")
	}
	sent := client.Sent()
	if len(sent) != 1 || sent[0].Body != ErrorMessage {
		t.Errorf("expected error message to participant, got %+v", sent)
	}
}

func TestResponseHandler_StartWithoutFlow(t *testing.T) {
	client := whatsapp.NewMockClient()
	handler := NewResponseHandler(NewWhatsAppService(client))
	if err := handler.ProcessResponse(context.Background(), models.Response{From: "15551234567", Body: "START"}); err != nil {
		t.Fatal(err)
	}
	if sent := client.Sent(); len(sent) != 1 || sent[0].Body != DefaultMessage {
		t.Errorf("START without an assessment flow should get the default message, got %+v", sent)
	}
	if _, err := handler.StartAssessment(context.Background(), "15551234567"); err == nil {
		t.Error("expected error when no assessment flow is configured")
	}
}

func TestResponseHandler_InvalidSender(t *testing.T) {
	handler := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()))
	if err := handler.ProcessResponse(context.Background(), models.Response{From: "x", Body: "1"}); err == nil {
		t.Error("expected error for invalid sender")
	}
}

func TestResponseHandler_StartLoop(t *testing.T) {
	f := newHandlerFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.handler.Start(ctx)

	f.service.emitResponse(models.Response{From: "15551234567", Body: "START", MessageID: "loop-1"})
	if err := f.service.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestResponseHandler_RestoreAssessmentHook(t *testing.T) {
	f := newHandlerFixture()
	if err := f.handler.RestoreAssessmentHook("15551234567"); err != nil {
		t.Fatalf("RestoreAssessmentHook: %v", err)
	}
	if !f.handler.IsHookRegistered("15551234567") {
		t.Error("expected hook registered")
	}

	bare := NewResponseHandler(NewWhatsAppService(whatsapp.NewMockClient()))
	if err := bare.RestoreAssessmentHook("15551234567"); err == nil {
		t.Error("expected error without an assessment flow")
	}
}

func TestResponseHandler_ResumesAfterSendFailure(t *testing.T) {
	f := newHandlerFixture()
	f.send(t, "START", "m1")
	f.send(t, "2", "m2")

	f.client.Err = errors.New("transport down")
	err := f.handler.ProcessResponse(context.Background(), models.Response{
		From: "15551234567", Body: "1", Time: 1, MessageID: "m3",
	})
	if err == nil {
		t.Fatal("expected hook error while the transport is down")
	}
	f.client.Err = nil
	if !f.handler.IsHookRegistered("15551234567") {
		t.Fatal("hook should survive a failed step")
	}

	f.send(t, "hello?", "m4")
	if !strings.HasPrefix(f.last(), "Question 3: ") {
		t.Errorf("expected question 3 sent again, got %q", f.last())
	}
	f.send(t, "3", "m5")
	if !strings.HasPrefix(f.last(), "Question 4: ") {
		t.Errorf("expected question 4, got %q", f.last())
	}
	s, err := f.flow.GetSession(context.Background(), "15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Responses; len(got) != 3 || got[0] != 2 || got[1] != 1 || got[2] != 3 {
		t.Errorf("expected responses [2 1 3], got %v", got)
	}
}

func TestResponseHandler_UnregisterFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f := newHandlerFixture()
	handled, err := f.handler.assessmentHook()(context.Background(), "x", "1", 0)
	if err != nil || handled {
		t.Fatalf("expected unhandled without error, got %v %v", handled, err)
	}
	if !strings.Contains(buf.String(), "failed to unregister finished hook") {
		t.Errorf("expected unregister failure logged, got %q", buf.String())
	}
}
