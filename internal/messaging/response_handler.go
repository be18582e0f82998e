package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/DASSPipe/internal/assessment"
	"github.com/BTreeMap/DASSPipe/internal/flow"
	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

const (
	// DefaultMessage is sent when nobody is mid-assessment and no hook handles a message.
	DefaultMessage = "Reply START to begin the DASS-21 check-in."
	// ErrorMessage is sent when a hook fails.
	ErrorMessage = "⚠️ We encountered an issue processing your response. Please try again or contact support."
	// StartKeyword starts (or restarts) an assessment when sent by a participant.
	StartKeyword = "START"
)

// ResponseAction defines a hook function that processes a participant's response.
// It receives the participant's canonical phone number, response text, and timestamp.
// It should return true if the response was handled, false otherwise.
type ResponseAction func(ctx context.Context, from, responseText string, timestamp int64) (handled bool, err error)

// ResponseHandler manages stateful response processing by maintaining a map of
// recipient -> action hooks and routing incoming responses appropriately.
type ResponseHandler struct {
	// hooks maps canonicalized phone numbers to response action functions
	hooks map[string]ResponseAction
	// mu protects concurrent access to the hooks map and default message
	mu sync.RWMutex
	// msgService is used to send default responses when no hook is registered
	msgService Service
	// defaultMessage is sent when no hook handles a response
	defaultMessage string

	store       store.Store           // optional; persists every inbound response
	dedup       store.DedupRepo       // optional; drops transport redeliveries
	assessments *flow.AssessmentFlow // optional; enables START and answer routing
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*ResponseHandler)

// WithStore persists inbound responses to st. If st also implements
// store.DedupRepo, inbound messages are deduplicated by transport message id.
func WithStore(st store.Store) HandlerOption {
	return func(rh *ResponseHandler) {
		rh.store = st
		if dedup, ok := st.(store.DedupRepo); ok {
			rh.dedup = dedup
		}
	}
}

// WithAssessmentFlow routes START and answers to af.
func WithAssessmentFlow(af *flow.AssessmentFlow) HandlerOption {
	return func(rh *ResponseHandler) {
		rh.assessments = af
	}
}

// NewResponseHandler creates a new ResponseHandler with the given messaging service.
func NewResponseHandler(msgService Service, opts ...HandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		hooks:          make(map[string]ResponseAction),
		msgService:     msgService,
		defaultMessage: DefaultMessage,
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// RegisterHook registers a response action for a specific participant.
func (rh *ResponseHandler) RegisterHook(recipient string, action ResponseAction) error {
	canonicalRecipient, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseHandler RegisterHook validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.hooks[canonicalRecipient] = action

	slog.Debug("ResponseHandler hook registered", "recipient", canonicalRecipient)
	return nil
}

// UnregisterHook removes a response action for a specific participant.
func (rh *ResponseHandler) UnregisterHook(recipient string) error {
	canonicalRecipient, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseHandler UnregisterHook validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	rh.mu.Lock()
	defer rh.mu.Unlock()
	delete(rh.hooks, canonicalRecipient)

	slog.Debug("ResponseHandler hook unregistered", "recipient", canonicalRecipient)
	return nil
}

// IsHookRegistered checks if a hook is registered for the given recipient.
func (rh *ResponseHandler) IsHookRegistered(recipient string) bool {
	canonicalRecipient, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return false
	}

	rh.mu.RLock()
	defer rh.mu.RUnlock()
	_, exists := rh.hooks[canonicalRecipient]
	return exists
}

// GetHookCount returns the number of currently registered hooks.
func (rh *ResponseHandler) GetHookCount() int {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	return len(rh.hooks)
}

// SetDefaultMessage sets the default message sent when no hook handles a response.
func (rh *ResponseHandler) SetDefaultMessage(message string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.defaultMessage = message
}

// GetDefaultMessage returns the current default message.
func (rh *ResponseHandler) GetDefaultMessage() string {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	return rh.defaultMessage
}

// StartAssessment starts a fresh assessment for participant and routes their
// following messages to it.
func (rh *ResponseHandler) StartAssessment(ctx context.Context, participant string) (*models.Session, error) {
	if rh.assessments == nil {
		return nil, fmt.Errorf("assessment flow not configured")
	}
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(participant)
	if err != nil {
		return nil, fmt.Errorf("invalid participant: %w", err)
	}
	session, err := rh.assessments.Start(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if err := rh.RegisterHook(canonical, rh.assessmentHook()); err != nil {
		return nil, err
	}
	return session, nil
}

// ProcessResponse processes an incoming response: duplicates are dropped, the
// response is stored, START begins an assessment, a registered hook gets the
// text, and otherwise the default message is sent.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	response.From = canonicalFrom

	if rh.isDuplicate(response) {
		return nil
	}
	if response.MessageID != "" && rh.dedup != nil {
		defer func() {
			if err := rh.dedup.MarkProcessed(response.MessageID); err != nil {
				slog.Warn("ResponseHandler failed to mark message processed", "error", err, "messageID", response.MessageID)
			}
		}()
	}

	if rh.store != nil {
		if err := rh.store.AddResponse(response); err != nil {
			slog.Error("ResponseHandler failed to store response", "error", err, "from", canonicalFrom)
		}
	}

	slog.Debug("ResponseHandler processing response", "from", canonicalFrom, "body_length", len(response.Body))

	if rh.assessments != nil && strings.EqualFold(strings.TrimSpace(response.Body), StartKeyword) {
		if _, err := rh.StartAssessment(ctx, canonicalFrom); err != nil {
			slog.Error("ResponseHandler failed to start assessment", "error", err, "from", canonicalFrom)
			rh.sendError(ctx, canonicalFrom)
			return fmt.Errorf("failed to start assessment: %w", err)
		}
		return nil
	}

	action, hasHook := rh.lookupHook(ctx, canonicalFrom)
	if hasHook {
		handled, err := action(ctx, canonicalFrom, response.Body, response.Time)
		if err != nil {
			slog.Error("ResponseHandler hook execution failed", "error", err, "from", canonicalFrom)
			rh.sendError(ctx, canonicalFrom)
			return fmt.Errorf("hook execution failed: %w", err)
		}
		if handled {
			slog.Debug("ResponseHandler response handled by hook", "from", canonicalFrom)
			return nil
		}
		slog.Debug("ResponseHandler hook did not handle response", "from", canonicalFrom)
	}

	if err := rh.msgService.SendMessage(ctx, canonicalFrom, rh.GetDefaultMessage()); err != nil {
		slog.Error("ResponseHandler failed to send default response", "error", err, "from", canonicalFrom)
		return fmt.Errorf("failed to send default response: %w", err)
	}
	slog.Info("ResponseHandler sent default response", "from", canonicalFrom)
	return nil
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// CreateAssessmentHook creates a hook that feeds every message to af as an answer.
// Messages arriving while no question is pending are left unhandled.
func CreateAssessmentHook(af *flow.AssessmentFlow) ResponseAction {
	return func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		result, err := af.HandleAnswer(ctx, from, responseText)
		if errors.Is(err, assessment.ErrNotAwaitingAnswer) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		slog.Debug("AssessmentHook handled answer", "from", from, "accepted", result.Accepted, "answered", len(result.Session.Responses))
		return true, nil
	}
}

// assessmentHook wraps CreateAssessmentHook and drops the hook once the assessment is finished.
func (rh *ResponseHandler) assessmentHook() ResponseAction {
	inner := CreateAssessmentHook(rh.assessments)
	return func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		handled, err := inner(ctx, from, responseText, timestamp)
		if err != nil {
			return handled, err
		}
		if active, aerr := rh.assessments.InProgress(ctx, from); aerr == nil && !active {
			if uerr := rh.UnregisterHook(from); uerr != nil {
				slog.Warn("ResponseHandler failed to unregister finished hook", "error", uerr, "from", from)
			}
		}
		return handled, nil
	}
}

// lookupHook returns the participant's hook. A participant with an assessment
// in progress but no hook (for example after a restart) gets one registered.
func (rh *ResponseHandler) lookupHook(ctx context.Context, from string) (ResponseAction, bool) {
	rh.mu.RLock()
	action, ok := rh.hooks[from]
	rh.mu.RUnlock()
	if ok || rh.assessments == nil {
		return action, ok
	}

	active, err := rh.assessments.InProgress(ctx, from)
	if err != nil {
		slog.Warn("ResponseHandler failed to check for pending assessment", "error", err, "from", from)
		return nil, false
	}
	if !active {
		return nil, false
	}
	if err := rh.RestoreAssessmentHook(from); err != nil {
		return nil, false
	}
	rh.mu.RLock()
	action, ok = rh.hooks[from]
	rh.mu.RUnlock()
	return action, ok
}

// RestoreAssessmentHook registers the assessment hook for a participant whose
// session is already in progress.
func (rh *ResponseHandler) RestoreAssessmentHook(participant string) error {
	if rh.assessments == nil {
		return fmt.Errorf("assessment flow not configured")
	}
	if err := rh.RegisterHook(participant, rh.assessmentHook()); err != nil {
		return err
	}
	slog.Info("ResponseHandler restored assessment hook", "participant", participant)
	return nil
}

// isDuplicate records the message id and reports whether it was seen before.
// Dedup failures let the message through.
func (rh *ResponseHandler) isDuplicate(response models.Response) bool {
	if response.MessageID == "" || rh.dedup == nil {
		return false
	}
	inserted, err := rh.dedup.RecordInbound(response.MessageID, response.From)
	if err != nil {
		slog.Warn("ResponseHandler dedup check failed, processing anyway", "error", err, "messageID", response.MessageID)
		return false
	}
	if !inserted {
		slog.Info("ResponseHandler dropped duplicate message", "from", response.From, "messageID", response.MessageID)
		return true
	}
	return false
}

func (rh *ResponseHandler) sendError(ctx context.Context, to string) {
	if err := rh.msgService.SendMessage(ctx, to, ErrorMessage); err != nil {
		slog.Error("ResponseHandler failed to send error message", "error", err, "from", to)
	}
}
