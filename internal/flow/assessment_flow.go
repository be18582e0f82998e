package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/assessment"
	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/recovery"
)

// ReminderPrefix is prepended to a question when it is re-sent after a quiet period.
const ReminderPrefix = "Reminder: "

// AssessmentFlow runs DASS-21 sessions for many participants. Each stimulus
// loads the participant's session, drives a controller over it and lets the
// SessionHost persist every change. Work for one participant is serialised.
type AssessmentFlow struct {
	stateManager  StateManager
	sender        Sender
	timer         Timer
	reminderDelay time.Duration

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	reminders map[string]string // participant -> timer id
}

// AssessmentOption configures an AssessmentFlow.
type AssessmentOption func(*AssessmentFlow)

// WithReminder re-sends the pending question once if the participant has not
// answered within delay. A zero delay disables reminders.
func WithReminder(timer Timer, delay time.Duration) AssessmentOption {
	return func(f *AssessmentFlow) {
		f.timer = timer
		f.reminderDelay = delay
	}
}

// NewAssessmentFlow creates a flow service over sm that talks to participants through sender.
func NewAssessmentFlow(sm StateManager, sender Sender, opts ...AssessmentOption) *AssessmentFlow {
	f := &AssessmentFlow{
		stateManager: sm,
		sender:       sender,
		locks:        make(map[string]*sync.Mutex),
		reminders:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	slog.Debug("AssessmentFlow created", "reminders", f.timer != nil && f.reminderDelay > 0, "reminderDelay", f.reminderDelay)
	return f
}

// Start begins a fresh session for participantID, discarding any previous one,
// and sends the first question.
func (f *AssessmentFlow) Start(ctx context.Context, participantID string) (*models.Session, error) {
	if participantID == "" {
		return nil, models.ErrEmptyParticipant
	}
	unlock := f.lock(participantID)
	defer unlock()

	if err := f.stateManager.ResetState(ctx, participantID, models.FlowTypeDASS21); err != nil {
		return nil, fmt.Errorf("failed to reset assessment for %s: %w", participantID, err)
	}
	host := NewSessionHost(participantID, f.stateManager, f.sender)
	c := assessment.NewController(models.NewSession(participantID), host)
	if err := c.Start(ctx); err != nil {
		slog.Error("AssessmentFlow.Start: controller failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to start assessment for %s: %w", participantID, err)
	}

	result := c.Session()
	f.armReminder(result)
	slog.Info("AssessmentFlow.Start: assessment started", "participantID", participantID, "sessionID", result.ID)
	return result, nil
}

// HandleAnswer feeds one raw answer to the participant's pending question. A
// session left mid-step by an earlier failure is resumed instead and the text
// is not recorded. It returns assessment.ErrNotAwaitingAnswer when nothing is pending.
func (f *AssessmentFlow) HandleAnswer(ctx context.Context, participantID, text string) (*models.AnswerResult, error) {
	if participantID == "" {
		return nil, models.ErrEmptyParticipant
	}
	unlock := f.lock(participantID)
	defer unlock()

	session, err := f.load(ctx, participantID)
	if err != nil {
		return nil, err
	}
	host := NewSessionHost(participantID, f.stateManager, f.sender)
	c := assessment.NewController(session, host)

	res, err := c.Answer(ctx, text)
	if errors.Is(err, assessment.ErrNotAwaitingAnswer) {
		slog.Debug("AssessmentFlow.HandleAnswer: no question pending", "participantID", participantID, "state", session.State)
		return nil, err
	}
	if err != nil {
		slog.Error("AssessmentFlow.HandleAnswer: controller failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to handle answer for %s: %w", participantID, err)
	}

	result := c.Session()
	resumed := res.Kind == assessment.ErrorKindResumed
	if res.Accepted() || resumed {
		f.armReminder(result)
	}
	slog.Debug("AssessmentFlow.HandleAnswer: answer handled", "participantID", participantID, "accepted", res.Accepted(), "resumed", resumed, "answered", len(result.Responses))
	return &models.AnswerResult{
		Accepted: res.Accepted(),
		Resumed:  resumed,
		Messages: host.Sent(),
		Session:  result,
	}, nil
}

// Resume re-runs the step a participant's session was left in by a failed
// send or write. It reports whether anything was re-run.
func (f *AssessmentFlow) Resume(ctx context.Context, participantID string) (bool, error) {
	unlock := f.lock(participantID)
	defer unlock()

	session, err := LoadSession(ctx, f.stateManager, participantID)
	if err != nil {
		return false, err
	}
	c := assessment.NewController(session, NewSessionHost(participantID, f.stateManager, f.sender))
	resumed, err := c.Resume(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resume assessment for %s: %w", participantID, err)
	}
	if resumed {
		f.armReminder(c.Session())
		slog.Info("AssessmentFlow.Resume: interrupted step re-run", "participantID", participantID, "state", c.State())
	}
	return resumed, nil
}

// GetSession returns the participant's current session record.
func (f *AssessmentFlow) GetSession(ctx context.Context, participantID string) (*models.Session, error) {
	unlock := f.lock(participantID)
	defer unlock()
	return LoadSession(ctx, f.stateManager, participantID)
}

// InProgress reports whether participantID has a started, unfinished
// assessment, including one left mid-step by a failure.
func (f *AssessmentFlow) InProgress(ctx context.Context, participantID string) (bool, error) {
	state, err := f.stateManager.GetCurrentState(ctx, participantID, models.FlowTypeDASS21)
	if err != nil {
		return false, err
	}
	return inProgress(state), nil
}

// PendingReminders lists the reminders currently armed.
func (f *AssessmentFlow) PendingReminders() []TimerInfo {
	if f.timer == nil {
		return []TimerInfo{}
	}
	return f.timer.ListActive()
}

func inProgress(state models.StateType) bool {
	switch state {
	case models.StateAskingQuestion, models.StateAwaitingAnswer, models.StateScoring:
		return true
	default:
		return false
	}
}

// recoverableStates are the states a restart can find an unfinished session in.
var recoverableStates = []models.StateType{models.StateAwaitingAnswer, models.StateAskingQuestion, models.StateScoring}

var _ recovery.Recoverable = (*AssessmentFlow)(nil)

// RecoverState restores the in-memory side of every unfinished assessment:
// the participant's inbound hook and, when enabled, the reminder. Sessions a
// crash left mid-step are resumed first, so an undelivered question goes out again.
func (f *AssessmentFlow) RecoverState(ctx context.Context, registry *recovery.Registry) error {
	var ids []string
	for _, state := range recoverableStates {
		found, err := registry.Store().ListParticipantsInState(models.FlowTypeDASS21, state)
		if err != nil {
			return fmt.Errorf("failed to list %s assessments: %w", state, err)
		}
		if state != models.StateAwaitingAnswer && len(found) > 0 {
			slog.Info("AssessmentFlow.RecoverState: found interrupted assessments", "state", state, "count", len(found))
		}
		ids = append(ids, found...)
	}

	var failed int
	for _, participantID := range ids {
		var stepErr error
		if _, err := f.Resume(ctx, participantID); err != nil {
			// the hook is still restored so the next message retries the step
			slog.Error("AssessmentFlow.RecoverState: failed to resume", "error", err, "participantID", participantID)
			stepErr = err
		}
		if ok, err := f.InProgress(ctx, participantID); err == nil && !ok {
			slog.Debug("AssessmentFlow.RecoverState: finished on resume", "participantID", participantID)
			continue
		}
		if err := registry.RecoverResponseHandler(participantID, models.FlowTypeDASS21); err != nil {
			slog.Error("AssessmentFlow.RecoverState: failed to restore hook", "error", err, "participantID", participantID)
			failed++
			continue
		}
		if err := f.recoverReminder(ctx, participantID); err != nil {
			slog.Error("AssessmentFlow.RecoverState: failed to restore reminder", "error", err, "participantID", participantID)
			stepErr = err
		}
		if stepErr != nil {
			failed++
		}
	}

	slog.Info("AssessmentFlow.RecoverState: pending assessments recovered", "count", len(ids)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("failed to recover %d of %d pending assessments", failed, len(ids))
	}
	return nil
}

func (f *AssessmentFlow) recoverReminder(ctx context.Context, participantID string) error {
	unlock := f.lock(participantID)
	defer unlock()
	s, err := LoadSession(ctx, f.stateManager, participantID)
	if err != nil {
		return err
	}
	f.armReminder(s)
	return nil
}

func (f *AssessmentFlow) load(ctx context.Context, participantID string) (*models.Session, error) {
	session, err := LoadSession(ctx, f.stateManager, participantID)
	if errors.Is(err, models.ErrSessionNotFound) {
		return models.NewSession(participantID), nil
	}
	if err != nil {
		slog.Error("AssessmentFlow: failed to load session", "error", err, "participantID", participantID)
		return nil, err
	}
	return session, nil
}

// lock serialises work for one participant and returns the unlock func.
func (f *AssessmentFlow) lock(participantID string) func() {
	f.mu.Lock()
	m, ok := f.locks[participantID]
	if !ok {
		m = &sync.Mutex{}
		f.locks[participantID] = m
	}
	f.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// armReminder replaces any pending reminder for the session's participant.
// Completed sessions only cancel.
func (f *AssessmentFlow) armReminder(s *models.Session) {
	if f.timer == nil || f.reminderDelay <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.reminders[s.ParticipantID]; ok {
		_ = f.timer.Cancel(id)
		delete(f.reminders, s.ParticipantID)
	}
	if s.State != models.StateAwaitingAnswer {
		return
	}

	participantID, sessionID, index := s.ParticipantID, s.ID, s.CurrentQuestionIndex
	var id string
	id, err := f.timer.ScheduleAfter(f.reminderDelay, func() {
		f.remind(context.Background(), participantID, sessionID, index, &id)
	})
	if err != nil {
		slog.Warn("AssessmentFlow: failed to schedule reminder", "error", err, "participantID", participantID)
		return
	}
	f.reminders[participantID] = id
}

// remind re-sends question index if the session has not moved since the reminder was armed.
func (f *AssessmentFlow) remind(ctx context.Context, participantID, sessionID string, index int, timerID *string) {
	unlock := f.lock(participantID)
	defer unlock()

	f.mu.Lock()
	if f.reminders[participantID] == *timerID {
		delete(f.reminders, participantID)
	}
	f.mu.Unlock()

	s, err := LoadSession(ctx, f.stateManager, participantID)
	if err != nil {
		slog.Warn("AssessmentFlow.remind: failed to load session", "error", err, "participantID", participantID)
		return
	}
	if s.ID != sessionID || s.CurrentQuestionIndex != index || s.State != models.StateAwaitingAnswer {
		slog.Debug("AssessmentFlow.remind: session moved on, skipping", "participantID", participantID)
		return
	}
	q, step := assessment.Next(index)
	if step != assessment.StepAwaitAnswer {
		return
	}
	if err := f.sender.SendMessage(ctx, participantID, ReminderPrefix+q.Prompt); err != nil {
		slog.Error("AssessmentFlow.remind: send failed", "error", err, "participantID", participantID)
		return
	}
	slog.Info("AssessmentFlow.remind: reminder sent", "participantID", participantID, "question", index+1)
}
