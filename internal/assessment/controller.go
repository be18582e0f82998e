package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotAwaitingAnswer is returned when an answer arrives while no question is pending.
	ErrNotAwaitingAnswer = errors.New("no question is awaiting an answer")
	// ErrAlreadyScored is returned when scoring is requested for a completed session.
	ErrAlreadyScored = errors.New("session already scored")
	// ErrSessionOutOfStep is returned when the index and response count disagree.
	ErrSessionOutOfStep = errors.New("question index and responses out of step")
)

// ErrorKindResumed marks input that only restarted a step interrupted by a
// host failure. The input itself is not recorded.
const ErrorKindResumed ErrorKind = "resumed"

// Field is one named session value. A nil Value clears the field.
type Field struct {
	Key   models.DataKey
	Value any
}

// Host is the environment a controller runs in. It persists session fields,
// is told about each scheduled step, and delivers text to the participant.
// Calls are synchronous and complete before the triggering operation returns.
type Host interface {
	// SetSessionFields persists session fields as one write: either all land or none do.
	SetSessionFields(ctx context.Context, fields ...Field) error
	// SetState persists the controller's state.
	SetState(ctx context.Context, state models.StateType) error
	// ScheduleNext is told about every step the controller is about to run.
	ScheduleNext(ctx context.Context, step Step) error
	// EmitMessage delivers one line of text to the participant.
	EmitMessage(ctx context.Context, text string) error
}

// Controller drives one session through start, question, answer and scoring.
// It is not safe for concurrent use; callers serialise stimuli per session.
type Controller struct {
	host    Host
	session *models.Session
	now     func() time.Time
	newID   func() string
}

// NewController wraps session and host. A nil session starts out idle.
func NewController(session *models.Session, host Host) *Controller {
	if session == nil {
		session = models.NewSession("")
	}
	if session.State == "" {
		session.State = models.StateIdle
	}
	return &Controller{
		host:    host,
		session: session,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Session returns a copy of the controller's session record.
func (c *Controller) Session() *models.Session {
	return c.session.Clone()
}

// State returns the controller's current state.
func (c *Controller) State() models.StateType {
	return c.session.State
}

// Start resets the session and asks the first question.
func (c *Controller) Start(ctx context.Context) error {
	slog.Debug("Controller.Start: resetting session", "participantID", c.session.ParticipantID, "previousState", c.session.State)

	c.session.ID = c.newID()
	c.session.CurrentQuestionIndex = 0
	c.session.Responses = []int{}
	c.session.Scores = nil
	c.session.Levels = nil
	c.session.StartedAt = c.now().UTC()
	c.session.CompletedAt = nil

	err := c.host.SetSessionFields(ctx,
		Field{models.DataKeySessionID, c.session.ID},
		Field{models.DataKeyStartedAt, c.session.StartedAt},
		Field{models.DataKeyCompletedAt, nil},
		Field{models.DataKeyCurrentQuestionIndex, 0},
		Field{models.DataKeyResponses, c.session.Responses},
		Field{models.DataKeyDepressionScore, nil},
		Field{models.DataKeyAnxietyScore, nil},
		Field{models.DataKeyStressScore, nil},
		Field{models.DataKeyDepressionLevel, nil},
		Field{models.DataKeyAnxietyLevel, nil},
		Field{models.DataKeyStressLevel, nil},
	)
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}

	slog.Info("Controller.Start: session started", "participantID", c.session.ParticipantID, "sessionID", c.session.ID)
	return c.dispatch(ctx, StepAskQuestion)
}

// Answer feeds one raw answer to the pending question. Rejected answers send a
// corrective message and leave the session untouched; the returned Result says
// which. Input arriving while a step is interrupted resumes that step instead
// (Kind ErrorKindResumed). Answers arriving while no question is pending
// return ErrNotAwaitingAnswer.
func (c *Controller) Answer(ctx context.Context, raw string) (Result, error) {
	switch c.session.State {
	case models.StateAwaitingAnswer:
	case models.StateAskingQuestion, models.StateScoring:
		slog.Info("Controller.Answer: resuming interrupted step", "participantID", c.session.ParticipantID, "state", c.session.State)
		if _, err := c.Resume(ctx); err != nil {
			return Result{Responses: c.session.Responses}, err
		}
		next := StepAwaitAnswer
		if c.session.State != models.StateAwaitingAnswer {
			next = StepDone
		}
		return Result{Responses: c.session.Responses, Kind: ErrorKindResumed, Next: next}, nil
	default:
		slog.Warn("Controller.Answer: no question pending", "participantID", c.session.ParticipantID, "state", c.session.State)
		return Result{Responses: c.session.Responses, Next: StepDone}, ErrNotAwaitingAnswer
	}
	if c.session.Completed() {
		return Result{}, ErrAlreadyScored
	}
	pending, step := Next(c.session.CurrentQuestionIndex)
	if c.session.CurrentQuestionIndex != len(c.session.Responses) || step != StepAwaitAnswer {
		return Result{}, fmt.Errorf("%w: index %d, responses %d", ErrSessionOutOfStep, c.session.CurrentQuestionIndex, len(c.session.Responses))
	}

	result := Record(raw, c.session.Responses)
	if !result.Accepted() {
		slog.Debug("Controller.Answer: answer rejected", "participantID", c.session.ParticipantID, "question", pending.Index+1, "kind", result.Kind)
		if err := c.host.EmitMessage(ctx, result.Message); err != nil {
			return result, fmt.Errorf("failed to send corrective message: %w", err)
		}
		return result, nil
	}

	err := c.host.SetSessionFields(ctx,
		Field{models.DataKeyResponses, result.Responses},
		Field{models.DataKeyCurrentQuestionIndex, pending.NextIndex},
	)
	if err != nil {
		return result, fmt.Errorf("failed to persist answer: %w", err)
	}
	c.session.Responses = result.Responses
	c.session.CurrentQuestionIndex = pending.NextIndex
	slog.Debug("Controller.Answer: answer recorded", "participantID", c.session.ParticipantID, "question", pending.Index+1, "answered", len(c.session.Responses))

	return result, c.dispatch(ctx, result.Next)
}

// Resume re-runs a step that a host failure interrupted: a question that may
// never have been delivered is asked again and unfinished scoring is completed.
// It reports whether anything was re-run; idle and waiting sessions are left alone.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	switch c.session.State {
	case models.StateAskingQuestion:
		if c.session.CurrentQuestionIndex != len(c.session.Responses) {
			return false, fmt.Errorf("%w: index %d, responses %d", ErrSessionOutOfStep, c.session.CurrentQuestionIndex, len(c.session.Responses))
		}
		slog.Debug("Controller.Resume: asking again", "participantID", c.session.ParticipantID, "question", c.session.CurrentQuestionIndex+1)
		return true, c.dispatch(ctx, StepAskQuestion)
	case models.StateScoring:
		if c.session.Completed() {
			// results are persisted, only the final transition is missing
			return true, c.setState(ctx, models.StateIdle)
		}
		slog.Debug("Controller.Resume: scoring again", "participantID", c.session.ParticipantID)
		return true, c.dispatch(ctx, StepComputeScore)
	default:
		return false, nil
	}
}

// dispatch runs steps until the controller has to wait for input or is done.
func (c *Controller) dispatch(ctx context.Context, step Step) error {
	for step != StepAwaitAnswer && step != StepDone {
		if err := c.host.ScheduleNext(ctx, step); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", step, err)
		}
		var err error
		switch step {
		case StepAskQuestion:
			step, err = c.ask(ctx)
		case StepComputeScore:
			step, err = c.score(ctx)
		default:
			return fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) ask(ctx context.Context) (Step, error) {
	if err := c.setState(ctx, models.StateAskingQuestion); err != nil {
		return "", err
	}
	q, step := Next(c.session.CurrentQuestionIndex)
	if step == StepComputeScore {
		slog.Debug("Controller.ask: no questions remain", "participantID", c.session.ParticipantID)
		return step, nil
	}
	if err := c.host.EmitMessage(ctx, q.Prompt); err != nil {
		return "", fmt.Errorf("failed to send question %d: %w", q.Index+1, err)
	}
	if err := c.setState(ctx, models.StateAwaitingAnswer); err != nil {
		return "", err
	}
	return step, nil
}

func (c *Controller) score(ctx context.Context) (Step, error) {
	if c.session.Completed() {
		return "", ErrAlreadyScored
	}
	if err := c.setState(ctx, models.StateScoring); err != nil {
		return "", err
	}
	scores, err := ComputeScores(c.session.Responses)
	if err != nil {
		return "", err
	}
	levels := Interpret(scores.Depression, scores.Anxiety, scores.Stress)

	if err := c.host.EmitMessage(ctx, Respond(levels)); err != nil {
		return "", fmt.Errorf("failed to send supportive message: %w", err)
	}

	completedAt := c.now().UTC()
	err = c.host.SetSessionFields(ctx,
		Field{models.DataKeyDepressionScore, scores.Depression},
		Field{models.DataKeyAnxietyScore, scores.Anxiety},
		Field{models.DataKeyStressScore, scores.Stress},
		Field{models.DataKeyDepressionLevel, levels.Depression},
		Field{models.DataKeyAnxietyLevel, levels.Anxiety},
		Field{models.DataKeyStressLevel, levels.Stress},
		Field{models.DataKeyCompletedAt, completedAt},
	)
	if err != nil {
		return "", fmt.Errorf("failed to persist results: %w", err)
	}
	c.session.Scores = &scores
	c.session.Levels = &levels
	c.session.CompletedAt = &completedAt

	if err := c.setState(ctx, models.StateIdle); err != nil {
		return "", err
	}
	slog.Info("Controller.score: session complete", "participantID", c.session.ParticipantID, "sessionID", c.session.ID,
		"depression", levels.Depression, "anxiety", levels.Anxiety, "stress", levels.Stress)
	return StepDone, nil
}

func (c *Controller) setState(ctx context.Context, state models.StateType) error {
	if err := c.host.SetState(ctx, state); err != nil {
		return fmt.Errorf("failed to set state %s: %w", state, err)
	}
	c.session.State = state
	return nil
}
