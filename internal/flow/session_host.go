package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BTreeMap/DASSPipe/internal/assessment"
	"github.com/BTreeMap/DASSPipe/internal/models"
)

// ErrIllegalTransition is returned when a state change is not allowed by the assessment flow.
var ErrIllegalTransition = errors.New("illegal state transition")

// SessionHost implements assessment.Host for one participant. Session fields
// are written through the StateManager as strings and messages go out through
// the Sender.
type SessionHost struct {
	participantID string
	stateManager  StateManager
	sender        Sender
	sent          []string
}

var _ assessment.Host = (*SessionHost)(nil)

// NewSessionHost creates a host bound to one participant.
func NewSessionHost(participantID string, sm StateManager, sender Sender) *SessionHost {
	return &SessionHost{participantID: participantID, stateManager: sm, sender: sender}
}

// SetSessionFields encodes every field and stores them in one write. A nil
// value clears its key.
func (h *SessionHost) SetSessionFields(ctx context.Context, fields ...assessment.Field) error {
	data := make(map[models.DataKey]string, len(fields))
	for _, f := range fields {
		encoded, err := encodeField(f.Value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.Key, err)
		}
		data[f.Key] = encoded
	}
	return h.stateManager.SetStateDataBatch(ctx, h.participantID, models.FlowTypeDASS21, data)
}

// SetState moves the stored state to state. Moves the assessment flow does not
// allow are refused; a participant with no stored state counts as idle.
func (h *SessionHost) SetState(ctx context.Context, state models.StateType) error {
	stored, err := h.stateManager.GetCurrentState(ctx, h.participantID, models.FlowTypeDASS21)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	from := stored
	if from == "" {
		from = models.StateIdle
	}
	if !models.IsValidTransition(from, state) {
		slog.Error("SessionHost.SetState: illegal transition", "participantID", h.participantID, "from", from, "to", state)
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, state)
	}
	return h.stateManager.TransitionState(ctx, h.participantID, models.FlowTypeDASS21, stored, state)
}

// ScheduleNext only logs; the controller runs its own steps.
func (h *SessionHost) ScheduleNext(ctx context.Context, step assessment.Step) error {
	slog.Debug("SessionHost.ScheduleNext: step scheduled", "participantID", h.participantID, "step", step)
	return nil
}

// EmitMessage sends text to the participant and remembers it.
func (h *SessionHost) EmitMessage(ctx context.Context, text string) error {
	if err := h.sender.SendMessage(ctx, h.participantID, text); err != nil {
		slog.Error("SessionHost.EmitMessage: send failed", "error", err, "participantID", h.participantID)
		return err
	}
	h.sent = append(h.sent, text)
	return nil
}

// Sent returns the messages emitted through this host, oldest first.
func (h *SessionHost) Sent() []string {
	return h.sent
}

func encodeField(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case models.Level:
		return string(v), nil
	case []int:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("unsupported field type %T", value)
	}
}

// LoadSession rebuilds a participant's session record from persisted flow state.
// It returns models.ErrSessionNotFound when the participant has never started.
func LoadSession(ctx context.Context, sm StateManager, participantID string) (*models.Session, error) {
	fs, err := sm.GetFlowState(ctx, participantID, models.FlowTypeDASS21)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow state: %w", err)
	}
	if fs == nil {
		return nil, models.ErrSessionNotFound
	}
	return sessionFromState(fs)
}

func sessionFromState(fs *models.FlowState) (*models.Session, error) {
	s := models.NewSession(fs.ParticipantID)
	if fs.CurrentState != "" {
		s.State = fs.CurrentState
	}
	data := fs.StateData
	s.ID = data[models.DataKeySessionID]

	var err error
	if raw := data[models.DataKeyCurrentQuestionIndex]; raw != "" {
		if s.CurrentQuestionIndex, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("corrupt %s %q: %w", models.DataKeyCurrentQuestionIndex, raw, err)
		}
	}
	if raw := data[models.DataKeyResponses]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Responses); err != nil {
			return nil, fmt.Errorf("corrupt %s: %w", models.DataKeyResponses, err)
		}
	}
	if raw := data[models.DataKeyStartedAt]; raw != "" {
		if s.StartedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("corrupt %s %q: %w", models.DataKeyStartedAt, raw, err)
		}
	}
	if raw := data[models.DataKeyCompletedAt]; raw != "" {
		completedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s %q: %w", models.DataKeyCompletedAt, raw, err)
		}
		s.CompletedAt = &completedAt
	}

	scores, ok, err := loadScores(data)
	if err != nil {
		return nil, err
	}
	if ok {
		s.Scores = &scores
	}
	levels := models.Levels{
		Depression: models.Level(data[models.DataKeyDepressionLevel]),
		Anxiety:    models.Level(data[models.DataKeyAnxietyLevel]),
		Stress:     models.Level(data[models.DataKeyStressLevel]),
	}
	if models.IsValidLevel(levels.Depression) && models.IsValidLevel(levels.Anxiety) && models.IsValidLevel(levels.Stress) {
		s.Levels = &levels
	}
	return s, nil
}

func loadScores(data map[models.DataKey]string) (models.Scores, bool, error) {
	keys := []models.DataKey{models.DataKeyDepressionScore, models.DataKeyAnxietyScore, models.DataKeyStressScore}
	var values [3]int
	for i, key := range keys {
		raw := data[key]
		if raw == "" {
			return models.Scores{}, false, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return models.Scores{}, false, fmt.Errorf("corrupt %s %q: %w", key, raw, err)
		}
		values[i] = v
	}
	return models.Scores{Depression: values[0], Anxiety: values[1], Stress: values[2]}, true, nil
}
