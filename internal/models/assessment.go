package models

import (
	"slices"
	"time"
)

// Level is a DASS-21 severity classification.
type Level string

const (
	LevelNormal          Level = "Normal"
	LevelMild            Level = "Mild"
	LevelModerate        Level = "Moderate"
	LevelSevere          Level = "Severe"
	LevelExtremelySevere Level = "Extremely Severe"
)

// IsValidLevel checks if the given level is one of the five severity levels.
func IsValidLevel(l Level) bool {
	switch l {
	case LevelNormal, LevelMild, LevelModerate, LevelSevere, LevelExtremelySevere:
		return true
	default:
		return false
	}
}

// Scores holds the three doubled sub-scale totals.
type Scores struct {
	Depression int `json:"depression"`
	Anxiety    int `json:"anxiety"`
	Stress     int `json:"stress"`
}

// Levels holds the severity level for each sub-scale.
type Levels struct {
	Depression Level `json:"depression"`
	Anxiety    Level `json:"anxiety"`
	Stress     Level `json:"stress"`
}

// Any reports whether at least one sub-scale is at the given level.
func (l Levels) Any(level Level) bool {
	return l.Depression == level || l.Anxiety == level || l.Stress == level
}

// Session is the record of one participant's pass through the questionnaire.
// CurrentQuestionIndex always equals len(Responses) between questions.
type Session struct {
	ID                   string     `json:"id"`
	ParticipantID        string     `json:"participant_id"`
	State                StateType  `json:"state"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	Responses            []int      `json:"responses"`
	Scores               *Scores    `json:"scores,omitempty"` // nil until scored
	Levels               *Levels    `json:"levels,omitempty"` // nil until scored
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// NewSession returns an empty idle session for a participant.
func NewSession(participantID string) *Session {
	return &Session{
		ParticipantID: participantID,
		State:         StateIdle,
		Responses:     []int{},
	}
}

// Completed reports whether the session has been scored.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil && s.Scores != nil && s.Levels != nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Responses = slices.Clone(s.Responses)
	if c.Responses == nil {
		c.Responses = []int{}
	}
	if s.Scores != nil {
		scores := *s.Scores
		c.Scores = &scores
	}
	if s.Levels != nil {
		levels := *s.Levels
		c.Levels = &levels
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
