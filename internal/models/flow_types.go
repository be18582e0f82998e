// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific type of participant flow
type FlowType string

// StateType represents a specific state within a flow
type StateType string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeDASS21 FlowType = "dass21"
)

// State constants for the DASS-21 assessment flow.
const (
	StateIdle           StateType = "IDLE"
	StateAskingQuestion StateType = "ASKING_QUESTION"
	StateAwaitingAnswer StateType = "AWAITING_ANSWER"
	StateScoring        StateType = "SCORING"
)

// Data key constants for the DASS-21 assessment flow. These are the session
// fields the controller persists through its host.
const (
	DataKeyCurrentQuestionIndex DataKey = "current_question_index"
	DataKeyResponses            DataKey = "responses" // JSON array of ints
	DataKeyDepressionScore      DataKey = "depression_score"
	DataKeyAnxietyScore         DataKey = "anxiety_score"
	DataKeyStressScore          DataKey = "stress_score"
	DataKeyDepressionLevel      DataKey = "depression_level"
	DataKeyAnxietyLevel         DataKey = "anxiety_level"
	DataKeyStressLevel          DataKey = "stress_level"
	DataKeySessionID            DataKey = "session_id"
	DataKeyStartedAt            DataKey = "started_at"   // RFC3339
	DataKeyCompletedAt          DataKey = "completed_at" // RFC3339, empty until scored
)

// IsValidState checks if the given state belongs to the assessment flow.
func IsValidState(s StateType) bool {
	switch s {
	case StateIdle, StateAskingQuestion, StateAwaitingAnswer, StateScoring:
		return true
	default:
		return false
	}
}

// transitions lists the states reachable from each state. Re-entering the
// current state is always allowed so an interrupted step can run again.
var transitions = map[StateType][]StateType{
	StateIdle:           {StateAskingQuestion},
	StateAskingQuestion: {StateAwaitingAnswer, StateScoring},
	StateAwaitingAnswer: {StateAskingQuestion, StateScoring},
	StateScoring:        {StateIdle},
}

// IsValidTransition reports whether the assessment flow may move from one state to another.
func IsValidTransition(from, to StateType) bool {
	if !IsValidState(from) || !IsValidState(to) {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
