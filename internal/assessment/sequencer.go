package assessment

import "fmt"

// Step names the next thing the controller should run.
type Step string

const (
	// StepAskQuestion emits the question at the session's current index.
	StepAskQuestion Step = "ask_question"
	// StepAwaitAnswer parks the session until the participant replies.
	StepAwaitAnswer Step = "await_answer"
	// StepComputeScore scores a complete response set.
	StepComputeScore Step = "compute_score"
	// StepDone means the session is finished and idle.
	StepDone Step = "done"
)

// Question is one prompt ready to be shown to a participant.
type Question struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Prompt    string `json:"prompt"`
	IsLast    bool   `json:"is_last"`
	NextIndex int    `json:"next_index"` // index to advance to once this question is answered
}

// Next returns the question at index and StepAwaitAnswer, or a zero Question and
// StepComputeScore when no question remains. Any index outside [0,21) routes to
// scoring; the question list is never indexed out of range.
func Next(index int) (Question, Step) {
	if index < 0 || index >= QuestionCount {
		return Question{}, StepComputeScore
	}
	text := questions[index]
	return Question{
		Index:     index,
		Text:      text,
		Prompt:    fmt.Sprintf(QuestionPromptFormat, index+1, text),
		IsLast:    index == QuestionCount-1,
		NextIndex: index + 1,
	}, StepAwaitAnswer
}
