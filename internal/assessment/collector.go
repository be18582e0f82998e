package assessment

import (
	"errors"
	"strconv"
	"strings"
)

// ErrorKind classifies a rejected answer.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindNotANumber ErrorKind = "not_a_number"
	ErrorKindOutOfRange ErrorKind = "out_of_range"
)

// Corrective messages sent when an answer is rejected.
const (
	NotANumberMessage = "Please enter a valid number between 0 and 3."
	OutOfRangeMessage = "Please enter a number between 0 and 3."
)

var (
	ErrNotANumber = errors.New("answer is not a number")
	ErrOutOfRange = errors.New("answer out of range")
)

// Result is the outcome of recording one raw answer.
type Result struct {
	// Responses is the updated sequence on success, or the untouched input on rejection.
	Responses []int
	// Kind is ErrorKindNone on success.
	Kind ErrorKind
	// Err is ErrNotANumber or ErrOutOfRange on rejection.
	Err error
	// Message is the corrective text to show the participant, empty on success.
	Message string
	// Next is StepAskQuestion or StepComputeScore on success, StepAwaitAnswer on rejection.
	Next Step
}

// Accepted reports whether the answer was appended.
func (r Result) Accepted() bool {
	return r.Kind == ErrorKindNone
}

// Record validates raw and, if it is an integer in [0,3], returns a new
// sequence with it appended. The input slice is never modified.
func Record(raw string, existing []int) Result {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Result{
			Responses: existing,
			Kind:      ErrorKindNotANumber,
			Err:       ErrNotANumber,
			Message:   NotANumberMessage,
			Next:      StepAwaitAnswer,
		}
	}
	if value < MinAnswer || value > MaxAnswer {
		return Result{
			Responses: existing,
			Kind:      ErrorKindOutOfRange,
			Err:       ErrOutOfRange,
			Message:   OutOfRangeMessage,
			Next:      StepAwaitAnswer,
		}
	}

	updated := make([]int, len(existing), len(existing)+1)
	copy(updated, existing)
	updated = append(updated, value)

	next := StepAskQuestion
	if len(updated) >= QuestionCount {
		next = StepComputeScore
	}
	return Result{Responses: updated, Next: next}
}
