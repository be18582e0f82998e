package assessment

import (
	"errors"
	"testing"
)

func TestRecord(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     ErrorKind
		err      error
		message  string
		appended int
	}{
		{"zero", "0", ErrorKindNone, nil, "", 0},
		{"three", "3", ErrorKindNone, nil, "", 3},
		{"trailing newline", " 2\n", ErrorKindNone, nil, "", 2},
		{"letters", "abc", ErrorKindNotANumber, ErrNotANumber, NotANumberMessage, 0},
		{"empty", "", ErrorKindNotANumber, ErrNotANumber, NotANumberMessage, 0},
		{"decimal", "1.5", ErrorKindNotANumber, ErrNotANumber, NotANumberMessage, 0},
		{"too big", "5", ErrorKindOutOfRange, ErrOutOfRange, OutOfRangeMessage, 0},
		{"negative", "-1", ErrorKindOutOfRange, ErrOutOfRange, OutOfRangeMessage, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := []int{1, 2}
			res := Record(tt.raw, existing)
			if res.Kind != tt.kind {
				t.Fatalf("kind = %q, want %q", res.Kind, tt.kind)
			}
			if !errors.Is(res.Err, tt.err) {
				t.Errorf("err = %v, want %v", res.Err, tt.err)
			}
			if res.Message != tt.message {
				t.Errorf("message = %q, want %q", res.Message, tt.message)
			}
			if tt.kind != ErrorKindNone {
				if len(res.Responses) != 2 || res.Next != StepAwaitAnswer {
					t.Errorf("rejected answer changed state: %v next=%s", res.Responses, res.Next)
				}
				return
			}
			if len(res.Responses) != 3 || res.Responses[2] != tt.appended {
				t.Errorf("expected %d appended, got %v", tt.appended, res.Responses)
			}
			if res.Next != StepAskQuestion {
				t.Errorf("expected ask step, got %s", res.Next)
			}
		})
	}
}

func TestRecord_DoesNotAliasInput(t *testing.T) {
	existing := make([]int, 2, 10)
	res := Record("3", existing)
	res.Responses[0] = 9
	if existing[0] != 0 {
		t.Error("Record wrote through to the caller's slice")
	}
}

func TestRecord_CompletesOnLastAnswer(t *testing.T) {
	existing := make([]int, QuestionCount-1)
	res := Record("1", existing)
	if !res.Accepted() {
		t.Fatalf("expected accepted, got %s", res.Kind)
	}
	if res.Next != StepComputeScore {
		t.Errorf("expected compute step after answer 21, got %s", res.Next)
	}
}
