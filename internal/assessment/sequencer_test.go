package assessment

import (
	"strings"
	"testing"
)

func TestNext_FirstQuestion(t *testing.T) {
	q, step := Next(0)
	if step != StepAwaitAnswer {
		t.Fatalf("expected await step, got %s", step)
	}
	if q.Prompt != "Question 1: I found it hard to wind down" {
		t.Errorf("unexpected prompt %q", q.Prompt)
	}
	if q.IsLast {
		t.Error("first question should not be last")
	}
	if q.NextIndex != 1 {
		t.Errorf("expected next index 1, got %d", q.NextIndex)
	}
}

func TestNext_LastQuestion(t *testing.T) {
	q, step := Next(QuestionCount - 1)
	if step != StepAwaitAnswer {
		t.Fatalf("expected await step, got %s", step)
	}
	if !q.IsLast {
		t.Error("question 21 should be last")
	}
	if !strings.HasPrefix(q.Prompt, "Question 21: ") {
		t.Errorf("unexpected prompt %q", q.Prompt)
	}
	if q.Text != "I felt that life was meaningless" {
		t.Errorf("unexpected text %q", q.Text)
	}
}

func TestNext_DoneGuard(t *testing.T) {
	for _, idx := range []int{QuestionCount, QuestionCount + 1, 100, -1} {
		q, step := Next(idx)
		if step != StepComputeScore {
			t.Errorf("Next(%d): expected compute step, got %s", idx, step)
		}
		if q.Prompt != "" {
			t.Errorf("Next(%d): expected no prompt, got %q", idx, q.Prompt)
		}
	}
}

func TestQuestions_ReturnsCopy(t *testing.T) {
	qs := Questions()
	if len(qs) != QuestionCount {
		t.Fatalf("expected %d questions, got %d", QuestionCount, len(qs))
	}
	qs[0] = "mutated"
	if q, _ := Next(0); q.Text == "mutated" {
		t.Error("Questions() exposed the internal list")
	}
}
