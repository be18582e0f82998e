// Package assessment implements the DASS-21 questionnaire: the fixed question
// list, answer collection, scoring and the controller that walks a participant
// from the first question to the final supportive message.
package assessment

// Questionnaire shape constants
const (
	// QuestionCount is the number of items in the questionnaire.
	QuestionCount = 21
	// ItemsPerScale is the number of items feeding each sub-scale.
	ItemsPerScale = 7
	// MinAnswer is the lowest accepted answer value.
	MinAnswer = 0
	// MaxAnswer is the highest accepted answer value.
	MaxAnswer = 3
	// ScoreMultiplier converts a DASS-21 sub-scale sum to the DASS-42 scale.
	ScoreMultiplier = 2
	// QuestionPromptFormat is the format string for a displayed question (1-indexed).
	QuestionPromptFormat = "Question %d: %s"
)

// questions holds the 21 items in presentation order. Items [0,7) feed the
// depression score, [7,14) anxiety and [14,21) stress.
var questions = [QuestionCount]string{
	"I found it hard to wind down",
	"I was aware of dryness of my mouth",
	"I couldn't seem to experience any positive feeling at all",
	"I experienced breathing difficulty (e.g. excessively rapid breathing, breathlessness in the absence of physical exertion)",
	"I found it difficult to work up the initiative to do things",
	"I tended to over-react to situations",
	"I experienced trembling (e.g. in the hands)",
	"I felt that I was using a lot of nervous energy",
	"I was worried about situations in which I might panic and make a fool of myself",
	"I felt that I had nothing to look forward to",
	"I found myself getting agitated",
	"I found it difficult to relax",
	"I felt down-hearted and blue",
	"I was intolerant of anything that kept me from getting on with what I was doing",
	"I felt I was close to panic",
	"I was unable to become enthusiastic about anything",
	"I felt I wasn't worth much as a person",
	"I felt that I was rather touchy",
	"I was aware of the action of my heart in the absence of physical exertion (e.g. sense of heart rate increase, heart missing a beat)",
	"I felt scared without any good reason",
	"I felt that life was meaningless",
}

// Questions returns a copy of the question texts in presentation order.
func Questions() []string {
	out := make([]string, QuestionCount)
	copy(out, questions[:])
	return out
}
