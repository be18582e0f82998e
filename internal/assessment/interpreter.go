package assessment

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/DASSPipe/internal/models"
)

// BucketWidth is the score range covered by one severity level.
const BucketWidth = 14

// ErrIncompleteResponses is returned when scoring is attempted before all items are answered.
var ErrIncompleteResponses = errors.New("responses incomplete")

// levelTable maps a bucket to its level; the same table serves all three sub-scales.
var levelTable = [...]models.Level{
	models.LevelNormal,
	models.LevelMild,
	models.LevelModerate,
	models.LevelSevere,
	models.LevelExtremelySevere,
}

// Supportive messages, one per severity tier.
const (
	ExtremelySevereMessage = "I'm so sorry you're going through such a difficult time. It's clear that you're experiencing extremely severe symptoms, and I want you to know that I'm here to support you. Please don't hesitate to reach out to a mental health professional or call a crisis hotline. They can provide you with the specialized care and resources you need to start feeling better."
	SevereMessage          = "I understand this is a very challenging situation for you. The severity of your symptoms indicates that you may need additional support. I would recommend speaking with a therapist or counselor who can provide you with personalized care and treatment options. In the meantime, here are some helpful resources you can look into..."
	ModerateMessage        = "I'm sorry to hear you're struggling with moderate symptoms. It's great that you're taking the time to assess your mental health. Some things that may help in the short term are practicing relaxation techniques, engaging in regular exercise, and reaching out to supportive friends or family members. Remember, you're not alone in this, and there are ways to manage these challenges."
	NormalOrMildMessage    = "I'm glad to hear your symptoms are in the normal or mild range. It's important to continue taking care of your mental health, even when things aren't as severe. Remember to prioritize self-care, and don't hesitate to reach out if you ever need additional support. You've got this!"
)

// LevelFor classifies one sub-scale score. Buckets are clamped to [0,4].
func LevelFor(score int) models.Level {
	bucket := score / BucketWidth
	if score < 0 {
		bucket = 0
	}
	bucket = min(len(levelTable)-1, bucket)
	return levelTable[bucket]
}

// Interpret maps the three sub-scale scores to their severity levels.
func Interpret(depression, anxiety, stress int) models.Levels {
	return models.Levels{
		Depression: LevelFor(depression),
		Anxiety:    LevelFor(anxiety),
		Stress:     LevelFor(stress),
	}
}

// ComputeScores sums each 7-item slice of a complete response set and doubles it.
func ComputeScores(responses []int) (models.Scores, error) {
	if len(responses) != QuestionCount {
		return models.Scores{}, fmt.Errorf("%w: have %d of %d", ErrIncompleteResponses, len(responses), QuestionCount)
	}
	return models.Scores{
		Depression: ScoreMultiplier * sum(responses[0:ItemsPerScale]),
		Anxiety:    ScoreMultiplier * sum(responses[ItemsPerScale:2*ItemsPerScale]),
		Stress:     ScoreMultiplier * sum(responses[2*ItemsPerScale:3*ItemsPerScale]),
	}, nil
}

// Respond picks the supportive message for the most severe tier reached by any
// sub-scale: Extremely Severe, then Severe, then Moderate, else Normal/Mild.
func Respond(levels models.Levels) string {
	switch {
	case levels.Any(models.LevelExtremelySevere):
		return ExtremelySevereMessage
	case levels.Any(models.LevelSevere):
		return SevereMessage
	case levels.Any(models.LevelModerate):
		return ModerateMessage
	default:
		return NormalOrMildMessage
	}
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
