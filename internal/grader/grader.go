// Package grader scores candidate answers against stored correct answers.
package grader

import (
	"math"
	"strings"

	"github.com/avasilev/skillgate/internal/model"
)

// DefaultPassScore is the minimum percentage score to pass an assessment.
const DefaultPassScore = 70

// Grader derives pass/fail results from answer sets. The zero value uses
// DefaultPassScore.
type Grader struct {
	passScore int
}

// New creates a Grader with the given pass threshold. A non-positive
// threshold falls back to DefaultPassScore.
func New(passScore int) *Grader {
	if passScore <= 0 {
		passScore = DefaultPassScore
	}
	return &Grader{passScore: passScore}
}

// PassScore returns the configured pass threshold.
func (g *Grader) PassScore() int {
	if g.passScore <= 0 {
		return DefaultPassScore
	}
	return g.passScore
}

// Grade compares each candidate-selected option index against the question's
// correct option index. A nil entry (unanswered) never counts as correct.
// The overall score is the correct fraction as a percentage, rounded to the
// nearest integer. Grading is pure: the same inputs always produce the same
// result.
func (g *Grader) Grade(userAnswers []*int, questions []model.AssessmentQuestion) model.ScoreResult {
	passScore := g.passScore
	if passScore <= 0 {
		passScore = DefaultPassScore
	}

	result := model.ScoreResult{
		Total:   len(questions),
		Details: make([]model.AnswerDetail, 0, len(questions)),
	}

	for i, q := range questions {
		correctIndex := q.CorrectIndex()

		var userIndex *int
		if i < len(userAnswers) {
			userIndex = userAnswers[i]
		}

		correct := userIndex != nil && correctIndex >= 0 && *userIndex == correctIndex
		if correct {
			result.CorrectCount++
		}

		result.Details = append(result.Details, model.AnswerDetail{
			QuestionID:   q.ID,
			Correct:      correct,
			UserIndex:    userIndex,
			CorrectIndex: correctIndex,
		})
	}

	if result.Total > 0 {
		result.Score = int(math.Round(float64(result.CorrectCount) / float64(result.Total) * 100))
	}
	result.Passed = result.Score >= passScore

	return result
}

// GradeText grades a free-text answer by case-insensitive, whitespace-trimmed
// exact match. No partial credit and no semantic matching: a deliberately
// weak strategy kept for open-ended answers.
func GradeText(answer, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(correct))
}
