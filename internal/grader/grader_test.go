package grader

import (
	"reflect"
	"testing"

	"github.com/avasilev/skillgate/internal/model"
)

func mcq(id int64, correctIndex int) model.AssessmentQuestion {
	options := []string{"A", "B", "C", "D"}
	return model.AssessmentQuestion{
		ID:            id,
		QuestionText:  "q",
		QuestionType:  model.QuestionTypeMCQ,
		Options:       options,
		CorrectAnswer: options[correctIndex],
	}
}

func intp(i int) *int { return &i }

func TestGrade(t *testing.T) {
	questions := []model.AssessmentQuestion{mcq(1, 1), mcq(2, 0), mcq(3, 2)}
	g := New(DefaultPassScore)

	tests := []struct {
		name        string
		answers     []*int
		wantCorrect int
		wantScore   int
		wantPassed  bool
	}{
		{"two of three with one unanswered", []*int{intp(1), intp(0), nil}, 2, 67, false},
		{"all correct", []*int{intp(1), intp(0), intp(2)}, 3, 100, true},
		{"all wrong", []*int{intp(0), intp(1), intp(3)}, 0, 0, false},
		{"all unanswered", []*int{nil, nil, nil}, 0, 0, false},
		{"short answer slice", []*int{intp(1)}, 1, 33, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.Grade(tt.answers, questions)
			if result.CorrectCount != tt.wantCorrect {
				t.Errorf("correct count = %d, want %d", result.CorrectCount, tt.wantCorrect)
			}
			if result.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", result.Score, tt.wantScore)
			}
			if result.Passed != tt.wantPassed {
				t.Errorf("passed = %v, want %v", result.Passed, tt.wantPassed)
			}
			if result.Total != len(questions) {
				t.Errorf("total = %d, want %d", result.Total, len(questions))
			}
			if len(result.Details) != len(questions) {
				t.Errorf("details length = %d, want %d", len(result.Details), len(questions))
			}
		})
	}
}

func TestGradeDetails(t *testing.T) {
	questions := []model.AssessmentQuestion{mcq(10, 1), mcq(20, 0)}
	result := New(70).Grade([]*int{intp(1), intp(3)}, questions)

	d := result.Details[0]
	if d.QuestionID != 10 || !d.Correct || *d.UserIndex != 1 || d.CorrectIndex != 1 {
		t.Errorf("unexpected detail for question 10: %+v", d)
	}
	d = result.Details[1]
	if d.QuestionID != 20 || d.Correct || *d.UserIndex != 3 || d.CorrectIndex != 0 {
		t.Errorf("unexpected detail for question 20: %+v", d)
	}
}

func TestGradeIdempotent(t *testing.T) {
	questions := []model.AssessmentQuestion{mcq(1, 1), mcq(2, 0), mcq(3, 2)}
	answers := []*int{intp(1), nil, intp(2)}
	g := New(70)

	first := g.Grade(answers, questions)
	second := g.Grade(answers, questions)
	if !reflect.DeepEqual(first, second) {
		t.Error("grading the same answer set twice produced different results")
	}
}

func TestGradePassThresholdBoundary(t *testing.T) {
	// 7 of 10 correct is exactly the default threshold.
	var questions []model.AssessmentQuestion
	var answers []*int
	for i := 0; i < 10; i++ {
		questions = append(questions, mcq(int64(i+1), 0))
		if i < 7 {
			answers = append(answers, intp(0))
		} else {
			answers = append(answers, intp(1))
		}
	}

	result := New(DefaultPassScore).Grade(answers, questions)
	if result.Score != 70 {
		t.Fatalf("score = %d, want 70", result.Score)
	}
	if !result.Passed {
		t.Error("exactly 70 must pass")
	}
}

func TestGradeEmptyQuestionSet(t *testing.T) {
	result := New(70).Grade(nil, nil)
	if result.Score != 0 || result.Passed || result.Total != 0 {
		t.Errorf("unexpected result for empty question set: %+v", result)
	}
}

func TestGradeCorruptQuestion(t *testing.T) {
	// A question whose correct answer is not among its options can never be
	// answered correctly.
	q := model.AssessmentQuestion{
		ID:            1,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: "E",
	}
	result := New(70).Grade([]*int{intp(0)}, []model.AssessmentQuestion{q})
	if result.CorrectCount != 0 {
		t.Error("corrupt question must not grade as correct")
	}
	if result.Details[0].CorrectIndex != -1 {
		t.Errorf("expected correct index -1, got %d", result.Details[0].CorrectIndex)
	}
}

func TestGradeText(t *testing.T) {
	tests := []struct {
		name            string
		answer, correct string
		want            bool
	}{
		{"exact", "goroutine", "goroutine", true},
		{"case insensitive", "Goroutine", "goroutine", true},
		{"trimmed", "  goroutine \n", "goroutine", true},
		{"different", "thread", "goroutine", false},
		{"empty answer", "", "goroutine", false},
		{"both empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GradeText(tt.answer, tt.correct); got != tt.want {
				t.Errorf("GradeText(%q, %q) = %v, want %v", tt.answer, tt.correct, got, tt.want)
			}
		})
	}
}
