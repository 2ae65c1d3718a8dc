package store

import (
	"fmt"
	"math"
	"time"

	"github.com/avasilev/skillgate/internal/grader"
	"github.com/avasilev/skillgate/internal/model"
)

// ExportAllSessions builds export-ready results for every stored session,
// including the recorded answers of the session's candidate and a recomputed
// aggregate score. passScore must be the same threshold used at grading time
// so the exported pass/fail matches what the candidate was told.
func (s *Store) ExportAllSessions(passScore int) (model.ResultsExport, error) {
	export := model.ResultsExport{ExportedAt: time.Now()}

	sessions, err := s.ListSessions()
	if err != nil {
		return export, fmt.Errorf("list sessions: %w", err)
	}

	for _, sess := range sessions {
		questions, err := s.GetQuestionsForSession(sess.ID)
		if err != nil {
			return export, fmt.Errorf("questions for session %d: %w", sess.ID, err)
		}
		answers, err := s.GetAnswers(sess.ID, sess.CandidateID)
		if err != nil {
			return export, fmt.Errorf("answers for session %d: %w", sess.ID, err)
		}

		result := model.SessionResult{
			Session:   sess,
			Questions: questions,
			Answers:   answers,
		}
		if len(answers) > 0 {
			score := aggregateScore(questions, answers, passScore)
			result.Score = &score
		}
		export.Sessions = append(export.Sessions, result)
	}

	return export, nil
}

// GetSessionResult returns one session's questions and a candidate's
// recorded answers, with the aggregate score recomputed from them at the
// given pass threshold.
func (s *Store) GetSessionResult(sessionID int64, candidateID string, passScore int) (model.SessionResult, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return model.SessionResult{}, err
	}
	questions, err := s.GetQuestionsForSession(sessionID)
	if err != nil {
		return model.SessionResult{}, fmt.Errorf("questions for session %d: %w", sessionID, err)
	}
	answers, err := s.GetAnswers(sessionID, candidateID)
	if err != nil {
		return model.SessionResult{}, fmt.Errorf("answers for session %d: %w", sessionID, err)
	}

	result := model.SessionResult{
		Session:   sess,
		Questions: questions,
		Answers:   answers,
	}
	if len(answers) > 0 {
		score := aggregateScore(questions, answers, passScore)
		result.Score = &score
	}
	return result, nil
}

// aggregateScore recomputes the session aggregate from the immutable
// per-answer correctness records. The candidate's selected index is derived
// from the recorded answer text, which matches one option for every answered
// question.
func aggregateScore(questions []model.AssessmentQuestion, answers []model.CandidateAnswer, passScore int) model.ScoreResult {
	if passScore <= 0 {
		passScore = grader.DefaultPassScore
	}

	byQuestion := make(map[int64]model.CandidateAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := model.ScoreResult{Total: len(questions)}
	for _, q := range questions {
		a, answered := byQuestion[q.ID]
		correct := answered && a.IsCorrect
		if correct {
			result.CorrectCount++
		}

		var userIndex *int
		if answered {
			for i, opt := range q.Options {
				if opt == a.AnswerText {
					idx := i
					userIndex = &idx
					break
				}
			}
		}

		result.Details = append(result.Details, model.AnswerDetail{
			QuestionID:   q.ID,
			Correct:      correct,
			UserIndex:    userIndex,
			CorrectIndex: q.CorrectIndex(),
		})
	}
	if result.Total > 0 {
		result.Score = int(math.Round(float64(result.CorrectCount) / float64(result.Total) * 100))
	}
	result.Passed = result.Score >= passScore
	return result
}
