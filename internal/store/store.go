// Package store persists assessment sessions, their questions, and candidate
// answers in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avasilev/skillgate/internal/model"

	_ "modernc.org/sqlite"
)

// ErrDuplicateAnswer indicates answers were already recorded for the same
// session, question, and candidate.
var ErrDuplicateAnswer = errors.New("answers already recorded")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessment_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id TEXT NOT NULL,
		job_title TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		model_used TEXT NOT NULL DEFAULT '',
		retrieved_chunk_ids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assessment_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		category TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES assessment_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS candidate_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		candidate_id TEXT NOT NULL,
		answer_text TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL,
		similarity_score REAL NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, question_id, candidate_id),
		FOREIGN KEY (session_id) REFERENCES assessment_sessions(id),
		FOREIGN KEY (question_id) REFERENCES assessment_questions(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateAssessment stores a session and its generated questions in one
// transaction and returns the new session id.
func (s *Store) CreateAssessment(sess model.AssessmentSession, questions []model.AssessmentQuestion) (int64, error) {
	chunkIDs, err := json.Marshal(sess.RetrievedChunkIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal chunk ids: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO assessment_sessions (candidate_id, job_title, difficulty, model_used, retrieved_chunk_ids, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.CandidateID, sess.JobTitle, sess.Difficulty, sess.ModelUsed, string(chunkIDs), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, fmt.Errorf("marshal options: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO assessment_questions (session_id, question_text, question_type, category, options, correct_answer, explanation, difficulty)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, q.QuestionText, q.QuestionType, q.Category, string(options), q.CorrectAnswer, q.Explanation, q.Difficulty,
		)
		if err != nil {
			return 0, err
		}
	}

	return sessionID, tx.Commit()
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id int64) (model.AssessmentSession, error) {
	var sess model.AssessmentSession
	var chunkIDs string
	err := s.db.QueryRow(
		`SELECT id, candidate_id, job_title, difficulty, model_used, retrieved_chunk_ids, created_at
		 FROM assessment_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CandidateID, &sess.JobTitle, &sess.Difficulty, &sess.ModelUsed, &chunkIDs, &sess.CreatedAt)
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal([]byte(chunkIDs), &sess.RetrievedChunkIDs); err != nil {
		return sess, fmt.Errorf("unmarshal chunk ids: %w", err)
	}
	return sess, nil
}

// GetQuestionsForSession returns a session's questions in generation order.
func (s *Store) GetQuestionsForSession(sessionID int64) ([]model.AssessmentQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_text, question_type, category, options, correct_answer, explanation, difficulty
		 FROM assessment_questions WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.AssessmentQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.AssessmentQuestion, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, question_text, question_type, category, options, correct_answer, explanation, difficulty
		 FROM assessment_questions WHERE id = ?`, id,
	)
	return scanQuestion(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.AssessmentQuestion, error) {
	var q model.AssessmentQuestion
	var options string
	err := row.Scan(&q.ID, &q.SessionID, &q.QuestionText, &q.QuestionType, &q.Category, &options, &q.CorrectAnswer, &q.Explanation, &q.Difficulty)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}

// InsertAnswers records a candidate's answers in one transaction. Answers are
// immutable: re-submitting for the same session, question, and candidate
// fails the unique constraint.
func (s *Store) InsertAnswers(answers []model.CandidateAnswer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, a := range answers {
		_, err := tx.Exec(
			`INSERT INTO candidate_answers (session_id, question_id, candidate_id, answer_text, is_correct, similarity_score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.SessionID, a.QuestionID, a.CandidateID, a.AnswerText, a.IsCorrect, a.SimilarityScore, now,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("answer for question %d: %w", a.QuestionID, ErrDuplicateAnswer)
			}
			return err
		}
	}

	return tx.Commit()
}

// GetAnswers returns a candidate's answers for a session in question order.
func (s *Store) GetAnswers(sessionID int64, candidateID string) ([]model.CandidateAnswer, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, candidate_id, answer_text, is_correct, similarity_score, created_at
		 FROM candidate_answers WHERE session_id = ? AND candidate_id = ? ORDER BY question_id`,
		sessionID, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.CandidateAnswer
	for rows.Next() {
		var a model.CandidateAnswer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.CandidateID, &a.AnswerText, &a.IsCorrect, &a.SimilarityScore, &a.CreatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.AssessmentSession, error) {
	rows, err := s.db.Query(
		`SELECT id, candidate_id, job_title, difficulty, model_used, retrieved_chunk_ids, created_at
		 FROM assessment_sessions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.AssessmentSession
	for rows.Next() {
		var sess model.AssessmentSession
		var chunkIDs string
		if err := rows.Scan(&sess.ID, &sess.CandidateID, &sess.JobTitle, &sess.Difficulty, &sess.ModelUsed, &chunkIDs, &sess.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(chunkIDs), &sess.RetrievedChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionCount returns the number of sessions in the database.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assessment_sessions`).Scan(&count)
	return count, err
}
