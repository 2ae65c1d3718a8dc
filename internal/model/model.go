package model

import "time"

// Difficulty represents the seniority level an assessment targets.
type Difficulty string

const (
	DifficultyJunior Difficulty = "junior"
	DifficultyMid    Difficulty = "mid"
	DifficultySenior Difficulty = "senior"
)

var validDifficulties = map[Difficulty]bool{
	DifficultyJunior: true,
	DifficultyMid:    true,
	DifficultySenior: true,
}

// IsValidDifficulty checks if a difficulty name is valid.
func IsValidDifficulty(d string) bool {
	return validDifficulties[Difficulty(d)]
}

// Category represents a question category.
type Category string

const (
	CategoryAptitude  Category = "aptitude"
	CategoryTechnical Category = "technical"
)

// QuestionTypeMCQ is the only question type the pipeline produces.
const QuestionTypeMCQ = "multiple_choice"

// OptionsPerQuestion is the required number of answer options per question.
const OptionsPerQuestion = 4

// ChunkMetadata carries provenance for a chunk of source-document text.
type ChunkMetadata struct {
	ChunkIndex int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
	SourceID   string `json:"source_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// Chunk is a bounded span of document text prepared for embedding and
// retrieval. Chunks are immutable after creation; re-ingesting a document
// supersedes them.
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RetrievedContext is a chunk returned by a similarity query, annotated with
// its relevance score. Constructed per query, never persisted.
type RetrievedContext struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float32       `json:"similarity"`
}

// AssessmentQuestion is a generated gradable multiple-choice item.
// Invariants: exactly 4 options, CorrectAnswer is one of them.
type AssessmentQuestion struct {
	ID            int64      `json:"id"`
	SessionID     int64      `json:"session_id"`
	QuestionText  string     `json:"question_text"`
	QuestionType  string     `json:"question_type"`
	Category      Category   `json:"category"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
	Difficulty    Difficulty `json:"difficulty"`
}

// CorrectIndex returns the index of the correct option, or -1 if the correct
// answer is not among the options.
func (q AssessmentQuestion) CorrectIndex() int {
	for i, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return i
		}
	}
	return -1
}

// Assessment is the result of one generation call: the normalized questions
// plus the ids of the chunks that grounded them, for auditability.
type Assessment struct {
	Questions    []AssessmentQuestion `json:"questions"`
	SourceChunks []string             `json:"source_chunks"`
	ModelUsed    string               `json:"model_used"`
}

// AssessmentSession groups the questions generated for one candidate/job pairing.
type AssessmentSession struct {
	ID                int64      `json:"id"`
	CandidateID       string     `json:"candidate_id"`
	JobTitle          string     `json:"job_title"`
	Difficulty        Difficulty `json:"difficulty"`
	ModelUsed         string     `json:"model_used"`
	RetrievedChunkIDs []string   `json:"retrieved_chunk_ids"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CandidateAnswer is one submitted response, immutable once recorded.
// SimilarityScore is 1.0 for a correct answer and 0.0 otherwise.
type CandidateAnswer struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	QuestionID      int64     `json:"question_id"`
	CandidateID     string    `json:"candidate_id"`
	AnswerText      string    `json:"answer_text"`
	IsCorrect       bool      `json:"is_correct"`
	SimilarityScore float64   `json:"similarity_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnswerDetail records the outcome for a single question within a ScoreResult.
type AnswerDetail struct {
	QuestionID   int64 `json:"question_id"`
	Correct      bool  `json:"correct"`
	UserIndex    *int  `json:"user_index"`
	CorrectIndex int   `json:"correct_index"`
}

// ScoreResult is the aggregate outcome of grading one answer set.
type ScoreResult struct {
	CorrectCount int            `json:"correct_count"`
	Total        int            `json:"total"`
	Score        int            `json:"score"`
	Passed       bool           `json:"passed"`
	Details      []AnswerDetail `json:"details"`
}
