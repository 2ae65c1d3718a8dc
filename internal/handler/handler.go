// Package handler exposes the assessment pipeline over HTTP.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avasilev/skillgate/internal/chunker"
	"github.com/avasilev/skillgate/internal/generator"
	"github.com/avasilev/skillgate/internal/grader"
	"github.com/avasilev/skillgate/internal/ingest"
	"github.com/avasilev/skillgate/internal/model"
	"github.com/avasilev/skillgate/internal/store"
)

// AssessmentGenerator produces a grounded question set for a job/candidate pairing.
type AssessmentGenerator interface {
	Generate(ctx context.Context, jobDescription, resumeText string, difficulty model.Difficulty, kbSourceIDs []string) (*model.Assessment, error)
}

// DocumentIngestor indexes chunks into the knowledge base.
type DocumentIngestor interface {
	Ingest(ctx context.Context, chunks []model.Chunk) ingest.Result
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	generator AssessmentGenerator
	ingestor  DocumentIngestor
	chunker   *chunker.Chunker
	grader    *grader.Grader
}

// New creates a new Handler.
func New(s *store.Store, g AssessmentGenerator, ing DocumentIngestor, c *chunker.Chunker, gr *grader.Grader) *Handler {
	return &Handler{store: s, generator: g, ingestor: ing, chunker: c, grader: gr}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/documents", h.handleIngestDocument)
	r.Post("/assessments", h.handleCreateAssessment)
	r.Get("/assessments/{sessionID}", h.handleGetAssessment)
	r.Post("/assessments/{sessionID}/submit", h.handleSubmit)
	r.Get("/assessments/{sessionID}/result", h.handleResult)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Text     string `json:"text"`
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
}

type ingestResponse struct {
	SourceID       string `json:"source_id"`
	ChunksCreated  int    `json:"chunks_created"`
	ChunksIngested int    `json:"chunks_ingested"`
	Success        bool   `json:"success"`
}

func (h *Handler) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httpError(w, http.StatusBadRequest, "text is required")
		return
	}

	chunks := h.chunker.Chunk(req.Text, req.SourceID, req.Filename)
	result := h.ingestor.Ingest(r.Context(), chunks)

	// Batch failures stay server-side; the client only needs the outcome.
	for _, err := range result.Errors {
		slog.Error("ingestion batch failed", "source_id", req.SourceID, "error", err)
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		SourceID:       req.SourceID,
		ChunksCreated:  len(chunks),
		ChunksIngested: result.ChunksIngested,
		Success:        result.Success(),
	})
}

type createAssessmentRequest struct {
	CandidateID    string   `json:"candidate_id"`
	JobTitle       string   `json:"job_title"`
	JobDescription string   `json:"job_description"`
	ResumeText     string   `json:"resume_text"`
	Difficulty     string   `json:"difficulty"`
	KBSourceIDs    []string `json:"kb_source_ids"`
}

// questionView is a question as shown to the candidate: no correct answer,
// no explanation.
type questionView struct {
	ID           int64            `json:"id"`
	QuestionText string           `json:"question_text"`
	QuestionType string           `json:"question_type"`
	Category     model.Category   `json:"category"`
	Options      []string         `json:"options"`
	Difficulty   model.Difficulty `json:"difficulty"`
}

type assessmentResponse struct {
	SessionID   int64            `json:"session_id"`
	CandidateID string           `json:"candidate_id"`
	JobTitle    string           `json:"job_title,omitempty"`
	Difficulty  model.Difficulty `json:"difficulty"`
	Questions   []questionView   `json:"questions"`
}

func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req createAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CandidateID == "" {
		httpError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		httpError(w, http.StatusBadRequest, "job_description is required")
		return
	}
	if !model.IsValidDifficulty(req.Difficulty) {
		httpError(w, http.StatusBadRequest, "difficulty must be one of junior, mid, senior")
		return
	}

	assessment, err := h.generator.Generate(r.Context(), req.JobDescription, req.ResumeText, model.Difficulty(req.Difficulty), req.KBSourceIDs)
	if err != nil {
		var formatErr *generator.FormatError
		if errors.As(err, &formatErr) {
			// Malformed model output is non-deterministic; the client may retry.
			slog.Error("generation format error", "reason", formatErr.Reason)
			httpError(w, http.StatusBadGateway, "assessment generation failed, please try again")
			return
		}
		slog.Error("assessment generation failed", "error", err)
		httpError(w, http.StatusBadGateway, "assessment generation failed")
		return
	}

	sessionID, err := h.store.CreateAssessment(model.AssessmentSession{
		CandidateID:       req.CandidateID,
		JobTitle:          req.JobTitle,
		Difficulty:        model.Difficulty(req.Difficulty),
		ModelUsed:         assessment.ModelUsed,
		RetrievedChunkIDs: assessment.SourceChunks,
	}, assessment.Questions)
	if err != nil {
		slog.Error("persist assessment failed", "error", err)
		httpError(w, http.StatusInternalServerError, "failed to store assessment")
		return
	}

	questions, err := h.store.GetQuestionsForSession(sessionID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}

	writeJSON(w, http.StatusCreated, assessmentResponse{
		SessionID:   sessionID,
		CandidateID: req.CandidateID,
		JobTitle:    req.JobTitle,
		Difficulty:  model.Difficulty(req.Difficulty),
		Questions:   sanitizeQuestions(questions),
	})
}

func (h *Handler) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	sess, err := h.store.GetSession(sessionID)
	if err == sql.ErrNoRows {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	questions, err := h.store.GetQuestionsForSession(sessionID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, assessmentResponse{
		SessionID:   sess.ID,
		CandidateID: sess.CandidateID,
		JobTitle:    sess.JobTitle,
		Difficulty:  sess.Difficulty,
		Questions:   sanitizeQuestions(questions),
	})
}

type submitRequest struct {
	CandidateID string `json:"candidate_id"`
	Answers     []*int `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CandidateID == "" {
		httpError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	if _, err := h.store.GetSession(sessionID); err == sql.ErrNoRows {
		httpError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	questions, err := h.store.GetQuestionsForSession(sessionID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(req.Answers) != len(questions) {
		httpError(w, http.StatusBadRequest, "answers length must match question count")
		return
	}

	result := h.grader.Grade(req.Answers, questions)

	answers := make([]model.CandidateAnswer, len(questions))
	for i, q := range questions {
		var answerText string
		if idx := req.Answers[i]; idx != nil && *idx >= 0 && *idx < len(q.Options) {
			answerText = q.Options[*idx]
		}
		similarity := 0.0
		if result.Details[i].Correct {
			similarity = 1.0
		}
		answers[i] = model.CandidateAnswer{
			SessionID:       sessionID,
			QuestionID:      q.ID,
			CandidateID:     req.CandidateID,
			AnswerText:      answerText,
			IsCorrect:       result.Details[i].Correct,
			SimilarityScore: similarity,
		}
	}

	if err := h.store.InsertAnswers(answers); err != nil {
		// Answers are immutable; a duplicate submission hits the unique constraint.
		if errors.Is(err, store.ErrDuplicateAnswer) {
			httpError(w, http.StatusConflict, "answers already submitted for this session")
			return
		}
		slog.Error("persist answers failed", "session_id", sessionID, "error", err)
		httpError(w, http.StatusInternalServerError, "failed to store answers")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	candidateID := r.URL.Query().Get("candidate_id")
	if candidateID == "" {
		httpError(w, http.StatusBadRequest, "candidate_id query parameter is required")
		return
	}

	result, err := h.store.GetSessionResult(sessionID, candidateID, h.grader.PassScore())
	if err == sql.ErrNoRows {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid session ID")
		return 0, false
	}
	return sessionID, true
}

func sanitizeQuestions(questions []model.AssessmentQuestion) []questionView {
	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Category:     q.Category,
			Options:      q.Options,
			Difficulty:   q.Difficulty,
		}
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
