// Package generator produces grounded multiple-choice assessments from
// retrieved knowledge-base context and job/candidate text.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avasilev/skillgate/internal/llm"
	"github.com/avasilev/skillgate/internal/model"
	"github.com/avasilev/skillgate/internal/retriever"
)

const (
	// DefaultAptitudeCount and DefaultTechnicalCount fix the category split
	// requested from the model.
	DefaultAptitudeCount  = 5
	DefaultTechnicalCount = 5

	// maxQueryChars bounds the retrieval query built from the job
	// description, keeping it focused on the opening summary.
	maxQueryChars = 500
)

// FormatError indicates the model returned output that does not satisfy the
// structured-output contract. It is fatal for the generation call: there is
// no safe partial-credit path for a malformed question set.
type FormatError struct {
	Reason string
	Raw    string
}

func (e *FormatError) Error() string {
	return "malformed generation output: " + e.Reason
}

// ContextRetriever supplies grounding chunks for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, filterSourceIDs []string) ([]model.RetrievedContext, error)
}

// Generator builds grounded prompts and parses the model's structured output
// into gradable question records.
type Generator struct {
	llm            llm.CompletionClient
	retriever      ContextRetriever
	aptitudeCount  int
	technicalCount int
}

// New creates a Generator. Non-positive counts fall back to the defaults.
func New(client llm.CompletionClient, r ContextRetriever, aptitudeCount, technicalCount int) *Generator {
	if aptitudeCount <= 0 {
		aptitudeCount = DefaultAptitudeCount
	}
	if technicalCount <= 0 {
		technicalCount = DefaultTechnicalCount
	}
	return &Generator{
		llm:            client,
		retriever:      r,
		aptitudeCount:  aptitudeCount,
		technicalCount: technicalCount,
	}
}

// Generate retrieves grounding context for the job description, invokes the
// model under a strict output schema, and returns the normalized questions
// plus the ids of the chunks that grounded them. A query-embedding failure
// propagates; zero retrieved chunks is a logged warning, not a failure: the
// assessment proceeds ungrounded.
func (g *Generator) Generate(ctx context.Context, jobDescription, resumeText string, difficulty model.Difficulty, kbSourceIDs []string) (*model.Assessment, error) {
	query := retrievalQuery(jobDescription)

	contexts, err := g.retriever.Retrieve(ctx, query, kbSourceIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieve grounding context: %w", err)
	}
	if len(contexts) == 0 {
		slog.Warn("no grounding context retrieved, generating ungrounded assessment",
			"difficulty", difficulty, "source_filter", kbSourceIDs)
	}

	systemPrompt := g.buildSystemPrompt(difficulty)
	userPrompt := g.buildUserPrompt(contexts, jobDescription, resumeText)

	raw, err := g.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate assessment: %w", err)
	}

	questions, err := g.parseQuestions(raw, difficulty)
	if err != nil {
		return nil, err
	}

	chunkIDs := make([]string, len(contexts))
	for i, c := range contexts {
		chunkIDs[i] = c.ID
	}

	return &model.Assessment{
		Questions:    questions,
		SourceChunks: chunkIDs,
		ModelUsed:    g.llm.Model(),
	}, nil
}

// retrievalQuery truncates the job description to a bounded prefix, backing
// off to a word boundary.
func retrievalQuery(jobDescription string) string {
	query := strings.TrimSpace(jobDescription)
	if len(query) <= maxQueryChars {
		return query
	}
	query = query[:maxQueryChars]
	if idx := strings.LastIndex(query, " "); idx > 0 {
		query = query[:idx]
	}
	return query
}

func (g *Generator) buildSystemPrompt(difficulty model.Difficulty) string {
	total := g.aptitudeCount + g.technicalCount

	var sb strings.Builder
	sb.WriteString("You are a technical recruiter generating a candidate assessment.\n\n")
	sb.WriteString("RULES:\n")
	sb.WriteString("- Derive every question ONLY from the KNOWLEDGE BASE CONTEXT section. ")
	sb.WriteString("Never invent questions from the job description or resume alone, ")
	sb.WriteString("even if they mention topics absent from the context.\n")
	sb.WriteString("- If the context says \"" + retriever.NoContextSentinel + "\", ")
	sb.WriteString("generate general questions appropriate for the role instead.\n")

	switch difficulty {
	case model.DifficultyJunior:
		sb.WriteString("- Target a junior candidate: definitional questions about core concepts and terminology.\n")
	case model.DifficultySenior:
		sb.WriteString("- Target a senior candidate: architectural questions about design trade-offs, scaling, and failure modes.\n")
	default:
		sb.WriteString("- Target a mid-level candidate: best-practice questions about applying concepts correctly in real work.\n")
	}

	fmt.Fprintf(&sb, "- Produce exactly %d questions: %d with category \"aptitude\" and %d with category \"technical\".\n",
		total, g.aptitudeCount, g.technicalCount)
	sb.WriteString("- Each question is multiple-choice with exactly 4 distinct options and exactly one correct answer.\n")
	sb.WriteString("- The correct_answer field must exactly match one of the options.\n\n")
	sb.WriteString("Respond ONLY with a JSON object, no markdown, in this form:\n")
	sb.WriteString(`{"questions": [{"question_text": "...", "category": "aptitude|technical", "options": ["...", "...", "...", "..."], "correct_answer": "...", "explanation": "..."}]}`)
	sb.WriteString("\n")

	return sb.String()
}

func (g *Generator) buildUserPrompt(contexts []model.RetrievedContext, jobDescription, resumeText string) string {
	var sb strings.Builder
	sb.WriteString("KNOWLEDGE BASE CONTEXT:\n")
	sb.WriteString(retriever.FormatContext(contexts))
	sb.WriteString("\n\nJOB DESCRIPTION:\n")
	sb.WriteString(strings.TrimSpace(jobDescription))
	sb.WriteString("\n\nCANDIDATE RESUME:\n")
	sb.WriteString(strings.TrimSpace(resumeText))
	sb.WriteString("\n")
	return sb.String()
}

// generatedQuestion mirrors the model's output schema before normalization.
type generatedQuestion struct {
	QuestionText  string   `json:"question_text"`
	QuestionType  string   `json:"question_type"`
	Category      string   `json:"category"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type generatedPayload struct {
	Questions []generatedQuestion `json:"questions"`
}

// parseQuestions strips markdown fences, parses the structured output, and
// validates and normalizes every question. Any contract violation yields a
// FormatError carrying the raw output for diagnosis.
func (g *Generator) parseQuestions(raw string, difficulty model.Difficulty) ([]model.AssessmentQuestion, error) {
	cleaned := extractJSON(raw)

	var payload generatedPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("parse JSON: %v", err), Raw: raw}
	}

	want := g.aptitudeCount + g.technicalCount
	if len(payload.Questions) != want {
		return nil, &FormatError{
			Reason: fmt.Sprintf("expected %d questions, got %d", want, len(payload.Questions)),
			Raw:    raw,
		}
	}

	questions := make([]model.AssessmentQuestion, len(payload.Questions))
	for i, q := range payload.Questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			return nil, &FormatError{Reason: fmt.Sprintf("question %d has empty text", i+1), Raw: raw}
		}
		if len(q.Options) != model.OptionsPerQuestion {
			return nil, &FormatError{
				Reason: fmt.Sprintf("question %d has %d options, want %d", i+1, len(q.Options), model.OptionsPerQuestion),
				Raw:    raw,
			}
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if seen[opt] {
				return nil, &FormatError{Reason: fmt.Sprintf("question %d has duplicate option %q", i+1, opt), Raw: raw}
			}
			seen[opt] = true
		}
		if !seen[q.CorrectAnswer] {
			return nil, &FormatError{
				Reason: fmt.Sprintf("question %d correct_answer is not among the options", i+1),
				Raw:    raw,
			}
		}

		category := model.Category(strings.ToLower(strings.TrimSpace(q.Category)))
		if category != model.CategoryAptitude && category != model.CategoryTechnical {
			category = model.CategoryTechnical
		}

		questions[i] = model.AssessmentQuestion{
			QuestionText:  strings.TrimSpace(q.QuestionText),
			QuestionType:  model.QuestionTypeMCQ,
			Category:      category,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   strings.TrimSpace(q.Explanation),
			Difficulty:    difficulty,
		}
	}

	return questions, nil
}

// extractJSON strips markdown code-fence wrappers that chat models add around
// structured output.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
