package model

import "time"

// ResultsExport is the top-level JSON structure for assessment result export.
type ResultsExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one session's full data for export.
type SessionResult struct {
	Session   AssessmentSession    `json:"session"`
	Questions []AssessmentQuestion `json:"questions"`
	Answers   []CandidateAnswer    `json:"answers"`
	Score     *ScoreResult         `json:"score,omitempty"`
}
