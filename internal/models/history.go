package models

import "time"

// ── Submission Types ────────────────────────────────────

type SubmitResultRequest struct {
	ExternalID string   `json:"external_id"`
	Correct    bool     `json:"correct"`
	Attempts   []string `json:"attempts"`
	TimeTaken  int      `json:"time_taken"`
	ExamID     string   `json:"examId"`
}

type ReviewOperation string

const (
	ReviewAdd    ReviewOperation = "add"
	ReviewRemove ReviewOperation = "remove"
)

type MarkReviewRequest struct {
	ExternalID string          `json:"externalId"`
	Operation  ReviewOperation `json:"operation"`
}

type MarkReviewResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ── History Types ────────────────────────────────────────

// HistoryEntry is the per-question snapshot taken when a question's result
// is submitted. Submitted is false when the remote call failed.
type HistoryEntry struct {
	ExternalID       string    `json:"external_id"`
	AttemptsCount    int       `json:"attempts_count"`
	ExtraAttempts    int       `json:"extra_attempts"`
	Answered         bool      `json:"answered"`
	Correct          bool      `json:"correct"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	Submitted        bool      `json:"submitted"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// NewHistoryEntry derives extra attempts from the attempt count, floored at 0.
func NewHistoryEntry(externalID string, attempts int, answered, correct bool, timeTaken int) HistoryEntry {
	extra := attempts - 1
	if extra < 0 {
		extra = 0
	}
	return HistoryEntry{
		ExternalID:       externalID,
		AttemptsCount:    attempts,
		ExtraAttempts:    extra,
		Answered:         answered,
		Correct:          correct,
		TimeTakenSeconds: timeTaken,
		RecordedAt:       time.Now(),
	}
}
