package models

import "strings"

type QuestionType string

const (
	QuestionMCQ QuestionType = "mcq"
	QuestionSPR QuestionType = "spr"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "E"
	DifficultyMedium Difficulty = "M"
	DifficultyHard   Difficulty = "H"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// ── Question Bank Listing ────────────────────────────────

type QuestionMeta struct {
	QuestionID       string     `json:"questionId"`
	ExternalID       string     `json:"external_id"`
	SkillCode        string     `json:"skill_cd"`
	SkillDesc        string     `json:"skill_desc"`
	PrimaryClass     string     `json:"primary_class_cd"`
	PrimaryClassDesc string     `json:"primary_class_cd_desc"`
	Difficulty       Difficulty `json:"difficulty"`
	ScoreBandRange   int        `json:"score_band_range_cd"`
	Program          string     `json:"program"`
	CreateDate       int64      `json:"createDate"`
	UpdateDate       int64      `json:"updateDate"`
}

type Question struct {
	ID               int          `json:"id"`
	Status           string       `json:"status"`
	Tags             []string     `json:"tags"`
	QuestionCategory string       `json:"questionCategory"`
	ExternalID       string       `json:"externalId"`
	QuestionInfo     QuestionMeta `json:"questionInfo"`
}

type GetQuestionsRequest struct {
	QuestionCategory string   `json:"questionCategory"`
	PrimaryClassCD   []string `json:"primary_class_cd"`
}

type GetQuestionsResponse struct {
	Count     int        `json:"count"`
	Questions []Question `json:"questions"`
}

// ── Question Content ────────────────────────────────────

type AnswerOption struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type QuestionInfo struct {
	Stimulus      string         `json:"stimulus"`
	Stem          string         `json:"stem"`
	AnswerOptions []AnswerOption `json:"answerOptions,omitempty"`
	Keys          []string       `json:"keys,omitempty"`
	CorrectAnswer []string       `json:"correct_answer,omitempty"`
	Rationale     string         `json:"rationale"`
}

type QuestionContent struct {
	ExternalID   string       `json:"externalId"`
	QuestionType QuestionType `json:"questionType"`
	QuestionInfo QuestionInfo `json:"questionInfo"`
}

type GetQuestionRequest struct {
	ExternalID string `json:"externalId"`
}

// AcceptedAnswers returns the values that count as correct for this item:
// the option keys for multiple choice, the correct_answer list otherwise.
func (q *QuestionContent) AcceptedAnswers() []string {
	if q.QuestionType == QuestionMCQ {
		return q.QuestionInfo.Keys
	}
	return q.QuestionInfo.CorrectAnswer
}

// IsCorrect reports whether value is one of the accepted answers. Free
// response answers compare case-insensitively with surrounding space trimmed.
func (q *QuestionContent) IsCorrect(value string) bool {
	for _, a := range q.AcceptedAnswers() {
		if q.QuestionType == QuestionMCQ {
			if a == value {
				return true
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// OptionIndex returns the position of an answer option, or -1.
func (q *QuestionContent) OptionIndex(optionID string) int {
	for i, o := range q.QuestionInfo.AnswerOptions {
		if o.ID == optionID {
			return i
		}
	}
	return -1
}

// OptionLetter maps an option id to its A-D style letter by position. Values
// that are not option ids are returned unchanged.
func (q *QuestionContent) OptionLetter(optionID string) string {
	i := q.OptionIndex(optionID)
	if i < 0 {
		return optionID
	}
	return string(rune('A' + i))
}
