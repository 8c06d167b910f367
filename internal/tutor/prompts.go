package tutor

import (
	"fmt"
	"strings"

	"github.com/sat-prep/web/internal/models"
)

const doubtHeader = "STUDENT'S DOUBT:"

const systemPrompt = `You are a patient SAT tutor. A student is working through a practice question and has a doubt about it.
Explain the reasoning step by step in plain language. Refer to answer choices by their letter.
Do not invent facts that are not in the passage or the question. Keep the answer under 250 words.`

// SystemPrompt is the fixed instruction sent with every doubt.
func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt lays out the question content, the student's last answer
// if any, and the doubt itself. The doubt always comes last.
func BuildUserPrompt(q *models.QuestionContent, studentAnswer, doubt string) string {
	var b strings.Builder
	info := q.QuestionInfo

	fmt.Fprintf(&b, "QUESTION %s (%s)\n\n", q.ExternalID, questionKind(q.QuestionType))
	if s := strings.TrimSpace(info.Stimulus); s != "" {
		fmt.Fprintf(&b, "PASSAGE:\n%s\n\n", s)
	}
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", strings.TrimSpace(info.Stem))

	if len(info.AnswerOptions) > 0 {
		b.WriteString("CHOICES:\n")
		for i, o := range info.AnswerOptions {
			fmt.Fprintf(&b, "%c) %s\n", 'A'+i, strings.TrimSpace(o.Content))
		}
		b.WriteString("\n")
	}

	if accepted := acceptedLabels(q); len(accepted) > 0 {
		fmt.Fprintf(&b, "CORRECT ANSWER: %s\n", strings.Join(accepted, ", "))
	}
	if r := strings.TrimSpace(info.Rationale); r != "" {
		fmt.Fprintf(&b, "OFFICIAL RATIONALE:\n%s\n", r)
	}
	if studentAnswer != "" {
		fmt.Fprintf(&b, "\nTHE STUDENT ANSWERED: %s\n", q.OptionLetter(studentAnswer))
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", doubtHeader, strings.TrimSpace(doubt))
	return b.String()
}

func questionKind(t models.QuestionType) string {
	if t == models.QuestionSPR {
		return "student-produced response"
	}
	return "multiple choice"
}

func acceptedLabels(q *models.QuestionContent) []string {
	accepted := q.AcceptedAnswers()
	out := make([]string, len(accepted))
	for i, a := range accepted {
		out[i] = q.OptionLetter(a)
	}
	return out
}
