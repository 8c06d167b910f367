package questions

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/models"
)

var ErrInvalidDifficulty = errors.New("difficulty must be all, easy, medium or hard")

// ParseDifficulty accepts a difficulty code or name. The empty Difficulty
// means no difficulty filter.
func ParseDifficulty(s string) (models.Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", nil
	case "e", "easy":
		return models.DifficultyEasy, nil
	case "m", "medium":
		return models.DifficultyMedium, nil
	case "h", "hard":
		return models.DifficultyHard, nil
	}
	return "", errors.Wrapf(ErrInvalidDifficulty, "%q", s)
}

// Setup holds the question list fetched for one subject and domain selection.
// Filters only narrow the fetched list; changing them never fetches again.
type Setup struct {
	subject *Subject
	domains []string

	mu         sync.Mutex
	all        []models.Question
	difficulty models.Difficulty
	skills     map[string]bool
}

func newSetup(subject *Subject, domains []string, all []models.Question) *Setup {
	return &Setup{subject: subject, domains: domains, all: all}
}

func (s *Setup) SetDifficulty(v string) error {
	d, err := ParseDifficulty(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.difficulty = d
	s.mu.Unlock()
	return nil
}

// SetSkills limits the list to the given skill codes. No codes clears the
// filter.
func (s *Setup) SetSkills(codes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(codes) == 0 {
		s.skills = nil
		return
	}
	s.skills = make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			s.skills[c] = true
		}
	}
}

func (s *Setup) Filtered() []models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredLocked()
}

func (s *Setup) filteredLocked() []models.Question {
	out := make([]models.Question, 0, len(s.all))
	for _, q := range s.all {
		if s.difficulty != "" && q.QuestionInfo.Difficulty != s.difficulty {
			continue
		}
		if len(s.skills) > 0 && !s.skills[q.QuestionInfo.SkillCode] {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Refs returns the external ids of the filtered list in fetched order.
func (s *Setup) Refs() []string {
	filtered := s.Filtered()
	refs := make([]string, len(filtered))
	for i, q := range filtered {
		refs[i] = q.ExternalID
	}
	return refs
}

type DomainBreakdown struct {
	Label  string         `json:"label"`
	Total  int            `json:"total"`
	Skills map[string]int `json:"skills"`
}

// Breakdown counts the filtered questions per domain code and, within a
// domain, per skill description.
func (s *Setup) Breakdown() map[string]DomainBreakdown {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]DomainBreakdown)
	for _, q := range s.filteredLocked() {
		code := q.QuestionInfo.PrimaryClass
		b, ok := out[code]
		if !ok {
			b = DomainBreakdown{Label: s.subject.Label(code), Skills: make(map[string]int)}
		}
		b.Total++
		b.Skills[q.QuestionInfo.SkillDesc]++
		out[code] = b
	}
	return out
}

type SkillOption struct {
	Code     string `json:"code"`
	Desc     string `json:"desc"`
	Selected bool   `json:"selected"`
}

// SetupView is what the setup screen shows.
type SetupView struct {
	Subject    string                     `json:"subject"`
	Domains    []string                   `json:"domains"`
	Difficulty string                     `json:"difficulty"`
	Fetched    int                        `json:"fetched"`
	Filtered   int                        `json:"filtered"`
	Skills     []SkillOption              `json:"skills"`
	Breakdown  map[string]DomainBreakdown `json:"breakdown"`
}

func (s *Setup) View() SetupView {
	b := s.Breakdown()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := SetupView{
		Subject:    s.subject.Name,
		Domains:    append([]string(nil), s.domains...),
		Difficulty: "all",
		Fetched:    len(s.all),
		Filtered:   len(s.filteredLocked()),
		Breakdown:  b,
	}
	if s.difficulty != "" {
		v.Difficulty = string(s.difficulty)
	}

	seen := make(map[string]bool)
	for _, q := range s.all {
		code := q.QuestionInfo.SkillCode
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		v.Skills = append(v.Skills, SkillOption{Code: code, Desc: q.QuestionInfo.SkillDesc, Selected: s.skills[code]})
	}
	sort.Slice(v.Skills, func(i, j int) bool { return v.Skills[i].Code < v.Skills[j].Code })
	return v
}
