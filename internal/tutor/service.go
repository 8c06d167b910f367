package tutor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/quiz"
)

const maxDoubtLength = 2000

var ErrInvalidDoubt = errors.New("invalid doubt")

// ContentSource fetches question content the session has not cached.
type ContentSource interface {
	GetQuestion(ctx context.Context, token, externalID string) (*models.QuestionContent, error)
}

type Sessions interface {
	Get(ctx context.Context, owner, token string) *quiz.Controller
}

type Service struct {
	llm      LLMClient
	api      ContentSource
	sessions Sessions
}

// NewService builds the tutor. sessions may be nil, in which case content
// always comes from the remote API.
func NewService(llm LLMClient, api ContentSource, sessions Sessions) *Service {
	return &Service{llm: llm, api: api, sessions: sessions}
}

type DoubtRequest struct {
	ExternalID string `json:"externalId"`
	Question   string `json:"question"`
}

type DoubtAnswer struct {
	ExternalID   string `json:"externalId"`
	Answer       string `json:"answer"`
	PromptTokens int    `json:"prompt_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func (r *DoubtRequest) validate() error {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Question = strings.TrimSpace(r.Question)
	switch {
	case r.ExternalID == "":
		return errors.Wrap(ErrInvalidDoubt, "externalId is required")
	case r.Question == "":
		return errors.Wrap(ErrInvalidDoubt, "question is required")
	case utf8.RuneCountInString(r.Question) > maxDoubtLength:
		return errors.Wrapf(ErrInvalidDoubt, "question is longer than %d characters", maxDoubtLength)
	}
	return nil
}

// Answer explains the referenced question in light of the student's doubt.
// Content already cached by the owner's session is reused.
func (s *Service) Answer(ctx context.Context, token, owner string, req DoubtRequest) (*DoubtAnswer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		q       *models.QuestionContent
		current string
	)
	if s.sessions != nil {
		ctrl := s.sessions.Get(ctx, owner, token)
		if cached, ok := ctrl.Content(req.ExternalID); ok {
			q = cached
		}
		current, _ = ctrl.Answer(req.ExternalID)
	}
	if q == nil {
		fetched, err := s.api.GetQuestion(ctx, token, req.ExternalID)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s", req.ExternalID)
		}
		q = fetched
	}

	resp, err := s.llm.Generate(ctx, SystemPrompt(), BuildUserPrompt(q, current, req.Question))
	if err != nil {
		return nil, errors.Wrap(err, "generate answer")
	}
	glog.V(1).Infof("[tutor] %s asked about %s: %d prompt / %d output tokens",
		owner, req.ExternalID, resp.PromptTokens, resp.OutputTokens)

	return &DoubtAnswer{
		ExternalID:   req.ExternalID,
		Answer:       resp.Content,
		PromptTokens: resp.PromptTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
