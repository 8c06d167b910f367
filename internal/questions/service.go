package questions

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/quiz"
)

var ErrNoSetup = errors.New("no practice setup is open")

// Lister is the part of the remote API the setup screen needs.
type Lister interface {
	GetQuestions(ctx context.Context, token, category string, classes []string) (*models.GetQuestionsResponse, error)
}

// Sessions hands out the owner's quiz controller.
type Sessions interface {
	Get(ctx context.Context, owner, token string) *quiz.Controller
}

type Service struct {
	catalog  *Catalog
	api      Lister
	sessions Sessions

	mu     sync.Mutex
	setups map[string]*Setup
}

func NewService(catalog *Catalog, api Lister, sessions Sessions) *Service {
	return &Service{
		catalog:  catalog,
		api:      api,
		sessions: sessions,
		setups:   make(map[string]*Setup),
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Open fetches the questions for subject and the selected domains and makes
// them owner's current setup. Any earlier setup for owner is replaced.
func (s *Service) Open(ctx context.Context, token, owner, subject string, domainIDs []string) (*Setup, error) {
	subj, codes, err := s.catalog.Resolve(subject, domainIDs)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.GetQuestions(ctx, token, subj.Name, codes)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s questions", subj.Name)
	}
	if resp.Count != len(resp.Questions) {
		glog.V(1).Infof("[questions] %s: remote count %d, got %d questions", subj.Name, resp.Count, len(resp.Questions))
	}

	setup := newSetup(subj, codes, resp.Questions)
	s.mu.Lock()
	s.setups[owner] = setup
	s.mu.Unlock()

	glog.Infof("[questions] %s opened %s %v: %d questions", owner, subj.Name, codes, len(resp.Questions))
	return setup, nil
}

func (s *Service) Setup(owner string) (*Setup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setup, ok := s.setups[owner]
	if !ok {
		return nil, ErrNoSetup
	}
	return setup, nil
}

// Start loads the filtered list into owner's quiz session.
func (s *Service) Start(ctx context.Context, owner, token string) (*quiz.Controller, error) {
	setup, err := s.Setup(owner)
	if err != nil {
		return nil, err
	}

	refs := setup.Refs()
	ctrl := s.sessions.Get(ctx, owner, token)
	if err := ctrl.LoadSession(ctx, refs); err != nil {
		glog.Warningf("[questions] %s: first question failed to load: %v", owner, err)
	}
	glog.Infof("[questions] %s started a session of %d questions", owner, len(refs))
	return ctrl, nil
}
