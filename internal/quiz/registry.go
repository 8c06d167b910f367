package quiz

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/sat-prep/web/internal/resume"
)

type registryEntry struct {
	ctrl *Controller
	once sync.Once
}

// Registry keeps one controller per owner. A controller is created on first
// use and initialized from the resume store exactly once.
type Registry struct {
	api   QuestionSource
	store resume.Store
	opts  Options

	mu      sync.Mutex
	entries map[string]*registryEntry
}

func NewRegistry(api QuestionSource, store resume.Store, opts Options) *Registry {
	return &Registry{
		api:     api,
		store:   store,
		opts:    opts,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns owner's controller. The token is bound when the controller is
// created and never replaced, so owner must be derived from the token itself;
// a later call with another token for the same owner does not rebind it.
func (r *Registry) Get(ctx context.Context, owner, token string) *Controller {
	r.mu.Lock()
	e, ok := r.entries[owner]
	if !ok {
		ctrl := NewController(owner, r.api, r.store, r.opts)
		ctrl.SetToken(token)
		e = &registryEntry{ctrl: ctrl}
		r.entries[owner] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		if err := e.ctrl.Resume(ctx); err != nil {
			glog.Warningf("[quiz] resume %s: %v", owner, err)
		}
	})
	return e.ctrl
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
