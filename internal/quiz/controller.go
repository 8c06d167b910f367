// Package quiz holds the state of one practice session: the fixed list of
// questions, the pointer into it, and everything recorded per question.
package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/resume"
)

// QuestionSource is the part of the remote API a session talks to.
type QuestionSource interface {
	GetQuestion(ctx context.Context, token, externalID string) (*models.QuestionContent, error)
	SubmitResult(ctx context.Context, token string, result models.SubmitResultRequest) error
	MarkAsReview(ctx context.Context, token, externalID string, op models.ReviewOperation) (*models.MarkReviewResponse, error)
}

// Controller is safe for concurrent use. Remote calls are made without the
// lock held; results are applied only if the session has not been reloaded
// or reset in the meantime.
type Controller struct {
	owner string
	api   QuestionSource
	store resume.Store
	opts  Options
	group singleflight.Group

	mu         sync.Mutex
	token      string
	generation uint64
	sessionID  string
	examID     string

	refs  []string
	index int

	answers       map[string]string
	attempts      map[string][]string
	marked        map[string]bool
	reviewPending map[string]bool
	strikeoutMode bool
	strikeouts    map[string]map[string]bool
	history       map[string]models.HistoryEntry

	// cache holds content for visited questions and is bounded by the
	// session length. epoch tags each load of the current question.
	cache    map[string]*models.QuestionContent
	current  *models.QuestionContent
	epoch    uint64
	fetchErr error

	navigating    bool
	complete      bool
	stopRequested bool

	startedAt         time.Time
	questionStartedAt time.Time
	completedTime     string
	completions       int

	wrongAnswer string
	wrongSeq    uint64
}

func NewController(owner string, api QuestionSource, store resume.Store, opts Options) *Controller {
	c := &Controller{
		owner: owner,
		api:   api,
		store: store,
		opts:  opts.withDefaults(),
		cache: make(map[string]*models.QuestionContent),
	}
	c.clearLocked()
	return c
}

func (c *Controller) Owner() string { return c.owner }

// SetToken binds the bearer token used for remote calls.
func (c *Controller) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func newExamID() string {
	return strconv.Itoa(10000000 + rand.Intn(90000000))
}

// clearLocked drops every per-question record and starts a new exam.
func (c *Controller) clearLocked() {
	c.generation++
	c.sessionID = uuid.NewString()
	c.examID = newExamID()
	c.index = 0
	c.answers = make(map[string]string)
	c.attempts = make(map[string][]string)
	c.marked = make(map[string]bool)
	c.reviewPending = make(map[string]bool)
	c.strikeouts = make(map[string]map[string]bool)
	c.history = make(map[string]models.HistoryEntry)
	c.current = nil
	c.fetchErr = nil
	c.navigating = false
	c.complete = len(c.refs) == 0
	c.stopRequested = false
	c.completedTime = ""
	c.wrongAnswer = ""
	c.wrongSeq++
	c.startedAt = c.opts.Now()
	c.questionStartedAt = c.startedAt
	if c.complete {
		c.completedTime = formatElapsed(0)
	}
}

// LoadSession starts a new session over refs. The list is persisted to the
// resume store and the first question is fetched; a failed fetch is reported
// but does not undo the load.
func (c *Controller) LoadSession(ctx context.Context, refs []string) error {
	c.mu.Lock()
	c.refs = append([]string{}, refs...)
	c.cache = make(map[string]*models.QuestionContent, len(refs))
	c.clearLocked()
	sessionID := c.sessionID
	c.mu.Unlock()

	if err := c.store.SaveRefs(ctx, c.owner, refs); err != nil {
		glog.Errorf("[quiz] save refs for %s: %v", c.owner, err)
	}
	c.opts.Publisher.Publish(c.owner, Event{Type: EventLoaded, SessionID: sessionID})

	if len(refs) == 0 {
		return nil
	}
	return c.loadCurrent(ctx)
}

// Resume reloads the persisted question list, if any, from position 0.
func (c *Controller) Resume(ctx context.Context) error {
	n, err := c.store.Completions(ctx, c.owner)
	if err != nil {
		return errors.Wrap(err, "read completion count")
	}
	c.mu.Lock()
	c.completions = n
	c.mu.Unlock()

	refs, err := c.store.LoadRefs(ctx, c.owner)
	if err != nil {
		return errors.Wrap(err, "read question list")
	}
	if len(refs) == 0 {
		return nil
	}
	return c.LoadSession(ctx, refs)
}

// Reset is used after the summary is dismissed: the same list is kept, all
// per-question state is cleared and a new exam id is issued.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.clearLocked()
	sessionID := c.sessionID
	hasRefs := len(c.refs) > 0
	c.mu.Unlock()

	c.opts.Publisher.Publish(c.owner, Event{Type: EventReset, SessionID: sessionID})
	if !hasRefs {
		return nil
	}
	return c.loadCurrent(ctx)
}

// loadCurrent installs the content for the current pointer, from cache or
// from the remote. A response that arrives after the pointer has moved on
// is cached but not installed.
func (c *Controller) loadCurrent(ctx context.Context) error {
	c.mu.Lock()
	if len(c.refs) == 0 {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	epoch, gen := c.epoch, c.generation
	ref := c.refs[c.index]
	if q, ok := c.cache[ref]; ok {
		c.current = q
		c.fetchErr = nil
		c.mu.Unlock()
		return nil
	}
	c.current = nil
	token := c.token
	c.mu.Unlock()

	v, err, _ := c.group.Do(ref, func() (interface{}, error) {
		return c.api.GetQuestion(ctx, token, ref)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		glog.Warningf("[quiz] fetch %s for %s: %v", ref, c.owner, err)
		if epoch == c.epoch && gen == c.generation {
			c.fetchErr = err
		}
		return err
	}
	q := v.(*models.QuestionContent)
	if gen == c.generation {
		c.cache[ref] = q
	}
	if epoch == c.epoch && gen == c.generation {
		c.current = q
		c.fetchErr = nil
	}
	return nil
}

// moveLocked points at index and restarts the per-question timer. Content
// for an uncached target stays nil until loadCurrent installs it.
func (c *Controller) moveLocked(index int) {
	c.index = index
	c.current = c.cache[c.refs[index]]
	c.fetchErr = nil
	c.questionStartedAt = c.opts.Now()
	c.wrongAnswer = ""
}

func (c *Controller) completeLocked() {
	c.complete = true
	c.stopRequested = false
	c.completedTime = formatElapsed(c.opts.Now().Sub(c.startedAt))
}

func (c *Controller) elapsedLocked() string {
	if c.complete {
		return c.completedTime
	}
	return formatElapsed(c.opts.Now().Sub(c.startedAt))
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (c *Controller) containsLocked(ref string) bool {
	for _, r := range c.refs {
		if r == ref {
			return true
		}
	}
	return false
}

// Snapshot is a read-only view of the session for rendering.
type Snapshot struct {
	SessionID       string                  `json:"session_id"`
	ExamID          string                  `json:"exam_id"`
	Index           int                     `json:"index"`
	Total           int                     `json:"total"`
	Progress        float64                 `json:"progress"`
	Ref             string                  `json:"ref,omitempty"`
	Question        *models.QuestionContent `json:"question,omitempty"`
	Answer          string                  `json:"answer,omitempty"`
	Attempts        int                     `json:"attempts"`
	Marked          bool                    `json:"marked"`
	ReviewPending   bool                    `json:"review_pending"`
	StrikeoutMode   bool                    `json:"strikeout_mode"`
	Strikeouts      []string                `json:"strikeouts"`
	WrongAnswer     string                  `json:"wrong_answer,omitempty"`
	Elapsed         string                  `json:"elapsed"`
	Complete        bool                    `json:"complete"`
	StopRequested   bool                    `json:"stop_requested"`
	Navigating      bool                    `json:"navigating"`
	FetchError      string                  `json:"fetch_error,omitempty"`
	CompletionCount int                     `json:"completion_count"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		SessionID:       c.sessionID,
		ExamID:          c.examID,
		Index:           c.index,
		Total:           len(c.refs),
		Question:        c.current,
		StrikeoutMode:   c.strikeoutMode,
		Strikeouts:      []string{},
		WrongAnswer:     c.wrongAnswer,
		Elapsed:         c.elapsedLocked(),
		Complete:        c.complete,
		StopRequested:   c.stopRequested,
		Navigating:      c.navigating,
		CompletionCount: c.completions,
	}
	if s.Total > 0 {
		s.Progress = float64(c.index+1) / float64(s.Total) * 100
		s.Ref = c.refs[c.index]
		s.Answer = c.answers[s.Ref]
		s.Attempts = len(c.attempts[s.Ref])
		s.Marked = c.marked[s.Ref]
		s.ReviewPending = c.reviewPending[s.Ref]
		if q := c.current; q != nil {
			for _, o := range q.QuestionInfo.AnswerOptions {
				if c.strikeouts[s.Ref][o.ID] {
					s.Strikeouts = append(s.Strikeouts, o.ID)
				}
			}
		}
	}
	if c.fetchErr != nil {
		s.FetchError = c.fetchErr.Error()
	}
	return s
}

// Refs returns a copy of the session's question list.
func (c *Controller) Refs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.refs...)
}

// Attempts returns a copy of every value tried for ref, oldest first.
func (c *Controller) Attempts(ref string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.attempts[ref]...)
}

// Answer returns the last value recorded for ref.
func (c *Controller) Answer(ref string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.answers[ref]
	return v, ok
}

// Content returns cached content for ref, if it has been fetched.
func (c *Controller) Content(ref string) (*models.QuestionContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.cache[ref]
	return q, ok
}
