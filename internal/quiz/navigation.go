package quiz

import (
	"context"

	"github.com/golang/glog"

	"github.com/sat-prep/web/internal/models"
)

// SubmissionResult reports the scoring submit made while leaving a question.
type SubmissionResult struct {
	ExternalID string `json:"external_id"`
	Correct    bool   `json:"correct"`
	Err        error  `json:"-"`
}

// StepResult is the outcome of a navigation. Submission is nil when nothing
// was submitted; FetchErr is set when the new question's content could not
// be loaded.
type StepResult struct {
	Index      int               `json:"index"`
	Complete   bool              `json:"complete"`
	Submission *SubmissionResult `json:"submission,omitempty"`
	FetchErr   error             `json:"-"`
}

type pendingSubmission struct {
	gen   uint64
	req   models.SubmitResultRequest
	entry models.HistoryEntry
}

// buildSubmissionLocked snapshots the scoring data for the current question,
// or returns nil when it has no recorded answer.
func (c *Controller) buildSubmissionLocked() *pendingSubmission {
	if len(c.refs) == 0 {
		return nil
	}
	ref := c.refs[c.index]
	answer, ok := c.answers[ref]
	if !ok {
		return nil
	}

	q := c.cache[ref]
	tried := c.attempts[ref]
	sent := make([]string, len(tried))
	for i, v := range tried {
		if q != nil && q.QuestionType == models.QuestionMCQ {
			sent[i] = q.OptionLetter(v)
		} else {
			sent[i] = v
		}
	}
	correct := q != nil && q.IsCorrect(answer)
	timeTaken := int(c.opts.Now().Sub(c.questionStartedAt).Seconds())
	if timeTaken < 0 {
		timeTaken = 0
	}

	return &pendingSubmission{
		gen: c.generation,
		req: models.SubmitResultRequest{
			ExternalID: ref,
			Correct:    correct,
			Attempts:   sent,
			TimeTaken:  timeTaken,
			ExamID:     c.examID,
		},
		entry: models.NewHistoryEntry(ref, len(tried), true, correct, timeTaken),
	}
}

// submit sends a pending submission and records its history entry under
// the history policy. The entry is kept even when the submit fails, with
// Submitted false, so the summary reflects what the student did.
func (c *Controller) submit(ctx context.Context, p *pendingSubmission) *SubmissionResult {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	err := c.api.SubmitResult(ctx, token, p.req)
	if err != nil {
		glog.Errorf("[quiz] submit %s (exam %s) for %s: %v", p.req.ExternalID, p.req.ExamID, c.owner, err)
	}

	c.mu.Lock()
	if p.gen == c.generation {
		entry := p.entry
		entry.Submitted = err == nil
		_, exists := c.history[entry.ExternalID]
		if !exists || c.opts.History == HistoryLatest {
			c.history[entry.ExternalID] = entry
		}
	}
	sessionID, index := c.sessionID, c.index
	c.mu.Unlock()

	ev := Event{Type: EventSubmitted, SessionID: sessionID, Index: index, Ref: p.req.ExternalID}
	if err != nil {
		ev.Error = err.Error()
	}
	c.opts.Publisher.Publish(c.owner, ev)

	return &SubmissionResult{ExternalID: p.req.ExternalID, Correct: p.req.Correct, Err: err}
}

// beginNavigationLocked claims the in-flight guard. A second navigation while
// one is pending is dropped.
func (c *Controller) beginNavigationLocked() (uint64, error) {
	if c.navigating {
		return 0, ErrNavigationInFlight
	}
	c.navigating = true
	return c.generation, nil
}

func (c *Controller) endNavigation(gen uint64) {
	c.mu.Lock()
	if gen == c.generation {
		c.navigating = false
	}
	c.mu.Unlock()
}

func (c *Controller) navigated(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	ev := Event{Type: EventNavigated, SessionID: c.sessionID, Index: c.index, Ref: c.refs[c.index]}
	c.mu.Unlock()
	c.opts.Publisher.Publish(c.owner, ev)
}

// GoTo moves the pointer to index and loads its content. Under
// SubmitOnAnyDeparture an answered question is submitted first.
func (c *Controller) GoTo(ctx context.Context, index int) (StepResult, error) {
	c.mu.Lock()
	if index < 0 || index >= len(c.refs) {
		c.mu.Unlock()
		return StepResult{}, ErrIndexOutOfRange
	}
	if c.complete {
		c.mu.Unlock()
		return StepResult{Index: c.index, Complete: true}, ErrSessionComplete
	}
	gen, err := c.beginNavigationLocked()
	if err != nil {
		c.mu.Unlock()
		return StepResult{}, err
	}
	var pending *pendingSubmission
	if c.opts.Departure == SubmitOnAnyDeparture && index != c.index {
		pending = c.buildSubmissionLocked()
	}
	c.mu.Unlock()
	defer c.endNavigation(gen)

	var res StepResult
	if pending != nil {
		res.Submission = c.submit(ctx, pending)
	}

	c.mu.Lock()
	if gen == c.generation {
		c.moveLocked(index)
	}
	c.mu.Unlock()

	res.FetchErr = c.loadCurrent(ctx)
	c.navigated(gen)
	res.Index, res.Complete = c.position()
	return res, nil
}

// Advance submits the current question if it is answered, then moves to the
// next one or, at the last index, completes the session.
func (c *Controller) Advance(ctx context.Context) (StepResult, error) {
	c.mu.Lock()
	if c.complete {
		c.mu.Unlock()
		return StepResult{Index: c.index, Complete: true}, ErrSessionComplete
	}
	gen, err := c.beginNavigationLocked()
	if err != nil {
		c.mu.Unlock()
		return StepResult{}, err
	}
	pending := c.buildSubmissionLocked()
	c.mu.Unlock()
	defer c.endNavigation(gen)

	var res StepResult
	if pending != nil {
		res.Submission = c.submit(ctx, pending)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		res.Index, res.Complete = c.position()
		return res, nil
	}
	finished := c.index >= len(c.refs)-1
	if finished {
		c.completeLocked()
	} else {
		c.moveLocked(c.index + 1)
	}
	c.mu.Unlock()

	if finished {
		c.finish(ctx, gen)
	} else {
		res.FetchErr = c.loadCurrent(ctx)
		c.navigated(gen)
	}
	res.Index, res.Complete = c.position()
	return res, nil
}

// Retreat moves back one question. Under SubmitOnAdvance it never submits.
func (c *Controller) Retreat(ctx context.Context) (StepResult, error) {
	c.mu.Lock()
	if c.complete {
		c.mu.Unlock()
		return StepResult{Index: c.index, Complete: true}, ErrSessionComplete
	}
	if c.index == 0 {
		c.mu.Unlock()
		return StepResult{}, ErrAtFirstQuestion
	}
	gen, err := c.beginNavigationLocked()
	if err != nil {
		c.mu.Unlock()
		return StepResult{}, err
	}
	var pending *pendingSubmission
	if c.opts.Departure == SubmitOnAnyDeparture {
		pending = c.buildSubmissionLocked()
	}
	c.mu.Unlock()
	defer c.endNavigation(gen)

	var res StepResult
	if pending != nil {
		res.Submission = c.submit(ctx, pending)
	}

	c.mu.Lock()
	if gen == c.generation && c.index > 0 {
		c.moveLocked(c.index - 1)
	}
	c.mu.Unlock()

	res.FetchErr = c.loadCurrent(ctx)
	c.navigated(gen)
	res.Index, res.Complete = c.position()
	return res, nil
}

// RequestStop is the first step of an early stop; ConfirmStop finishes it
// and CancelStop withdraws it.
func (c *Controller) RequestStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return ErrSessionComplete
	}
	c.stopRequested = true
	return nil
}

func (c *Controller) CancelStop() {
	c.mu.Lock()
	c.stopRequested = false
	c.mu.Unlock()
}

// ConfirmStop submits the current question if answered and completes the
// session.
func (c *Controller) ConfirmStop(ctx context.Context) (StepResult, error) {
	c.mu.Lock()
	if c.complete {
		c.mu.Unlock()
		return StepResult{Index: c.index, Complete: true}, ErrSessionComplete
	}
	if !c.stopRequested {
		c.mu.Unlock()
		return StepResult{}, ErrStopNotRequested
	}
	gen, err := c.beginNavigationLocked()
	if err != nil {
		c.mu.Unlock()
		return StepResult{}, err
	}
	c.stopRequested = false
	pending := c.buildSubmissionLocked()
	c.mu.Unlock()
	defer c.endNavigation(gen)

	var res StepResult
	if pending != nil {
		res.Submission = c.submit(ctx, pending)
	}

	c.mu.Lock()
	done := gen == c.generation
	if done {
		c.completeLocked()
	}
	c.mu.Unlock()

	if done {
		c.finish(ctx, gen)
	}
	res.Index, res.Complete = c.position()
	return res, nil
}

// finish bumps the persisted completion counter and announces completion.
func (c *Controller) finish(ctx context.Context, gen uint64) {
	n, err := c.store.IncrementCompletions(ctx, c.owner)
	if err != nil {
		glog.Errorf("[quiz] increment completions for %s: %v", c.owner, err)
	}

	c.mu.Lock()
	if err == nil {
		c.completions = n
	} else {
		c.completions++
	}
	ev := Event{Type: EventCompleted, SessionID: c.sessionID, Index: c.index, Value: c.completedTime}
	current := gen == c.generation
	c.mu.Unlock()

	if current {
		c.opts.Publisher.Publish(c.owner, ev)
	}
}

func (c *Controller) position() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index, c.complete
}
