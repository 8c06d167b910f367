package quiz

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/sat-prep/web/internal/models"
)

// RecordAnswer sets ref's answer to value and appends it to the attempt log.
// It reports whether the value is correct; a wrong value raises the wrong
// answer signal, which clears itself after Options.WrongAnswerDelay.
func (c *Controller) RecordAnswer(ref, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, ErrEmptyAnswer
	}

	c.mu.Lock()
	if c.complete {
		c.mu.Unlock()
		return false, ErrSessionComplete
	}
	if !c.containsLocked(ref) {
		c.mu.Unlock()
		return false, ErrUnknownQuestion
	}
	q, ok := c.cache[ref]
	if !ok {
		c.mu.Unlock()
		return false, ErrContentNotLoaded
	}
	if q.QuestionType == models.QuestionMCQ && q.OptionIndex(value) < 0 {
		c.mu.Unlock()
		return false, ErrUnknownOption
	}

	c.attempts[ref] = append(c.attempts[ref], value)
	c.answers[ref] = value
	correct := q.IsCorrect(value)

	events := []Event{{Type: EventAnswered, SessionID: c.sessionID, Index: c.index, Ref: ref, Value: value}}
	if !correct {
		c.wrongSeq++
		seq, gen := c.wrongSeq, c.generation
		c.wrongAnswer = value
		events = append(events, Event{Type: EventWrongAnswer, SessionID: c.sessionID, Index: c.index, Ref: ref, Value: value})
		time.AfterFunc(c.opts.WrongAnswerDelay, func() { c.clearWrongAnswer(seq, gen, ref) })
	} else {
		c.wrongAnswer = ""
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.opts.Publisher.Publish(c.owner, ev)
	}
	return correct, nil
}

func (c *Controller) clearWrongAnswer(seq, gen uint64, ref string) {
	c.mu.Lock()
	if seq != c.wrongSeq || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.wrongAnswer = ""
	ev := Event{Type: EventWrongAnswerCleared, SessionID: c.sessionID, Index: c.index, Ref: ref}
	c.mu.Unlock()
	c.opts.Publisher.Publish(c.owner, ev)
}

// ToggleReview asks the remote to add or remove ref's review mark and flips
// the local mark only once the remote confirms. It returns the resulting
// mark state.
func (c *Controller) ToggleReview(ctx context.Context, ref string) (bool, error) {
	c.mu.Lock()
	if !c.containsLocked(ref) {
		c.mu.Unlock()
		return false, ErrUnknownQuestion
	}
	if c.reviewPending[ref] {
		marked := c.marked[ref]
		c.mu.Unlock()
		return marked, ErrReviewPending
	}
	op := models.ReviewAdd
	if c.marked[ref] {
		op = models.ReviewRemove
	}
	c.reviewPending[ref] = true
	gen, token := c.generation, c.token
	c.mu.Unlock()

	resp, err := c.api.MarkAsReview(ctx, token, ref, op)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if err == nil {
			err = ErrSessionReloaded
		}
		return false, err
	}
	delete(c.reviewPending, ref)
	if err == nil && !resp.Success {
		err = &ReviewError{ExternalID: ref, Message: resp.Message}
	}
	if err != nil {
		marked := c.marked[ref]
		c.mu.Unlock()
		glog.Errorf("[quiz] mark %s %s for %s: %v", ref, op, c.owner, err)
		return marked, err
	}
	if op == models.ReviewAdd {
		c.marked[ref] = true
	} else {
		delete(c.marked, ref)
	}
	marked := c.marked[ref]
	ev := Event{Type: EventReviewToggled, SessionID: c.sessionID, Index: c.index, Ref: ref, Value: string(op)}
	c.mu.Unlock()

	c.opts.Publisher.Publish(c.owner, ev)
	return marked, nil
}

// SetStrikeoutMode turns strikeout mode on or off.
func (c *Controller) SetStrikeoutMode(on bool) {
	c.mu.Lock()
	c.strikeoutMode = on
	c.mu.Unlock()
}

// ToggleStrikeout flips optionID's strikeout for ref. It only works while
// strikeout mode is on. Strikeouts are never submitted.
func (c *Controller) ToggleStrikeout(ref, optionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.strikeoutMode {
		return false, ErrStrikeoutModeOff
	}
	if !c.containsLocked(ref) {
		return false, ErrUnknownQuestion
	}
	set := c.strikeouts[ref]
	if set == nil {
		set = make(map[string]bool)
		c.strikeouts[ref] = set
	}
	if set[optionID] {
		delete(set, optionID)
		return false, nil
	}
	set[optionID] = true
	return true, nil
}

// UndoStrikeout removes a strikeout regardless of mode.
func (c *Controller) UndoStrikeout(ref, optionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.strikeouts[ref], optionID)
}

// Marked reports whether ref is in the confirmed review set.
func (c *Controller) Marked(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marked[ref]
}
