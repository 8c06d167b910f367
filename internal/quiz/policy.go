package quiz

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrNavigationInFlight = errors.New("navigation already in progress")
	ErrAtFirstQuestion    = errors.New("already at the first question")
	ErrSessionComplete    = errors.New("session is complete")
	ErrEmptyAnswer        = errors.New("answer is empty")
	ErrUnknownQuestion    = errors.New("question is not part of this session")
	ErrUnknownOption      = errors.New("option is not part of this question")
	ErrContentNotLoaded   = errors.New("question content is not loaded")
	ErrReviewPending      = errors.New("review toggle already in progress")
	ErrStrikeoutModeOff   = errors.New("strikeout mode is off")
	ErrStopNotRequested   = errors.New("stop was not requested")
)

// ErrSessionReloaded reports a remote call whose result was dropped because
// the session was reloaded or reset while it ran.
var ErrSessionReloaded = errors.New("session was reloaded during the request")

// ReviewError is returned when the remote answered a review toggle with
// success false.
type ReviewError struct {
	ExternalID string
	Message    string
}

func (e *ReviewError) Error() string {
	if e.Message == "" {
		return "review toggle rejected for " + e.ExternalID
	}
	return "review toggle rejected for " + e.ExternalID + ": " + e.Message
}

// DeparturePolicy decides which moves away from an answered question submit
// its result.
type DeparturePolicy int

const (
	// SubmitOnAdvance submits only on Advance and on a confirmed stop.
	SubmitOnAdvance DeparturePolicy = iota
	// SubmitOnAnyDeparture also submits on GoTo and Retreat.
	SubmitOnAnyDeparture
)

func ParseDeparturePolicy(s string) (DeparturePolicy, error) {
	switch s {
	case "", "advance":
		return SubmitOnAdvance, nil
	case "any":
		return SubmitOnAnyDeparture, nil
	}
	return 0, errors.Errorf("unknown departure policy %q", s)
}

// HistoryPolicy decides what happens when a question that already has a
// history entry is submitted again.
type HistoryPolicy int

const (
	HistoryLatest HistoryPolicy = iota
	HistoryFirst
)

func ParseHistoryPolicy(s string) (HistoryPolicy, error) {
	switch s {
	case "", "latest":
		return HistoryLatest, nil
	case "first":
		return HistoryFirst, nil
	}
	return 0, errors.Errorf("unknown history policy %q", s)
}

type Options struct {
	Departure DeparturePolicy
	History   HistoryPolicy
	// WrongAnswerDelay is how long the wrong answer signal stays raised.
	WrongAnswerDelay time.Duration
	Publisher        Publisher
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.WrongAnswerDelay <= 0 {
		o.WrongAnswerDelay = 500 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	return o
}
