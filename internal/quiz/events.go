package quiz

type EventType string

const (
	EventLoaded             EventType = "loaded"
	EventNavigated          EventType = "navigated"
	EventAnswered           EventType = "answered"
	EventWrongAnswer        EventType = "wrong_answer"
	EventWrongAnswerCleared EventType = "wrong_answer_cleared"
	EventReviewToggled      EventType = "review_toggled"
	EventSubmitted          EventType = "submitted"
	EventCompleted          EventType = "completed"
	EventReset              EventType = "reset"
)

type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Ref       string    `json:"ref,omitempty"`
	Value     string    `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Publisher receives controller events. Publish must not block.
type Publisher interface {
	Publish(owner string, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}
