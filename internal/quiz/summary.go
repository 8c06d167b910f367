package quiz

import (
	"github.com/sat-prep/web/internal/models"
)

type CellStatus string

const (
	CellCurrent    CellStatus = "current"
	CellMarked     CellStatus = "marked"
	CellAnswered   CellStatus = "answered"
	CellUnanswered CellStatus = "unanswered"
)

type MapCell struct {
	Index    int    `json:"index"`
	Ref      string `json:"ref"`
	Current  bool   `json:"current"`
	Answered bool   `json:"answered"`
	Marked   bool   `json:"marked"`
}

// Status picks the single color a cell is drawn with: current first, then
// marked, then answered.
func (m MapCell) Status() CellStatus {
	switch {
	case m.Current:
		return CellCurrent
	case m.Marked:
		return CellMarked
	case m.Answered:
		return CellAnswered
	}
	return CellUnanswered
}

// QuestionMap returns one cell per question in session order.
func (c *Controller) QuestionMap() []MapCell {
	c.mu.Lock()
	defer c.mu.Unlock()

	cells := make([]MapCell, len(c.refs))
	for i, ref := range c.refs {
		_, answered := c.answers[ref]
		cells[i] = MapCell{
			Index:    i,
			Ref:      ref,
			Current:  i == c.index,
			Answered: answered,
			Marked:   c.marked[ref],
		}
	}
	return cells
}

type SummaryRow struct {
	Index int                  `json:"index"`
	Ref   string               `json:"ref"`
	Entry *models.HistoryEntry `json:"entry,omitempty"`
}

type Summary struct {
	SessionID       string       `json:"session_id"`
	ExamID          string       `json:"exam_id"`
	Total           int          `json:"total"`
	Answered        int          `json:"answered"`
	Correct         int          `json:"correct"`
	Incorrect       int          `json:"incorrect"`
	Unanswered      int          `json:"unanswered"`
	ExtraAttempts   int          `json:"extra_attempts"`
	ScorePercent    float64      `json:"score_percent"`
	CompletedTime   string       `json:"completed_time"`
	CompletionCount int          `json:"completion_count"`
	Complete        bool         `json:"complete"`
	Rows            []SummaryRow `json:"rows"`
}

// Summarize derives the session totals from history entries. Each correct
// answer scores 1/(1+extra attempts); the percentage is the mean over
// answered questions only and is 0 when nothing was answered.
func Summarize(refs []string, history map[string]models.HistoryEntry) Summary {
	s := Summary{Total: len(refs), Rows: make([]SummaryRow, len(refs))}

	var points float64
	for i, ref := range refs {
		s.Rows[i] = SummaryRow{Index: i, Ref: ref}
		entry, ok := history[ref]
		if !ok {
			continue
		}
		e := entry
		s.Rows[i].Entry = &e
		if !e.Answered {
			continue
		}
		s.Answered++
		s.ExtraAttempts += e.ExtraAttempts
		if e.Correct {
			s.Correct++
			points += 1 / float64(1+e.ExtraAttempts)
		}
	}

	s.Incorrect = s.Answered - s.Correct
	s.Unanswered = s.Total - s.Answered
	if s.Answered > 0 {
		s.ScorePercent = points / float64(s.Answered) * 100
	}
	return s
}

func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summarize(c.refs, c.history)
	s.SessionID = c.sessionID
	s.ExamID = c.examID
	s.CompletedTime = c.elapsedLocked()
	s.CompletionCount = c.completions
	s.Complete = c.complete
	return s
}
