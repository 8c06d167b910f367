// Package resume persists the question list and completion counter for each
// owner so a restarted session can reload the same set of questions.
package resume

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Keys under which the state is exposed, kept stable for anything that reads
// the store by name.
const (
	KeyQuestionRefs    = "questions_externalId_array"
	KeyCompletionCount = "quizCompletionCount"
)

type Store interface {
	LoadRefs(ctx context.Context, owner string) ([]string, error)
	SaveRefs(ctx context.Context, owner string, refs []string) error
	IncrementCompletions(ctx context.Context, owner string) (int, error)
	Completions(ctx context.Context, owner string) (int, error)
}

// ── SQLStore ────────────────────────────────────────────

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) LoadRefs(ctx context.Context, owner string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT refs_json FROM resume_state WHERE owner = $1`, owner,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load refs")
	}

	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, errors.Wrapf(err, "decode %s", KeyQuestionRefs)
	}
	return refs, nil
}

func (s *SQLStore) SaveRefs(ctx context.Context, owner string, refs []string) error {
	if refs == nil {
		refs = []string{}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return errors.Wrapf(err, "encode %s", KeyQuestionRefs)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resume_state (owner, refs_json, completion_count, updated_at)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (owner) DO UPDATE SET refs_json = excluded.refs_json, updated_at = excluded.updated_at`,
		owner, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrap(err, "save refs")
	}
	return nil
}

func (s *SQLStore) IncrementCompletions(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO resume_state (owner, refs_json, completion_count, updated_at)
		 VALUES ($1, '[]', 1, $2)
		 ON CONFLICT (owner) DO UPDATE SET completion_count = resume_state.completion_count + 1, updated_at = excluded.updated_at
		 RETURNING completion_count`,
		owner, time.Now().Unix(),
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "increment %s", KeyCompletionCount)
	}
	return count, nil
}

func (s *SQLStore) Completions(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT completion_count FROM resume_state WHERE owner = $1`, owner,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", KeyCompletionCount)
	}
	return count, nil
}

// ── MemoryStore ─────────────────────────────────────────

type memoryEntry struct {
	refs        []string
	completions int
}

// MemoryStore keeps state for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) entry(owner string) *memoryEntry {
	e, ok := m.entries[owner]
	if !ok {
		e = &memoryEntry{}
		m.entries[owner] = e
	}
	return e
}

func (m *MemoryStore) LoadRefs(_ context.Context, owner string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[owner]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), e.refs...), nil
}

func (m *MemoryStore) SaveRefs(_ context.Context, owner string, refs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(owner).refs = append([]string{}, refs...)
	return nil
}

func (m *MemoryStore) IncrementCompletions(_ context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(owner)
	e.completions++
	return e.completions, nil
}

func (m *MemoryStore) Completions(_ context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[owner]; ok {
		return e.completions, nil
	}
	return 0, nil
}
