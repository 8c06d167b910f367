package tutor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/apiclient/apitest"
	"github.com/sat-prep/web/internal/auth"
	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/quiz"
	"github.com/sat-prep/web/internal/resume"
)

type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (r *recordingLLM) Generate(ctx context.Context, system, user string) (*LLMResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, user)
	if r.err != nil {
		return nil, r.err
	}
	return &LLMResponse{Content: "Because of the second sentence.", PromptTokens: 100, OutputTokens: 8}, nil
}

func sampleMCQ() *models.QuestionContent {
	return &models.QuestionContent{
		ExternalID:   "q1",
		QuestionType: models.QuestionMCQ,
		QuestionInfo: models.QuestionInfo{
			Stimulus: "<p>The fox ran.</p>",
			Stem:     "What did the fox do?",
			AnswerOptions: []models.AnswerOption{
				{ID: "o1", Content: "Slept"},
				{ID: "o2", Content: "Ran"},
				{ID: "o3", Content: "Ate"},
			},
			Keys:      []string{"o2"},
			Rationale: "The passage says it ran.",
		},
	}
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt(sampleMCQ(), "o1", "  why not A?  ")

	assert.Contains(t, p, "multiple choice")
	assert.Contains(t, p, "PASSAGE:\n<p>The fox ran.</p>")
	assert.Contains(t, p, "A) Slept\nB) Ran\nC) Ate")
	assert.Contains(t, p, "CORRECT ANSWER: B")
	assert.Contains(t, p, "THE STUDENT ANSWERED: A")
	assert.True(t, strings.HasSuffix(p, doubtHeader+"\nwhy not A?\n"))

	spr := &models.QuestionContent{
		ExternalID:   "q2",
		QuestionType: models.QuestionSPR,
		QuestionInfo: models.QuestionInfo{Stem: "2x = 8", CorrectAnswer: []string{"4", "4.0"}},
	}
	p = BuildUserPrompt(spr, "", "how?")
	assert.Contains(t, p, "student-produced response")
	assert.Contains(t, p, "CORRECT ANSWER: 4, 4.0")
	assert.NotContains(t, p, "PASSAGE:")
	assert.NotContains(t, p, "CHOICES:")
	assert.NotContains(t, p, "THE STUDENT ANSWERED")
}

func TestMockClientEchoesDoubt(t *testing.T) {
	resp, err := NewMockClient().Generate(context.Background(), SystemPrompt(), BuildUserPrompt(sampleMCQ(), "", "is C ever right?"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Content, "[Mock] You asked: is C ever right?"))
}

func TestNewClientModes(t *testing.T) {
	c, err := NewClient("mock", "", "", "")
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	c, err = NewClient("cli", "", "", "/usr/local/bin/claude")
	require.NoError(t, err)
	assert.IsType(t, &CLIClient{}, c)

	c, err = NewClient("api", "claude-sonnet-4-5", "key", "")
	require.NoError(t, err)
	assert.IsType(t, &APIClient{}, c)

	_, err = NewClient("api", "claude-sonnet-4-5", "", "")
	assert.Error(t, err)
	_, err = NewClient("oracle", "", "", "")
	assert.Error(t, err)
}

func TestCLIClient(t *testing.T) {
	_, err := NewCLIClient(filepath.Join(t.TempDir(), "missing")).Generate(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ErrCLINotFound)

	// A stand-in CLI that answers with whatever it reads on stdin.
	script := filepath.Join(t.TempDir(), "tutor-cli")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat\n"), 0o755))

	resp, err := NewCLIClient(script).Generate(context.Background(), "sys", "  why is B right?  ")
	require.NoError(t, err)
	assert.Equal(t, "why is B right?", resp.Content)
	assert.Positive(t, resp.OutputTokens)

	silent := filepath.Join(t.TempDir(), "silent-cli")
	require.NoError(t, os.WriteFile(silent, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	_, err = NewCLIClient(silent).Generate(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestAPIClientParsesMessage(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Choice B matches the passage."}],
			"stop_reason":"end_turn","usage":{"input_tokens":42,"output_tokens":7}}`)
	}))
	defer srv.Close()

	c := NewAPIClient("claude-sonnet-4-5", "test-key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := c.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Choice B matches the passage.", resp.Content)
	assert.Equal(t, 42, resp.PromptTokens)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Equal(t, "claude-sonnet-4-5", got["model"])
}

func TestAPIClientRetriesOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	c := NewAPIClient("claude-sonnet-4-5", "test-key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	c.backoff = time.Millisecond
	_, err := c.Generate(context.Background(), "system", "user")
	require.Error(t, err)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func newTestService(t *testing.T, llm LLMClient) (*Service, *apitest.Server, *quiz.Registry) {
	t.Helper()
	remote := apitest.New()
	t.Cleanup(remote.Close)
	remote.AddMCQ("q1", models.DifficultyEasy, "INI", "Inferences", 1)
	remote.AddMCQ("q2", models.DifficultyEasy, "INI", "Inferences", 2)

	client := apiclient.NewClient(remote.URL, remote.Client())
	reg := quiz.NewRegistry(client, resume.NewMemoryStore(), quiz.Options{})
	return NewService(llm, client, reg), remote, reg
}

func TestAnswerReusesSessionContent(t *testing.T) {
	llm := &recordingLLM{}
	svc, remote, reg := newTestService(t, llm)
	ctx := context.Background()

	ctrl := reg.Get(ctx, "owner-1", remote.SessionData)
	require.NoError(t, ctrl.LoadSession(ctx, []string{"q1"}))
	_, err := ctrl.RecordAnswer("q1", "q1-opta")
	require.NoError(t, err)

	ans, err := svc.Answer(ctx, remote.SessionData, "owner-1", DoubtRequest{ExternalID: "q1", Question: "Why is A wrong?"})
	require.NoError(t, err)
	assert.Equal(t, "Because of the second sentence.", ans.Answer)
	assert.Equal(t, 100, ans.PromptTokens)

	remote.Lock()
	assert.Equal(t, 1, remote.ContentFetches["q1"])
	remote.Unlock()

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "THE STUDENT ANSWERED: A")
	assert.Contains(t, llm.prompts[0], "CORRECT ANSWER: B")
}

func TestAnswerFetchesUncachedContent(t *testing.T) {
	llm := &recordingLLM{}
	svc, remote, _ := newTestService(t, llm)

	_, err := svc.Answer(context.Background(), remote.SessionData, "owner-1", DoubtRequest{ExternalID: "q2", Question: "?"})
	require.NoError(t, err)
	remote.Lock()
	assert.Equal(t, 1, remote.ContentFetches["q2"])
	remote.Unlock()
	assert.Contains(t, llm.prompts[0], "CORRECT ANSWER: C")
}

func TestAnswerValidation(t *testing.T) {
	svc, remote, _ := newTestService(t, &recordingLLM{})
	tests := []struct {
		name string
		req  DoubtRequest
	}{
		{"no id", DoubtRequest{Question: "why"}},
		{"no question", DoubtRequest{ExternalID: "q1", Question: "   "}},
		{"too long", DoubtRequest{ExternalID: "q1", Question: strings.Repeat("x", maxDoubtLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Answer(context.Background(), remote.SessionData, "owner-1", tt.req)
			assert.True(t, errors.Is(err, ErrInvalidDoubt), "got %v", err)
		})
	}
}

func TestAskDoubtHandler(t *testing.T) {
	llm := &recordingLLM{}
	svc, remote, _ := newTestService(t, llm)
	r := mux.NewRouter()
	NewHandler(svc, false).RegisterRoutes(r)
	h := auth.NewGate(false).Middleware(r)

	post := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/doubts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: auth.CookieSessionData, Value: token})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := post(remote.SessionData, `{"externalId":"q1","question":"why B?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans DoubtAnswer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ans))
	assert.Equal(t, "q1", ans.ExternalID)

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{"bad json", remote.SessionData, `{`, http.StatusBadRequest},
		{"missing question", remote.SessionData, `{"externalId":"q1"}`, http.StatusBadRequest},
		{"unknown question", remote.SessionData, `{"externalId":"nope","question":"?"}`, http.StatusNotFound},
		{"remote rejects token", "stale-token", `{"externalId":"q1","question":"?"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(tt.token, tt.body).Code)
		})
	}

	llm.err = errors.New("model overloaded")
	assert.Equal(t, http.StatusBadGateway, post(remote.SessionData, `{"externalId":"q1","question":"?"}`).Code)
}
