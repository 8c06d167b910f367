package practice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/apiclient/apitest"
	"github.com/sat-prep/web/internal/auth"
	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/quiz"
	"github.com/sat-prep/web/internal/resume"
)

type testApp struct {
	remote  *apitest.Server
	reg     *quiz.Registry
	hub     *Hub
	handler http.Handler
	token   string
	owner   string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	remote := apitest.New()
	t.Cleanup(remote.Close)
	remote.AddMCQ("q1", models.DifficultyEasy, "H", "Linear equations", 1)
	remote.AddMCQ("q2", models.DifficultyMedium, "H", "Linear equations", 0)
	remote.AddSPR("q3", models.DifficultyHard, "P", "Nonlinear functions", "4", "4.0")

	client := apiclient.NewClient(remote.URL, remote.Client(), apiclient.WithRetry(0, time.Millisecond))
	hub := NewHub(8, nil)
	reg := quiz.NewRegistry(client, resume.NewMemoryStore(), quiz.Options{Publisher: hub})

	r := mux.NewRouter()
	NewHandler(reg, hub, false).RegisterRoutes(r)

	return &testApp{
		remote:  remote,
		reg:     reg,
		hub:     hub,
		handler: auth.NewGate(false).Middleware(r),
		token:   remote.SessionData,
		owner:   ownerOf(t, remote.SessionData),
	}
}

func ownerOf(t *testing.T, token string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieSessionData, Value: token})
	sess := auth.LoadSession(req)
	require.NoError(t, sess.Validate(time.Now()))
	return sess.Owner
}

func (a *testApp) load(t *testing.T, refs ...string) *quiz.Controller {
	t.Helper()
	ctrl := a.reg.Get(context.Background(), a.owner, a.token)
	require.NoError(t, ctrl.LoadSession(context.Background(), refs))
	return ctrl
}

func (a *testApp) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if contentType == "application/json" || method == http.MethodGet && strings.HasPrefix(path, "/api/") {
		req.Header.Set("Accept", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: auth.CookieSessionData, Value: a.token})
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testApp) post(path, body string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, "application/json", body)
}

func (a *testApp) form(path string, values url.Values) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, "application/x-www-form-urlencoded", values.Encode())
}

func decodeAction(t *testing.T, w *httptest.ResponseRecorder) actionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp actionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSessionFlowJSON(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2", "q3")

	w := app.do(http.MethodGet, "/api/session", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap quiz.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, "q1", snap.Ref)
	require.NotNil(t, snap.Question)

	resp := decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-opta"}`))
	require.NotNil(t, resp.Correct)
	assert.False(t, *resp.Correct)
	assert.Equal(t, "q1-opta", resp.Session.WrongAnswer)

	resp = decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optb"}`))
	assert.True(t, *resp.Correct)
	assert.Equal(t, 2, resp.Session.Attempts)

	resp = decodeAction(t, app.post("/api/session/advance", ""))
	require.NotNil(t, resp.Step)
	assert.Equal(t, "q1", resp.Step.Submitted)
	assert.True(t, *resp.Step.Correct)
	assert.Empty(t, resp.Step.SubmitError)
	assert.Equal(t, 1, resp.Session.Index)

	resp = decodeAction(t, app.post("/api/session/goto", `{"index":0}`))
	assert.Equal(t, 0, resp.Session.Index)
	assert.Empty(t, resp.Step.Submitted, "going back does not submit")

	assert.Equal(t, http.StatusBadRequest, app.post("/api/session/goto", `{"index":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, app.post("/api/session/goto", `{}`).Code)
	assert.Equal(t, http.StatusConflict, app.post("/api/session/retreat", "").Code)

	decodeAction(t, app.post("/api/session/goto", `{"index":2}`))
	resp = decodeAction(t, app.post("/api/session/answer", `{"ref":"q3","value":" 4 "}`))
	assert.True(t, *resp.Correct)

	resp = decodeAction(t, app.post("/api/session/advance", ""))
	assert.True(t, resp.Step.Complete)
	assert.True(t, resp.Session.Complete)
	assert.Equal(t, 1, resp.Session.CompletionCount)

	assert.Equal(t, http.StatusConflict, app.post("/api/session/advance", "").Code)
	assert.Equal(t, http.StatusConflict, app.post("/api/session/answer", `{"ref":"q2","value":"q2-opta"}`).Code)

	app.remote.Lock()
	require.Len(t, app.remote.Submissions, 2)
	assert.Equal(t, []string{"A", "B"}, app.remote.Submissions[0].Request.Attempts)
	assert.Equal(t, "q3", app.remote.Submissions[1].Request.ExternalID)
	app.remote.Unlock()

	w = app.do(http.MethodGet, "/api/session/summary", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary quiz.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Answered)
	assert.Equal(t, 2, summary.Correct)
	assert.Equal(t, 1, summary.Unanswered)
	assert.InDelta(t, 75.0, summary.ScorePercent, 0.01)
}

func TestAnswerValidation(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty value", `{"ref":"q1","value":"  "}`, http.StatusBadRequest},
		{"unknown question", `{"ref":"zz","value":"x"}`, http.StatusBadRequest},
		{"unknown option", `{"ref":"q1","value":"q2-opta"}`, http.StatusBadRequest},
		{"not fetched yet", `{"ref":"q2","value":"q2-opta"}`, http.StatusConflict},
		{"malformed body", `{"ref":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.post("/api/session/answer", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			var e models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestQuestionMap(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2", "q3")

	decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optb"}`))
	decodeAction(t, app.post("/api/session/review", `{"ref":"q3"}`))
	decodeAction(t, app.post("/api/session/goto", `{"index":1}`))

	w := app.do(http.MethodGet, "/api/session/map", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cells []quiz.MapCell
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cells))
	require.Len(t, cells, 3)
	assert.Equal(t, quiz.CellAnswered, cells[0].Status())
	assert.Equal(t, quiz.CellCurrent, cells[1].Status())
	assert.Equal(t, quiz.CellMarked, cells[2].Status())
}

func TestStopTwoStep(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2")

	assert.Equal(t, http.StatusConflict, app.post("/api/session/stop/confirm", "").Code)

	resp := decodeAction(t, app.post("/api/session/stop", ""))
	assert.True(t, resp.Session.StopRequested)
	resp = decodeAction(t, app.post("/api/session/stop/cancel", ""))
	assert.False(t, resp.Session.StopRequested)
	assert.False(t, resp.Session.Complete)

	decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optc"}`))
	decodeAction(t, app.post("/api/session/stop", ""))
	resp = decodeAction(t, app.post("/api/session/stop/confirm", ""))
	assert.True(t, resp.Session.Complete)
	assert.Equal(t, "q1", resp.Step.Submitted)
	assert.False(t, *resp.Step.Correct)

	assert.Equal(t, http.StatusConflict, app.post("/api/session/stop", "").Code)
}

func TestReviewToggle(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1")

	resp := decodeAction(t, app.post("/api/session/review", `{"ref":"q1"}`))
	assert.True(t, *resp.Marked)
	assert.True(t, resp.Session.Marked)

	app.remote.Lock()
	app.remote.ReviewSuccess = false
	app.remote.Unlock()

	w := app.post("/api/session/review", `{"ref":"q1"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "review list is full")

	w = app.do(http.MethodGet, "/api/session", "", "")
	var snap quiz.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Marked, "a rejected toggle leaves the mark alone")

	app.remote.Lock()
	require.Len(t, app.remote.ReviewOps, 2)
	assert.Equal(t, models.ReviewAdd, app.remote.ReviewOps[0].Operation)
	assert.Equal(t, models.ReviewRemove, app.remote.ReviewOps[1].Operation)
	app.remote.Unlock()
}

func TestStrikeouts(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1")

	assert.Equal(t, http.StatusConflict, app.post("/api/session/strikeout", `{"ref":"q1","option":"q1-opta"}`).Code)

	resp := decodeAction(t, app.post("/api/session/strikeout-mode", `{"on":true}`))
	assert.True(t, resp.Session.StrikeoutMode)

	resp = decodeAction(t, app.post("/api/session/strikeout", `{"ref":"q1","option":"q1-opta"}`))
	assert.True(t, *resp.Struck)
	assert.Equal(t, []string{"q1-opta"}, resp.Session.Strikeouts)

	resp = decodeAction(t, app.post("/api/session/strikeout", `{"ref":"q1","option":"q1-opta","undo":true}`))
	assert.False(t, *resp.Struck)
	assert.Empty(t, resp.Session.Strikeouts)
}

func TestFormActions(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1")

	w := app.form("/api/session/answer", url.Values{"ref": {"q1"}, "value": {"q1-optb"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, sessionPath, w.Header().Get("Location"))

	w = app.do(http.MethodGet, sessionPath, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stem q1")

	w = app.form("/api/session/answer", url.Values{"ref": {"q1"}, "value": {""}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `href="/practice/session"`)

	w = app.form("/api/session/advance", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, summaryPath, w.Header().Get("Location"))

	w = app.do(http.MethodGet, sessionPath, "", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, summaryPath, w.Header().Get("Location"))

	w = app.do(http.MethodGet, summaryPath, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "100.0%")

	w = app.form("/api/session/reset", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = app.do(http.MethodGet, "/api/session", "", "")
	var snap quiz.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.False(t, snap.Complete)
	assert.Equal(t, []string{"q1"}, app.reg.Get(context.Background(), app.owner, app.token).Refs())
}

func TestPagesWithoutSession(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{sessionPath, summaryPath} {
		w := app.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "/practice", w.Header().Get("Location"), path)
	}
}

func TestRemoteRejectsTokenMidSession(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2")
	decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optb"}`))

	app.remote.Lock()
	app.remote.SessionData = "rotated"
	app.remote.Unlock()

	w := app.post("/api/session/advance", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieSessionData && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestSubmitFailureKeepsGoing(t *testing.T) {
	app := newTestApp(t)
	app.load(t, "q1", "q2")
	decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optb"}`))

	app.remote.Lock()
	app.remote.FailSubmits = 5
	app.remote.Unlock()

	resp := decodeAction(t, app.post("/api/session/advance", ""))
	assert.Equal(t, 1, resp.Session.Index)
	assert.Equal(t, "Failed to save your result", resp.Step.SubmitError)

	w := app.form("/api/session/retreat", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestSessionRequiresLogin(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/session/advance", nil)
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func signedToken(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func TestForgedClaimsCannotReachAnotherSession(t *testing.T) {
	app := newTestApp(t)
	exp := time.Now().Add(time.Hour).Unix()
	victim := signedToken(t, "remote-signing-key", jwt.MapClaims{"sub": "victim-42", "exp": exp})

	app.remote.SessionData = victim
	app.token = victim
	app.owner = ownerOf(t, victim)

	app.load(t, "q1", "q2")
	decodeAction(t, app.post("/api/session/answer", `{"ref":"q1","value":"q1-optc"}`))

	intruder := *app
	intruder.token = signedToken(t, "attacker-guess", jwt.MapClaims{"sub": "victim-42", "exp": exp})
	require.NotEqual(t, app.owner, ownerOf(t, intruder.token))

	w := intruder.do(http.MethodGet, "/api/session", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap quiz.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.Total)
	assert.Empty(t, snap.Answer)
	assert.Nil(t, snap.Question)

	intruder.post("/api/session/reset", "")

	ctrl := app.reg.Get(context.Background(), app.owner, app.token)
	answer, ok := ctrl.Answer("q1")
	assert.True(t, ok)
	assert.Equal(t, "q1-optc", answer)
	assert.Equal(t, 2, app.reg.Len())
}
