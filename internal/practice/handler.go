// Package practice serves a running quiz session: its pages, the JSON
// actions behind them and the live event stream.
package practice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/auth"
	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/quiz"
	"github.com/sat-prep/web/internal/render"
)

const (
	sessionPath = "/practice/session"
	summaryPath = "/practice/summary"
)

// Sessions hands out the owner's quiz controller.
type Sessions interface {
	Get(ctx context.Context, owner, token string) *quiz.Controller
}

type Handler struct {
	sessions Sessions
	hub      *Hub
	secure   bool
}

func NewHandler(sessions Sessions, hub *Hub, secure bool) *Handler {
	return &Handler{sessions: sessions, hub: hub, secure: secure}
}

// RegisterRoutes registers the session pages and actions on the gated router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(sessionPath, h.SessionPage).Methods("GET")
	r.HandleFunc(summaryPath, h.SummaryPage).Methods("GET")

	api := r.PathPrefix("/api/session").Subrouter()
	api.HandleFunc("", h.GetSession).Methods("GET")
	api.HandleFunc("/map", h.GetMap).Methods("GET")
	api.HandleFunc("/summary", h.GetSummary).Methods("GET")
	api.HandleFunc("/events", h.Events).Methods("GET")

	api.HandleFunc("/goto", h.GoTo).Methods("POST")
	api.HandleFunc("/advance", h.Advance).Methods("POST")
	api.HandleFunc("/retreat", h.Retreat).Methods("POST")
	api.HandleFunc("/answer", h.Answer).Methods("POST")
	api.HandleFunc("/review", h.Review).Methods("POST")
	api.HandleFunc("/stop", h.RequestStop).Methods("POST")
	api.HandleFunc("/stop/confirm", h.ConfirmStop).Methods("POST")
	api.HandleFunc("/stop/cancel", h.CancelStop).Methods("POST")
	api.HandleFunc("/reset", h.Reset).Methods("POST")
	api.HandleFunc("/strikeout-mode", h.StrikeoutMode).Methods("POST")
	api.HandleFunc("/strikeout", h.Strikeout).Methods("POST")
}

// ── Views ──────────────────────────────────────────────

type sessionPage struct {
	Session quiz.Snapshot  `json:"session"`
	Map     []quiz.MapCell `json:"map"`
	Notice  string         `json:"notice,omitempty"`
}

type stepView struct {
	Index       int    `json:"index"`
	Complete    bool   `json:"complete"`
	Submitted   string `json:"submitted,omitempty"`
	Correct     *bool  `json:"correct,omitempty"`
	SubmitError string `json:"submit_error,omitempty"`
	FetchError  string `json:"fetch_error,omitempty"`
}

type actionResponse struct {
	Session quiz.Snapshot `json:"session"`
	Step    *stepView     `json:"step,omitempty"`
	Correct *bool         `json:"correct,omitempty"`
	Marked  *bool         `json:"marked,omitempty"`
	Struck  *bool         `json:"struck,omitempty"`
}

func newStepView(res quiz.StepResult) *stepView {
	v := &stepView{Index: res.Index, Complete: res.Complete}
	if s := res.Submission; s != nil {
		correct := s.Correct
		v.Submitted = s.ExternalID
		v.Correct = &correct
		if s.Err != nil {
			v.SubmitError = "Failed to save your result"
		}
	}
	if res.FetchErr != nil {
		v.FetchError = "Failed to load the question"
	}
	return v
}

// notice is the line shown on the session page after a form action.
func (v *stepView) notice() string {
	var parts []string
	if v.SubmitError != "" {
		parts = append(parts, v.SubmitError)
	}
	if v.FetchError != "" {
		parts = append(parts, v.FetchError)
	}
	return strings.Join(parts, ". ")
}

// ── Input ──────────────────────────────────────────────

type actionRequest struct {
	Index  *int   `json:"index"`
	Ref    string `json:"ref"`
	Value  string `json:"value"`
	Option string `json:"option"`
	On     bool   `json:"on"`
	Undo   bool   `json:"undo"`
}

func readAction(r *http.Request) (actionRequest, error) {
	var req actionRequest
	if render.JSONBody(r) {
		err := json.NewDecoder(r.Body).Decode(&req)
		if err == io.EOF {
			return req, nil
		}
		return req, errors.Wrap(err, "decode body")
	}
	if err := r.ParseForm(); err != nil {
		return req, errors.Wrap(err, "parse form")
	}
	if v := r.PostForm.Get("index"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.Wrapf(err, "index %q", v)
		}
		req.Index = &i
	}
	req.Ref = r.PostForm.Get("ref")
	req.Value = r.PostForm.Get("value")
	req.Option = r.PostForm.Get("option")
	req.On = formBool(r.PostForm.Get("on"))
	req.Undo = formBool(r.PostForm.Get("undo"))
	return req, nil
}

func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

func wantsJSON(r *http.Request) bool {
	return render.WantsJSON(r) || render.JSONBody(r)
}

// ── Responses ──────────────────────────────────────────

func (h *Handler) controller(r *http.Request) *quiz.Controller {
	sess, _ := auth.FromContext(r.Context())
	return h.sessions.Get(r.Context(), sess.Owner, sess.Token)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if wantsJSON(r) {
		render.JSON(w, status, models.ErrorResponse{Error: msg})
		return
	}
	render.Error(w, r, status, msg, sessionPath)
}

// fail maps a controller error to a response. Guard rejections are
// conflicts, bad input is 400 and anything from the remote is a 502.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var reviewErr *quiz.ReviewError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		auth.Unauthorized(w, r, h.secure)
	case errors.Is(err, quiz.ErrNavigationInFlight),
		errors.Is(err, quiz.ErrReviewPending),
		errors.Is(err, quiz.ErrSessionReloaded),
		errors.Is(err, quiz.ErrSessionComplete),
		errors.Is(err, quiz.ErrStopNotRequested),
		errors.Is(err, quiz.ErrStrikeoutModeOff),
		errors.Is(err, quiz.ErrContentNotLoaded),
		errors.Is(err, quiz.ErrAtFirstQuestion):
		h.respondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, quiz.ErrIndexOutOfRange),
		errors.Is(err, quiz.ErrEmptyAnswer),
		errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, quiz.ErrUnknownOption):
		h.respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &reviewErr):
		glog.Warningf("[practice] %v", reviewErr)
		msg := "Failed to update review status"
		if reviewErr.Message != "" {
			msg = reviewErr.Message
		}
		h.respondError(w, r, http.StatusBadGateway, msg)
	default:
		if wantsJSON(r) {
			glog.Errorf("[practice] %s %s: %v", r.Method, r.URL.Path, err)
			render.JSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Remote service failed"})
			return
		}
		auth.RemoteFailure(w, r, err, h.secure, "Remote service failed", sessionPath)
	}
}

// finishStep answers a navigation. A remote 401 during the step logs the
// caller out; other step failures are reported with the new state.
func (h *Handler) finishStep(w http.ResponseWriter, r *http.Request, ctrl *quiz.Controller, res quiz.StepResult) {
	if s := res.Submission; s != nil && errors.Is(s.Err, apiclient.ErrUnauthorized) {
		auth.Unauthorized(w, r, h.secure)
		return
	}
	if errors.Is(res.FetchErr, apiclient.ErrUnauthorized) {
		auth.Unauthorized(w, r, h.secure)
		return
	}

	step := newStepView(res)
	if wantsJSON(r) {
		render.JSON(w, http.StatusOK, actionResponse{Session: ctrl.Snapshot(), Step: step})
		return
	}
	if res.Complete {
		http.Redirect(w, r, summaryPath, http.StatusSeeOther)
		return
	}
	if notice := step.notice(); notice != "" {
		render.Page(w, r, http.StatusOK, "session.html", sessionPage{
			Session: ctrl.Snapshot(),
			Map:     ctrl.QuestionMap(),
			Notice:  notice,
		})
		return
	}
	http.Redirect(w, r, sessionPath, http.StatusSeeOther)
}

func (h *Handler) finishAction(w http.ResponseWriter, r *http.Request, resp actionResponse) {
	if wantsJSON(r) {
		render.JSON(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, sessionPath, http.StatusSeeOther)
}

func (h *Handler) badInput(w http.ResponseWriter, r *http.Request, err error) {
	glog.V(1).Infof("[practice] bad input on %s: %v", r.URL.Path, err)
	h.respondError(w, r, http.StatusBadRequest, "Invalid request body")
}

// ── Pages ──────────────────────────────────────────────

func (h *Handler) SessionPage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	snap := ctrl.Snapshot()
	if snap.Total == 0 {
		http.Redirect(w, r, "/practice", http.StatusFound)
		return
	}
	if snap.Complete {
		http.Redirect(w, r, summaryPath, http.StatusFound)
		return
	}
	render.Page(w, r, http.StatusOK, "session.html", sessionPage{Session: snap, Map: ctrl.QuestionMap()})
}

func (h *Handler) SummaryPage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	summary := ctrl.Summary()
	if summary.Total == 0 {
		http.Redirect(w, r, "/practice", http.StatusFound)
		return
	}
	render.Page(w, r, http.StatusOK, "summary.html", summary)
}

// ── Reads ──────────────────────────────────────────────

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, h.controller(r).Snapshot())
}

func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, h.controller(r).QuestionMap())
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, h.controller(r).Summary())
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	h.hub.ServeWS(w, r, sess.Owner)
}

// ── Navigation ─────────────────────────────────────────

func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	req, err := readAction(r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	if req.Index == nil {
		h.respondError(w, r, http.StatusBadRequest, "index is required")
		return
	}
	ctrl := h.controller(r)
	res, err := ctrl.GoTo(r.Context(), *req.Index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishStep(w, r, ctrl, res)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	res, err := ctrl.Advance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishStep(w, r, ctrl, res)
}

func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	res, err := ctrl.Retreat(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishStep(w, r, ctrl, res)
}

func (h *Handler) RequestStop(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	if err := ctrl.RequestStop(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot()})
}

func (h *Handler) ConfirmStop(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	res, err := ctrl.ConfirmStop(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishStep(w, r, ctrl, res)
}

func (h *Handler) CancelStop(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	ctrl.CancelStop()
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot()})
}

// Reset dismisses the summary. The list is kept for another attempt and
// a form post goes back to the dashboard.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	if err := ctrl.Reset(r.Context()); err != nil {
		glog.Warningf("[practice] reset: first question failed to load: %v", err)
	}
	if wantsJSON(r) {
		render.JSON(w, http.StatusOK, actionResponse{Session: ctrl.Snapshot()})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// ── Answers ────────────────────────────────────────────

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	req, err := readAction(r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	ctrl := h.controller(r)
	correct, err := ctrl.RecordAnswer(req.Ref, req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot(), Correct: &correct})
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	req, err := readAction(r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	ctrl := h.controller(r)
	marked, err := ctrl.ToggleReview(r.Context(), req.Ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot(), Marked: &marked})
}

func (h *Handler) StrikeoutMode(w http.ResponseWriter, r *http.Request) {
	req, err := readAction(r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	ctrl := h.controller(r)
	ctrl.SetStrikeoutMode(req.On)
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot()})
}

func (h *Handler) Strikeout(w http.ResponseWriter, r *http.Request) {
	req, err := readAction(r)
	if err != nil {
		h.badInput(w, r, err)
		return
	}
	ctrl := h.controller(r)
	if req.Undo {
		ctrl.UndoStrikeout(req.Ref, req.Option)
		struck := false
		h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot(), Struck: &struck})
		return
	}
	struck, err := ctrl.ToggleStrikeout(req.Ref, req.Option)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.finishAction(w, r, actionResponse{Session: ctrl.Snapshot(), Struck: &struck})
}
