package questions

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/auth"
	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/render"
)

type Handler struct {
	service *Service
	secure  bool
}

func NewHandler(service *Service, secure bool) *Handler {
	return &Handler{service: service, secure: secure}
}

// RegisterRoutes registers the practice and setup endpoints on the gated router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/practice", h.Practice).Methods("GET")
	r.HandleFunc("/api/setup", h.GetSetup).Methods("GET")
	r.HandleFunc("/api/setup", h.OpenSetup).Methods("POST")
	r.HandleFunc("/api/setup/filters", h.SetFilters).Methods("PUT", "POST")
	r.HandleFunc("/api/setup/start", h.Start).Methods("POST")
}

type practicePage struct {
	Catalog *Catalog   `json:"catalog"`
	Setup   *SetupView `json:"setup,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type openRequest struct {
	Subject string   `json:"subject"`
	Domains []string `json:"domains"`
}

type filterRequest struct {
	Difficulty string   `json:"difficulty"`
	Skills     []string `json:"skills"`
}

type startResponse struct {
	Total    int    `json:"total"`
	Redirect string `json:"redirect"`
}

func (h *Handler) Practice(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	page := practicePage{Catalog: h.service.Catalog()}
	if setup, err := h.service.Setup(sess.Owner); err == nil {
		v := setup.View()
		page.Setup = &v
	}
	render.Page(w, r, http.StatusOK, "practice.html", page)
}

func (h *Handler) GetSetup(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	setup, err := h.service.Setup(sess.Owner)
	if err != nil {
		render.JSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No practice setup is open"})
		return
	}
	render.JSON(w, http.StatusOK, setup.View())
}

func (h *Handler) OpenSetup(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req openRequest
	if render.JSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.JSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			render.Error(w, r, http.StatusBadRequest, "Invalid request body", "/practice")
			return
		}
		req.Subject = r.PostForm.Get("subject")
		req.Domains = r.PostForm["domains"]
	}

	setup, err := h.service.Open(r.Context(), sess.Token, sess.Owner, req.Subject, req.Domains)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownSubject), errors.Is(err, ErrUnknownDomain), errors.Is(err, ErrNoDomains):
		render.Error(w, r, http.StatusBadRequest, err.Error(), "/practice")
		return
	default:
		auth.RemoteFailure(w, r, err, h.secure, "Failed to fetch questions", "/practice")
		return
	}

	if render.JSONBody(r) || render.WantsJSON(r) {
		render.JSON(w, http.StatusOK, setup.View())
		return
	}
	http.Redirect(w, r, "/practice", http.StatusSeeOther)
}

func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	setup, err := h.service.Setup(sess.Owner)
	if err != nil {
		render.Error(w, r, http.StatusNotFound, "No practice setup is open", "/practice")
		return
	}

	var req filterRequest
	if render.JSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.JSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			render.Error(w, r, http.StatusBadRequest, "Invalid request body", "/practice")
			return
		}
		req.Difficulty = r.PostForm.Get("difficulty")
		req.Skills = r.PostForm["skills"]
	}

	if err := setup.SetDifficulty(req.Difficulty); err != nil {
		render.Error(w, r, http.StatusBadRequest, err.Error(), "/practice")
		return
	}
	setup.SetSkills(req.Skills)

	if render.JSONBody(r) || render.WantsJSON(r) {
		render.JSON(w, http.StatusOK, setup.View())
		return
	}
	http.Redirect(w, r, "/practice", http.StatusSeeOther)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	ctrl, err := h.service.Start(r.Context(), sess.Owner, sess.Token)
	if err != nil {
		if errors.Is(err, ErrNoSetup) {
			render.Error(w, r, http.StatusNotFound, "No practice setup is open", "/practice")
			return
		}
		glog.Errorf("[handler] Start error: %v", err)
		render.Error(w, r, http.StatusInternalServerError, "Failed to start practice", "/practice")
		return
	}

	resp := startResponse{Total: len(ctrl.Refs()), Redirect: "/practice/session"}
	if render.WantsJSON(r) || render.JSONBody(r) {
		render.JSON(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, resp.Redirect, http.StatusSeeOther)
}
