package tutor

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/apiclient"
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

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/doubts", h.AskDoubt).Methods("POST")
}

func (h *Handler) AskDoubt(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req DoubtRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		render.JSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	answer, err := h.service.Answer(r.Context(), sess.Token, sess.Owner, req)
	switch {
	case err == nil:
		render.JSON(w, http.StatusOK, answer)
	case errors.Is(err, ErrInvalidDoubt):
		render.JSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, apiclient.ErrQuestionNotFound):
		render.JSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Question not found"})
	case errors.Is(err, apiclient.ErrUnauthorized):
		auth.Unauthorized(w, r, h.secure)
	default:
		glog.Errorf("[handler] AskDoubt error: %v", err)
		render.JSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "The tutor is unavailable, please try again"})
	}
}
