package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sat-prep/web/internal/auth"
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
	r.HandleFunc("/", h.Home).Methods("GET")
	r.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	r.HandleFunc("/profile", h.Profile).Methods("GET")
}

type homePage struct {
	LoggedIn bool `json:"logged_in"`
}

// Home is public; a signed-in visitor sees links into the app instead of
// the login button.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	_, ok := auth.FromContext(r.Context())
	render.Page(w, r, http.StatusOK, "home.html", homePage{LoggedIn: ok})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	d, err := h.service.Dashboard(r.Context(), sess.Token, sess.Owner)
	if err != nil {
		auth.RemoteFailure(w, r, err, h.secure, "Failed to load your performance data", "/dashboard")
		return
	}
	render.Page(w, r, http.StatusOK, "dashboard.html", d)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	p, err := h.service.Profile(r.Context(), sess.Token)
	if err != nil {
		auth.RemoteFailure(w, r, err, h.secure, "Failed to load your profile", "/profile")
		return
	}
	render.Page(w, r, http.StatusOK, "profile.html", p)
}
