package auth

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/render"
)

type LoginClient interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
}

type Handler struct {
	api    LoginClient
	maxAge int
	secure bool
}

func NewHandler(api LoginClient, maxAge int, secure bool) *Handler {
	if maxAge <= 0 {
		maxAge = 3600
	}
	return &Handler{api: api, maxAge: maxAge, secure: secure}
}

// RegisterRoutes registers the login and logout endpoints. Both must be
// public paths on the gate.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.LoginPage).Methods("GET")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/logout", h.Logout).Methods("GET", "POST")
}

type loginPage struct {
	Email      string `json:"email,omitempty"`
	RedirectTo string `json:"redirectTo"`
	Error      string `json:"error,omitempty"`
}

type loginResult struct {
	Auth       bool   `json:"auth"`
	RedirectTo string `json:"redirectTo"`
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	render.Page(w, r, http.StatusOK, "login.html", loginPage{RedirectTo: safeRedirect(r.URL.Query().Get("redirectTo"))})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	redirectTo := r.URL.Query().Get("redirectTo")

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			models.LoginRequest
			RedirectTo string `json:"redirectTo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			render.JSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
		req = body.LoginRequest
		if body.RedirectTo != "" {
			redirectTo = body.RedirectTo
		}
	} else {
		if err := r.ParseForm(); err != nil {
			render.Error(w, r, http.StatusBadRequest, "Invalid request body", "")
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		if v := r.PostForm.Get("redirectTo"); v != "" {
			redirectTo = v
		}
	}
	redirectTo = safeRedirect(redirectTo)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	page := loginPage{Email: req.Email, RedirectTo: redirectTo}
	if req.Email == "" || req.Password == "" {
		page.Error = "Email and password are required"
		render.Page(w, r, http.StatusBadRequest, "login.html", page)
		return
	}

	resp, err := h.api.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		glog.Errorf("[auth] login error: %v", err)
		page.Error = "Login service unavailable, please try again"
		render.Page(w, r, http.StatusBadGateway, "login.html", page)
		return
	}
	if !resp.Auth {
		page.Error = resp.Error
		if page.Error == "" {
			page.Error = "Invalid email or password"
		}
		render.Page(w, r, http.StatusUnauthorized, "login.html", page)
		return
	}

	SetCookies(w, resp, h.maxAge, h.secure)
	glog.V(1).Infof("[auth] login ok for %s", req.Email)

	if render.WantsJSON(r) || ct == "application/json" {
		render.JSON(w, http.StatusOK, loginResult{Auth: true, RedirectTo: redirectTo})
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ClearCookies(w, h.secure)
	if render.WantsJSON(r) {
		render.JSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/dashboard"
	}
	if target == "/login" {
		return "/dashboard"
	}
	return target
}
