package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/sat-prep/web/internal/apiclient"
	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/render"
)

// Gate guards every route it wraps. Public paths always pass; an
// authenticated visit to a public path is not redirected away.
type Gate struct {
	public   map[string]bool
	prefixes []string
	secure   bool
	now      func() time.Time
}

func NewGate(secure bool, publicPaths ...string) *Gate {
	g := &Gate{
		public: map[string]bool{"/": true, "/login": true},
		secure: secure,
		now:    time.Now,
	}
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "/") && p != "/" {
			g.prefixes = append(g.prefixes, p)
			continue
		}
		g.public[p] = true
	}
	return g
}

func (g *Gate) isPublic(path string) bool {
	if g.public[path] {
		return true
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// LoginRedirect is the target an unauthenticated visit to path is sent to.
func LoginRedirect(path string) string {
	return "/login?redirectTo=" + url.QueryEscape(path)
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := LoadSession(r)
		err := sess.Validate(g.now())
		if err == nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}

		if g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		if err == ErrSessionExpired {
			ClearCookies(w, g.secure)
		}
		glog.V(2).Infof("[auth] %s %s rejected: %v", r.Method, r.URL.Path, err)
		if isAPI(r.URL.Path) {
			render.JSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
			return
		}
		http.Redirect(w, r, LoginRedirect(r.URL.Path), http.StatusFound)
	})
}

// Unauthorized handles a 401 from the remote API: every session cookie is
// cleared and the caller is sent back to login.
func Unauthorized(w http.ResponseWriter, r *http.Request, secure bool) {
	ClearCookies(w, secure)
	if isAPI(r.URL.Path) || render.WantsJSON(r) {
		render.JSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Session expired, please log in again"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RemoteFailure answers a failed remote call made on behalf of the caller.
// A rejected token logs the caller out; anything else is a 502 with msg and
// an optional retry link.
func RemoteFailure(w http.ResponseWriter, r *http.Request, err error, secure bool, msg, retryURL string) {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		Unauthorized(w, r, secure)
		return
	}
	glog.Errorf("[remote] %s %s: %v", r.Method, r.URL.Path, err)
	render.Error(w, r, http.StatusBadGateway, msg, retryURL)
}

func sessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	}
}

func SetCookies(w http.ResponseWriter, resp *models.LoginResponse, maxAge int, secure bool) {
	http.SetCookie(w, sessionCookie(CookieSessionData, resp.SessionData, maxAge, secure))
	http.SetCookie(w, sessionCookie(CookieAccessToken, resp.AccessToken, maxAge, secure))
}

func ClearCookies(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, sessionCookie(CookieSessionData, "", -1, secure))
	http.SetCookie(w, sessionCookie(CookieAccessToken, "", -1, secure))
}
