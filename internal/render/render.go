// Package render writes responses as JSON or as an HTML page, depending on
// what the client asked for.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/munnerz/goautoneg"

	"github.com/sat-prep/web/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"percent": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
	"unsafe":  func(s string) template.HTML { return template.HTML(s) },
	"inc":     func(i int) int { return i + 1 },
	"letter":  func(i int) string { return string(rune('A' + i)) },
	"has": func(list []string, s string) bool {
		for _, v := range list {
			if v == s {
				return true
			}
		}
		return false
	},
}).ParseFS(templateFS, "templates/*.html"))

// WantsJSON reports whether the Accept header prefers JSON over HTML. An
// empty or wildcard header gets HTML, as a browser would.
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	for _, clause := range goautoneg.ParseAccept(accept) {
		switch {
		case clause.Type == "text" && clause.SubType == "html":
			return false
		case clause.Type == "application" && clause.SubType == "json":
			return true
		case clause.Type == "application" && clause.SubType == "*":
			return true
		}
	}
	return false
}

// JSONBody reports whether the request body is JSON rather than a form.
func JSONBody(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/json"
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Page renders the named template, or data as JSON when the client wants it.
func Page(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	if WantsJSON(r) {
		JSON(w, status, data)
		return
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		glog.Errorf("[render] template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// ErrorPage carries the in-place error string and the retry target.
type ErrorPage struct {
	Error    string `json:"error"`
	RetryURL string `json:"retry_url,omitempty"`
}

// Error renders msg as an error page or as models.ErrorResponse.
func Error(w http.ResponseWriter, r *http.Request, status int, msg, retryURL string) {
	if WantsJSON(r) {
		JSON(w, status, models.ErrorResponse{Error: msg})
		return
	}
	Page(w, r, status, "error.html", ErrorPage{Error: msg, RetryURL: retryURL})
}
