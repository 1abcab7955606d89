// Package frontend serves the public site: theme files, client-side routed
// pages and a health endpoint. Requests under the administrative path are
// refused here; the administrative back-end is not served by this process.
package frontend

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
)

// SiteHandler serves theme files from a filesystem. Paths that don't match a
// file get index.html so the theme can route them, EXCEPT paths under the
// admin prefix which return 403.
type SiteHandler struct {
	fileServer  http.Handler
	fsys        fs.FS
	adminPrefix string
}

// NewSiteHandler creates a handler for fsys, which must hold index.html at
// its root. adminPrefix is normalised to "/<name>/"; empty disables the guard.
func NewSiteHandler(fsys fs.FS, adminPrefix string) *SiteHandler {
	if p := strings.Trim(adminPrefix, "/"); p != "" {
		adminPrefix = "/" + p + "/"
	} else {
		adminPrefix = ""
	}
	return &SiteHandler{
		fileServer:  http.FileServer(http.FS(fsys)),
		fsys:        fsys,
		adminPrefix: adminPrefix,
	}
}

// ServeHTTP handles requests by:
// 1. Returning 403 for the admin prefix (with or without trailing slash)
// 2. Serving the actual file if it exists
// 3. Falling back to index.html for theme routing
func (h *SiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.adminPrefix != "" &&
		(strings.HasPrefix(r.URL.Path, h.adminPrefix) || r.URL.Path == strings.TrimSuffix(h.adminPrefix, "/")) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	if info, err := fs.Stat(h.fsys, path); err == nil && !info.IsDir() {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	r.URL.Path = "/"
	h.fileServer.ServeHTTP(w, r)
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Keyword string `json:"keyword"`
	Rules   int    `json:"rules"`
}

// HealthHandler reports liveness along with the active keyword and the
// number of active rewrite rules.
func HealthHandler(keyword func() string, rules func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Keyword: keyword(),
			Rules:   rules(),
		})
	})
}

// AjaxURLScript serves a script that publishes the asynchronous endpoint URL
// as window.ajaxurl. The URL is computed per request so admin URL filters
// registered after startup still apply.
func AjaxURLScript(ajaxURL func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quoted, err := json.Marshal(ajaxURL())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprintf(w, "window.ajaxurl = %s;\n", quoted)
	})
}
