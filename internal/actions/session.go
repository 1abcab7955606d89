package actions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/zjrosen/noajax/internal/auth"
	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/noajax"
)

const (
	// Login exchanges a configured API token for a session cookie.
	Login = "noajax-login"
	// Logout ends the session carried by the request.
	Logout = "noajax-logout"

	// TokenParam is the form field Login reads the API token from.
	TokenParam = "token"
)

// Result is the {"success": ..., "data": ...} envelope the session actions
// answer with. Failures still use status 200.
type Result struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// LoginData is the Data of a successful Login.
type LoginData struct {
	User    string `json:"user"`
	Expires int64  `json:"expires"`
}

// RegisterSession answers Login for every caller and Logout for signed-in
// callers. now defaults to time.Now.
func RegisterSession(r *noajax.Rerouter, sessions *auth.Store, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	login := loginHandler(sessions, now)
	r.Anonymous.Add(Login, hooks.DefaultPriority, login)
	r.Authenticated.Add(Login, hooks.DefaultPriority, login)
	r.Authenticated.Add(Logout, hooks.DefaultPriority, logoutHandler(sessions))
}

func loginHandler(sessions *auth.Store, now func() time.Time) noajax.Handler {
	return func(w http.ResponseWriter, req *http.Request) {
		// Only seeded API tokens can log in; a session cannot mint another.
		sess, ok := sessions.Lookup(req.FormValue(TokenParam))
		if !ok || !sess.Permanent {
			log.Warn(log.CatAuth, "login rejected", "remote", req.RemoteAddr)
			writeResult(w, Result{Success: false, Data: "invalid token"})
			return
		}

		expires := now().Add(sessions.TTL())
		http.SetCookie(w, &http.Cookie{
			Name:     sessions.CookieName(),
			Value:    sessions.Issue(sess.User),
			Path:     "/",
			Expires:  expires,
			MaxAge:   int(sessions.TTL().Seconds()),
			HttpOnly: true,
			Secure:   req.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		log.Info(log.CatAuth, "session started", "user", sess.User)
		writeResult(w, Result{Success: true, Data: LoginData{User: sess.User, Expires: expires.Unix()}})
	}
}

func logoutHandler(sessions *auth.Store) noajax.Handler {
	return func(w http.ResponseWriter, req *http.Request) {
		token := sessions.Token(req)
		// Seeded API tokens outlive logout; they are revoked by removing them
		// from the config.
		if sess, ok := sessions.Lookup(token); ok && !sess.Permanent {
			sessions.Revoke(token)
			log.Info(log.CatAuth, "session ended", "user", sess.User)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessions.CookieName(),
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   req.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		writeResult(w, Result{Success: true})
	}
}

func writeResult(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.ErrorErr(log.CatAuth, "writing session result", err)
	}
}
