// Package platform is the minimal content-management host the rerouter plugs
// into: site settings and URL builders, lifecycle stages, the rewrite table,
// header helpers and the request pipeline.
package platform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/rewrite"
)

// RedirectHook runs once routing has resolved. Returning true ends the
// request; nothing further in the pipeline runs.
type RedirectHook func(w http.ResponseWriter, r *http.Request) bool

// ActivationHook runs when an integration is enabled.
type ActivationHook func(ctx context.Context) error

// AdminURLArgs is the value passed through the admin-URL filter.
type AdminURLArgs struct {
	URL    string
	Path   string
	BlogID int
}

// Authenticator decides whether a request belongs to a signed-in user.
type Authenticator interface {
	Authenticated(r *http.Request) bool
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) bool

// Authenticated calls f(r).
func (f AuthenticatorFunc) Authenticated(r *http.Request) bool { return f(r) }

// Anonymous treats every request as signed out.
var Anonymous Authenticator = AuthenticatorFunc(func(*http.Request) bool { return false })

// RuleLoader provides the persisted rewrite table at boot.
type RuleLoader interface {
	Load(ctx context.Context) ([]rewrite.Rule, error)
}

// Host owns the lifecycle stages integrations subscribe to.
type Host struct {
	site    Site
	rewrite *rewrite.Table
	auth    Authenticator
	loader  RuleLoader
	next    http.Handler

	// AfterSetupTheme runs first during Boot. Integrations initialise here.
	AfterSetupTheme *hooks.Action[func()]
	// Init runs after AfterSetupTheme and on every rewrite rebuild.
	// Rewrite rules are registered here.
	Init *hooks.Action[func()]
	// TemplateRedirect runs per request once the rewrite table has resolved
	// the query variables.
	TemplateRedirect *hooks.Action[RedirectHook]
	// AdminURLFilter rewrites every URL built by AdminURL.
	AdminURLFilter *hooks.Filter[AdminURLArgs]

	activation *hooks.Action[ActivationHook]
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithAuthenticator sets the authenticator. The default is Anonymous.
func WithAuthenticator(a Authenticator) HostOption {
	return func(h *Host) { h.auth = a }
}

// WithRuleLoader sets where Boot loads the persisted rewrite table from.
func WithRuleLoader(l RuleLoader) HostOption {
	return func(h *Host) { h.loader = l }
}

// WithFallback sets the handler for requests no redirect hook ended.
// The default responds 404.
func WithFallback(next http.Handler) HostOption {
	return func(h *Host) { h.next = next }
}

// NewHost creates a host for site using table for routing.
func NewHost(site Site, table *rewrite.Table, opts ...HostOption) *Host {
	h := &Host{
		site:             site.withDefaults(),
		rewrite:          table,
		auth:             Anonymous,
		next:             http.NotFoundHandler(),
		AfterSetupTheme:  hooks.NewAction[func()](),
		Init:             hooks.NewAction[func()](),
		TemplateRedirect: hooks.NewAction[RedirectHook](),
		AdminURLFilter:   hooks.NewFilter[AdminURLArgs](),
		activation:       hooks.NewAction[ActivationHook](),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Site returns the site settings.
func (h *Host) Site() Site { return h.site }

// Rewrite returns the rewrite table.
func (h *Host) Rewrite() *rewrite.Table { return h.rewrite }

// IsAdmin reports whether the host serves the administrative context.
func (h *Host) IsAdmin() bool { return h.site.Admin }

// IsAuthenticated reports whether r belongs to a signed-in user.
func (h *Host) IsAuthenticated(r *http.Request) bool { return h.auth.Authenticated(r) }

// HomeURL builds a public URL.
func (h *Host) HomeURL(path string) string { return h.site.HomeURL(path) }

// AdminURL builds an administrative URL and passes it through AdminURLFilter.
func (h *Host) AdminURL(path string) string {
	args := AdminURLArgs{URL: h.site.rawAdminURL(path), Path: path, BlogID: h.site.BlogID}
	return h.AdminURLFilter.Apply(args).URL
}

// AjaxURL is the URL clients use for asynchronous requests.
func (h *Host) AjaxURL() string { return h.AdminURL(AjaxEndpoint) }

// OnActivate registers fn to run on Activate.
func (h *Host) OnActivate(fn ActivationHook) {
	h.activation.Add(hooks.DefaultPriority, fn)
}

// Activate runs the activation hooks, stopping at the first error.
func (h *Host) Activate(ctx context.Context) error {
	var err error
	h.activation.Each(func(fn ActivationHook) {
		if err == nil {
			err = fn(ctx)
		}
	})
	if err != nil {
		return fmt.Errorf("activation: %w", err)
	}
	return nil
}

// Boot runs the startup stages and loads the persisted rewrite table. With
// nothing persisted, the freshly registered rules are flushed instead.
func (h *Host) Boot(ctx context.Context) error {
	h.AfterSetupTheme.Each(func(fn func()) { fn() })
	h.Init.Each(func(fn func()) { fn() })

	if h.loader != nil {
		rules, err := h.loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading rewrite rules: %w", err)
		}
		if len(rules) > 0 {
			h.rewrite.Load(rules)
			log.Info(log.CatRewrite, "loaded persisted rewrite rules", "rules", len(rules))
			return nil
		}
	}
	return h.FlushRewriteRules(ctx)
}

// FlushRewriteRules activates and persists the registered rules.
func (h *Host) FlushRewriteRules(ctx context.Context) error {
	return h.rewrite.Flush(ctx)
}

// RebuildRewriteRules discards registrations, re-runs Init so integrations
// register again, and flushes.
func (h *Host) RebuildRewriteRules(ctx context.Context) error {
	h.rewrite.Reset()
	h.Init.Each(func(fn func()) { fn() })
	return h.FlushRewriteRules(ctx)
}

// ServeHTTP resolves the request path through the rewrite table and runs the
// TemplateRedirect hooks. Requests no hook ends go to the fallback handler.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars, _ := h.rewrite.Match(r.URL.Path)
	r = r.WithContext(WithQueryVars(r.Context(), vars))
	rw := NewResponseWriter(w)

	done := false
	h.TemplateRedirect.Each(func(fn RedirectHook) {
		if !done {
			done = fn(rw, r)
		}
	})
	if done {
		return
	}
	h.next.ServeHTTP(rw, r)
}
