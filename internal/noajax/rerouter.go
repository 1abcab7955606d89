// Package noajax reroutes the platform's asynchronous endpoint through a
// public path and replays the native asynchronous dispatch for requests that
// arrive there.
//
// Outgoing admin URLs that point at the asynchronous endpoint are rewritten
// to <home>/<keyword>/. A rewrite rule maps that path to the admin-no-ajax
// query variable, and the TemplateRedirect hook dispatches any request that
// carries it.
package noajax

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/metrics"
	"github.com/zjrosen/noajax/internal/platform"
	"github.com/zjrosen/noajax/internal/rewrite"
)

const (
	// DefaultKeyword is the public path segment used when none is configured.
	DefaultKeyword = "admin-no-ajax"

	// QueryVar is the virtual query variable set by the rewrite rule.
	QueryVar = "admin-no-ajax"

	// RewriteTag and RewriteTagRegex register QueryVar with the rewrite table.
	RewriteTag      = "%admin-no-ajax%"
	RewriteTagRegex = "([0-9]+)"

	// RuleQuery is the rewrite target for the keyword path.
	RuleQuery = "index.php?admin-no-ajax=true"

	// AjaxMarker identifies URLs pointing at the native asynchronous endpoint.
	AjaxMarker = "admin-ajax"

	// AdminURLPriority runs the URL filter after default-priority filters.
	AdminURLPriority = 11
)

// Handler is an extension point callback run during dispatch.
type Handler func(w http.ResponseWriter, r *http.Request)

// Rerouter intercepts the asynchronous endpoint. Construct one per process
// with New and call Register before the host boots.
type Rerouter struct {
	host       *platform.Host
	configured string
	tracer     trace.Tracer
	metrics    *metrics.Metrics

	initOnce sync.Once
	keyword  string

	// KeywordFilter can replace the resolved keyword.
	KeywordFilter *hooks.Filter[string]
	// RuleFilter can replace the rewrite pattern for the keyword.
	RuleFilter *hooks.Filter[string]
	// HeadersFilter can replace the "Name: value" header lines sent on dispatch.
	HeadersFilter *hooks.Filter[[]string]

	// Before runs for every dispatched action.
	Before *hooks.Action[Handler]
	// BeforeAction runs for one action, after Before.
	BeforeAction *hooks.Family[Handler]
	// Authenticated handles actions for signed-in callers.
	Authenticated *hooks.Family[Handler]
	// Anonymous handles actions for signed-out callers.
	Anonymous *hooks.Family[Handler]
}

// Option configures a Rerouter.
type Option func(*Rerouter)

// WithKeyword sets the configured keyword. Surrounding slashes are trimmed.
func WithKeyword(keyword string) Option {
	return func(r *Rerouter) { r.configured = keyword }
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Rerouter) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMetrics records dispatch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Rerouter) { r.metrics = m }
}

// New creates a rerouter for host.
func New(host *platform.Host, opts ...Option) *Rerouter {
	r := &Rerouter{
		host:          host,
		tracer:        noop.NewTracerProvider().Tracer(""),
		KeywordFilter: hooks.NewFilter[string](),
		RuleFilter:    hooks.NewFilter[string](),
		HeadersFilter: hooks.NewFilter[[]string](),
		Before:        hooks.NewAction[Handler](),
		BeforeAction:  hooks.NewFamily[Handler](),
		Authenticated: hooks.NewFamily[Handler](),
		Anonymous:     hooks.NewFamily[Handler](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register subscribes Init to the host's AfterSetupTheme stage.
func (r *Rerouter) Register() {
	r.host.AfterSetupTheme.Add(hooks.DefaultPriority, r.Init)
}

// Init wires the rerouter into the host and resolves the keyword. It runs
// once; later calls are no-ops. Outside the administrative context it also
// installs the admin URL filter and the dispatch hook.
func (r *Rerouter) Init() {
	r.initOnce.Do(func() {
		if !r.host.IsAdmin() {
			r.host.AdminURLFilter.Add(AdminURLPriority, func(a platform.AdminURLArgs) platform.AdminURLArgs {
				a.URL = r.RewriteURL(a.URL, a.Path, a.BlogID)
				return a
			})
			r.host.TemplateRedirect.Add(hooks.DefaultPriority, r.ServeTemplateRedirect)
		}

		r.host.OnActivate(r.Activate)
		r.host.Init.Add(hooks.DefaultPriority, r.Rewrite)

		r.keyword = r.KeywordFilter.Apply(defaultKeyword(r.configured))
		log.Info(log.CatNoAjax, "rerouter initialised", "keyword", r.keyword, "admin", r.host.IsAdmin())
	})
}

func defaultKeyword(configured string) string {
	if kw := strings.Trim(configured, "/"); kw != "" {
		return kw
	}
	return DefaultKeyword
}

// Keyword returns the resolved keyword. It is empty until Init has run.
func (r *Rerouter) Keyword() string {
	return r.keyword
}

// RewriteURL points URLs for the native asynchronous endpoint at the public
// keyword path. Every other URL is returned unchanged.
func (r *Rerouter) RewriteURL(url, path string, blogID int) string {
	if strings.Contains(url, AjaxMarker) {
		return r.host.HomeURL("/" + r.keyword + "/")
	}
	return url
}

// Rule returns the rewrite pattern for the keyword after RuleFilter.
func (r *Rerouter) Rule() string {
	return r.RuleFilter.Apply("^" + regexp.QuoteMeta(r.keyword) + "/?$")
}

// Rewrite registers the query variable and the keyword rule with the host's
// rewrite table. The rule takes effect at the next flush.
func (r *Rerouter) Rewrite() {
	table := r.host.Rewrite()
	table.AddTag(RewriteTag, RewriteTagRegex)
	table.AddRule(r.Rule(), RuleQuery, rewrite.PositionTop)
}

// Activate registers the rule and flushes the rewrite table immediately.
func (r *Rerouter) Activate(ctx context.Context) error {
	r.Rewrite()
	err := r.host.FlushRewriteRules(ctx)
	if r.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		r.metrics.RewriteFlushes.WithLabelValues(result).Inc()
	}
	return err
}
