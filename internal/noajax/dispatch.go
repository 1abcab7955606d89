package noajax

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/metrics"
	"github.com/zjrosen/noajax/internal/platform"
)

// maxFormMemory bounds in-memory multipart parsing of the action parameter.
const maxFormMemory = 8 << 20

// ActionParam is the request parameter naming the action to dispatch.
const ActionParam = "action"

// DefaultHeaders returns the header lines sent before HeadersFilter runs.
func (r *Rerouter) DefaultHeaders() []string {
	return []string{
		"Content-Type: text/html; charset=" + r.host.Site().Charset,
		"X-Robots-Tag: noindex",
	}
}

// ServeTemplateRedirect dispatches requests resolved to QueryVar and reports
// whether it ended the request. Every other request is left alone.
//
// Dispatch runs Before, BeforeAction, sends headers, then runs the
// Authenticated or Anonymous handlers for the action. The response always
// ends with status 200 and whatever the handlers wrote; without an action
// parameter it ends immediately with an empty body.
func (r *Rerouter) ServeTemplateRedirect(w http.ResponseWriter, req *http.Request) bool {
	if !truthy(platform.QueryVar(req.Context(), QueryVar)) {
		return false
	}

	ctx, span := r.tracer.Start(withDoingAjax(req.Context()), "noajax.dispatch")
	defer span.End()
	req = req.WithContext(ctx)
	rw := platform.NewResponseWriter(w)
	requestID := uuid.NewString()

	raw, ok := actionParam(req)
	// ParseMultipartForm ran on a derived request, so net/http will not
	// remove the spooled parts for us.
	if req.MultipartForm != nil {
		defer func() { _ = req.MultipartForm.RemoveAll() }()
	}
	if !ok {
		log.Debug(log.CatNoAjax, "no action supplied", "request", requestID)
		r.countDispatch("none", metrics.OutcomeMissingAction)
		terminate(rw)
		return true
	}

	action := SanitizeAction(raw)
	span.SetAttributes(attribute.String("noajax.action", action))

	r.Before.Each(func(h Handler) { h(rw, req) })
	r.BeforeAction.Each(action, func(h Handler) { h(rw, req) })

	for _, line := range r.HeadersFilter.Apply(r.DefaultHeaders()) {
		r.suppress(requestID, platform.SendHeader(rw, line))
	}
	r.suppress(requestID, platform.SendNosniffHeader(rw))
	r.suppress(requestID, platform.NocacheHeaders(rw))

	family, caller := r.Anonymous, "anonymous"
	if r.host.IsAuthenticated(req) {
		family, caller = r.Authenticated, "authenticated"
	}
	span.SetAttributes(attribute.String("noajax.caller", caller))

	outcome := metrics.OutcomeUnhandled
	if family.Has(action) {
		outcome = metrics.OutcomeHandled
	}
	family.Each(action, func(h Handler) { h(rw, req) })

	log.Info(log.CatNoAjax, "dispatched", "request", requestID, "action", action, "caller", caller, "outcome", outcome)
	r.countDispatch(caller, outcome)
	terminate(rw)
	return true
}

// actionParam looks for the action in the request body first, then the
// query string. A present but empty value still counts as supplied.
func actionParam(req *http.Request) (string, bool) {
	if err := req.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Debug(log.CatNoAjax, "unreadable request body", "error", err)
	}
	if vs, ok := req.PostForm[ActionParam]; ok && len(vs) > 0 {
		return vs[0], true
	}
	if vs, ok := req.URL.Query()[ActionParam]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

// terminate ends the response with status 200 if nothing has been written.
func terminate(rw *platform.ResponseWriter) {
	if !rw.HeadersSent() {
		rw.WriteHeader(http.StatusOK)
	}
}

// suppress records a header failure without interrupting dispatch.
func (r *Rerouter) suppress(requestID string, err error) {
	if err == nil {
		return
	}
	log.Debug(log.CatNoAjax, "header not sent", "request", requestID, "error", err)
	if r.metrics == nil {
		return
	}
	reason := "malformed"
	if errors.Is(err, platform.ErrHeadersSent) {
		reason = "headers_sent"
	}
	r.metrics.HeaderFailures.WithLabelValues(reason).Inc()
}

func (r *Rerouter) countDispatch(caller, outcome string) {
	if r.metrics != nil {
		r.metrics.Dispatches.WithLabelValues(caller, outcome).Inc()
	}
}

// truthy follows the platform's loose boolean reading of query values.
func truthy(v string) bool {
	return v != "" && v != "0"
}
