package noajax

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/metrics"
	"github.com/zjrosen/noajax/internal/platform"
	"github.com/zjrosen/noajax/internal/rewrite"
)

// recorder collects the names of extension points as they run.
type recorder struct {
	calls []string
}

func (rec *recorder) handler(name string) Handler {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.calls = append(rec.calls, name)
	}
}

func signedIn(token string) platform.Authenticator {
	return platform.AuthenticatorFunc(func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+token
	})
}

// newDispatchHost boots a public host whose authenticator accepts "Bearer good".
func newDispatchHost(t *testing.T, opts ...Option) (*platform.Host, *Rerouter, *recorder) {
	t.Helper()
	host := platform.NewHost(
		platform.Site{BaseURL: testBase, Charset: "ISO-8859-1"},
		rewrite.NewTable(nil),
		platform.WithAuthenticator(signedIn("good")),
		platform.WithFallback(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("theme page"))
		})),
	)
	r := New(host, opts...)
	r.Register()
	require.NoError(t, host.Boot(t.Context()))

	rec := &recorder{}
	r.Before.Add(hooks.DefaultPriority, rec.handler("before"))
	r.BeforeAction.Add("foo", hooks.DefaultPriority, rec.handler("before/foo"))
	r.BeforeAction.Add("bar", hooks.DefaultPriority, rec.handler("before/bar"))
	r.Authenticated.Add("foo", hooks.DefaultPriority, rec.handler("auth/foo"))
	r.Anonymous.Add("foo", hooks.DefaultPriority, rec.handler("nopriv/foo"))
	return host, r, rec
}

func serve(host http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	host.ServeHTTP(w, req)
	return w
}

func TestDispatch_IgnoresOtherPaths(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	w := serve(host, httptest.NewRequest(http.MethodGet, "/about/?action=foo", nil))
	assert.Equal(t, "theme page", w.Body.String())
	assert.Empty(t, rec.calls)
	assert.Empty(t, w.Header().Get("X-Robots-Tag"))
}

func TestDispatch_MissingActionTerminatesEmpty(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, rec.calls)
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestDispatch_AuthenticatedRunsOnlyAuthenticatedFamily(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	req := httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=foo", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := serve(host, req)

	assert.Equal(t, []string{"before", "before/foo", "auth/foo"}, rec.calls)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDispatch_AnonymousRunsOnlyAnonymousFamily(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax?action=foo", nil))

	assert.Equal(t, []string{"before", "before/foo", "nopriv/foo"}, rec.calls)
	assert.NotContains(t, w.Body.String(), "theme page")
}

func TestDispatch_HeadersForEveryOutcome(t *testing.T) {
	host, _, _ := newDispatchHost(t)

	for _, action := range []string{"foo", "unregistered"} {
		t.Run(action, func(t *testing.T) {
			w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action="+action, nil))

			assert.Equal(t, "noindex", w.Header().Get("X-Robots-Tag"))
			assert.Equal(t, "text/html; charset=ISO-8859-1", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, platform.NocacheControl, w.Header().Get("Cache-Control"))
			assert.Equal(t, platform.NocacheExpires, w.Header().Get("Expires"))
		})
	}
}

func TestDispatch_PostBodyAction(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	form := url.Values{"action": {"foo"}}
	req := httptest.NewRequest(http.MethodPost, "/admin-no-ajax/?action=bar", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	serve(host, req)

	// The body wins over the query string.
	assert.Equal(t, []string{"before", "before/foo", "nopriv/foo"}, rec.calls)
}

func TestDispatch_RemovesSpooledUploads(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	host, r, _ := newDispatchHost(t)

	var uploaded int64
	r.Anonymous.Add("upload", hooks.DefaultPriority, func(w http.ResponseWriter, req *http.Request) {
		require.NotNil(t, req.MultipartForm)
		fh := req.MultipartForm.File["file"][0]
		f, err := fh.Open()
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		uploaded = fh.Size
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("action", "upload"))
	part, err := mw.CreateFormFile("file", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 9<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin-no-ajax/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(host, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9<<20), uploaded)
	left, err := filepath.Glob(filepath.Join(tmp, "multipart-*"))
	require.NoError(t, err)
	assert.Empty(t, left, "spooled upload parts should be removed after dispatch")
}

func TestDispatch_EmptyActionStillDispatches(t *testing.T) {
	host, _, rec := newDispatchHost(t)

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=", nil))

	assert.Equal(t, []string{"before"}, rec.calls)
	assert.Equal(t, "noindex", w.Header().Get("X-Robots-Tag"))
}

func TestDispatch_SanitizedActionSelectsHandlers(t *testing.T) {
	host, r, _ := newDispatchHost(t)

	var got string
	r.Anonymous.Add("a&lt;b", hooks.DefaultPriority, func(w http.ResponseWriter, req *http.Request) {
		got = "escaped"
	})
	r.Anonymous.Add("a<b", hooks.DefaultPriority, func(w http.ResponseWriter, req *http.Request) {
		got = "raw"
	})

	serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action="+url.QueryEscape("a<b"), nil))
	assert.Equal(t, "escaped", got)
}

func TestDispatch_HandlerWritesBody(t *testing.T) {
	host, r, _ := newDispatchHost(t)
	r.Anonymous.Add("echo", hooks.DefaultPriority, func(w http.ResponseWriter, req *http.Request) {
		assert.True(t, DoingAjax(req.Context()))
		_, _ = w.Write([]byte("pong"))
	})

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=echo", nil))
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "text/html; charset=ISO-8859-1", w.Header().Get("Content-Type"))
}

func TestDispatch_HeaderFailuresAreSuppressed(t *testing.T) {
	m := metrics.New()
	host, r, rec := newDispatchHost(t, WithMetrics(m))

	r.HeadersFilter.Add(hooks.DefaultPriority, func(h []string) []string {
		return append([]string{"not a header"}, h...)
	})
	r.BeforeAction.Add("early", hooks.DefaultPriority, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("early output"))
	})
	r.Anonymous.Add("early", hooks.DefaultPriority, rec.handler("nopriv/early"))

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=early", nil))

	// Output before the headers means none of them could be sent, yet the
	// action handler still ran.
	assert.Equal(t, "early output", w.Body.String())
	assert.Contains(t, rec.calls, "nopriv/early")
	assert.Empty(t, w.Header().Get("X-Robots-Tag"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeaderFailures.WithLabelValues("malformed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.HeaderFailures.WithLabelValues("headers_sent")))
}

func TestDispatch_HeadersFilter(t *testing.T) {
	host, r, _ := newDispatchHost(t)
	r.HeadersFilter.Add(hooks.DefaultPriority, func(h []string) []string {
		want := []string{"Content-Type: text/html; charset=ISO-8859-1", "X-Robots-Tag: noindex"}
		if diff := cmp.Diff(want, h); diff != "" {
			t.Errorf("default headers mismatch (-want +got):\n%s", diff)
		}
		return []string{"Content-Type: application/json", "X-Robots-Tag: noindex"}
	})

	w := serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=foo", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestDispatch_Metrics(t *testing.T) {
	m := metrics.New()
	host, _, _ := newDispatchHost(t, WithMetrics(m))

	serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/", nil))
	serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=foo", nil))
	serve(host, httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=nobody", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("none", metrics.OutcomeMissingAction)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("anonymous", metrics.OutcomeHandled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("anonymous", metrics.OutcomeUnhandled)))
}

func TestDispatch_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	host, _, _ := newDispatchHost(t, WithTracer(tp.Tracer("test")))

	req := httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=foo", nil)
	req.Header.Set("Authorization", "Bearer good")
	serve(host, req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "noajax.dispatch", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "foo", attrs["noajax.action"])
	assert.Equal(t, "authenticated", attrs["noajax.caller"])
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy("true"))
	assert.True(t, truthy("1"))
	assert.False(t, truthy(""))
	assert.False(t, truthy("0"))
}
