package noajax

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/platform"
	"github.com/zjrosen/noajax/internal/rewrite"
)

const testBase = "https://example.com"

type recordingPersister struct {
	saves [][]rewrite.Rule
}

func (p *recordingPersister) Save(_ context.Context, rules []rewrite.Rule) error {
	p.saves = append(p.saves, rules)
	return nil
}

// newBooted builds a host with a registered rerouter and boots it.
func newBooted(t *testing.T, site platform.Site, opts ...Option) (*platform.Host, *Rerouter) {
	t.Helper()
	if site.BaseURL == "" {
		site.BaseURL = testBase
	}
	host := platform.NewHost(site, rewrite.NewTable(nil))
	r := New(host, opts...)
	r.Register()
	require.NoError(t, host.Boot(context.Background()))
	return host, r
}

func TestInit_DefaultKeyword(t *testing.T) {
	_, r := newBooted(t, platform.Site{})
	assert.Equal(t, DefaultKeyword, r.Keyword())
	assert.Equal(t, "^admin-no-ajax/?$", r.Rule())
}

func TestInit_ConfiguredKeywordTrimmed(t *testing.T) {
	for _, configured := range []string{"fast-ajax", "/fast-ajax/", "//fast-ajax"} {
		_, r := newBooted(t, platform.Site{}, WithKeyword(configured))
		assert.Equal(t, "fast-ajax", r.Keyword(), configured)
	}

	_, r := newBooted(t, platform.Site{}, WithKeyword("/"))
	assert.Equal(t, DefaultKeyword, r.Keyword())
}

func TestInit_KeywordFilter(t *testing.T) {
	host := platform.NewHost(platform.Site{BaseURL: testBase}, rewrite.NewTable(nil))
	r := New(host, WithKeyword("configured"))
	r.KeywordFilter.Add(hooks.DefaultPriority, func(kw string) string {
		assert.Equal(t, "configured", kw)
		return "filtered"
	})
	r.Register()
	require.NoError(t, host.Boot(context.Background()))

	assert.Equal(t, "filtered", r.Keyword())
	assert.Equal(t, testBase+"/filtered/", host.AjaxURL())
}

func TestInit_RunsOnce(t *testing.T) {
	host, r := newBooted(t, platform.Site{})
	r.Init()
	r.Init()

	assert.Equal(t, 1, host.TemplateRedirect.Len())
	assert.Equal(t, 1, host.AdminURLFilter.Len())
}

func TestInit_AdminContextSkipsInterception(t *testing.T) {
	host, r := newBooted(t, platform.Site{Admin: true})

	assert.Equal(t, 0, host.TemplateRedirect.Len())
	assert.Equal(t, testBase+"/wp-admin/admin-ajax.php", host.AjaxURL())

	// The rule is still registered so the public side keeps working.
	assert.Equal(t, r.Rule(), host.Rewrite().Rules()[0].Pattern)
}

func TestRewriteURL(t *testing.T) {
	host, r := newBooted(t, platform.Site{})

	assert.Equal(t, testBase+"/admin-no-ajax/", r.RewriteURL(testBase+"/wp-admin/admin-ajax.php", "admin-ajax.php", 1))
	assert.Equal(t, testBase+"/admin-no-ajax/", r.RewriteURL("admin-ajax.php?foo=bar", "", 1))
	assert.Equal(t, testBase+"/wp-admin/options.php", r.RewriteURL(testBase+"/wp-admin/options.php", "options.php", 1))

	assert.Equal(t, testBase+"/admin-no-ajax/", host.AjaxURL())
	assert.Equal(t, testBase+"/wp-admin/post.php", host.AdminURL("post.php"))
}

// Property: a URL containing the marker always becomes <base>/<keyword>/;
// any other URL comes back unchanged.
func TestRewriteURL_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		kw := rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(rt, "keyword")
		host := platform.NewHost(platform.Site{BaseURL: testBase}, rewrite.NewTable(nil))
		r := New(host, WithKeyword(kw))
		r.Init()

		prefix := rapid.StringMatching(`[a-z:/.]{0,20}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z.?=&]{0,20}`).Draw(rt, "suffix")

		withMarker := prefix + AjaxMarker + suffix
		if got := r.RewriteURL(withMarker, "", 1); got != testBase+"/"+kw+"/" {
			rt.Fatalf("RewriteURL(%q) = %q", withMarker, got)
		}

		plain := rapid.StringMatching(`[a-z:/.?=&]{0,40}`).Filter(func(s string) bool {
			return !strings.Contains(s, AjaxMarker)
		}).Draw(rt, "plain")
		if got := r.RewriteURL(plain, "", 1); got != plain {
			rt.Fatalf("RewriteURL(%q) = %q, want identity", plain, got)
		}
	})
}

func TestRule_EscapesKeyword(t *testing.T) {
	_, r := newBooted(t, platform.Site{}, WithKeyword("api.v1"))
	assert.Equal(t, `^api\.v1/?$`, r.Rule())
}

func TestRuleFilter(t *testing.T) {
	host := platform.NewHost(platform.Site{BaseURL: testBase}, rewrite.NewTable(nil))
	r := New(host)
	r.RuleFilter.Add(hooks.DefaultPriority, func(rule string) string {
		return "^(?:ajax|" + strings.TrimPrefix(rule, "^") + ")"
	})
	r.Register()
	require.NoError(t, host.Boot(context.Background()))

	for _, path := range []string{"/ajax", "/admin-no-ajax/"} {
		vars, ok := host.Rewrite().Match(path)
		require.True(t, ok, path)
		assert.Equal(t, "true", vars.Get(QueryVar))
	}
}

func TestRewrite_MatchesKeywordPaths(t *testing.T) {
	host, _ := newBooted(t, platform.Site{})
	table := host.Rewrite()

	for _, path := range []string{"/admin-no-ajax", "/admin-no-ajax/"} {
		vars, ok := table.Match(path)
		require.True(t, ok, path)
		assert.Equal(t, "true", vars.Get(QueryVar))
	}
	_, ok := table.Match("/admin-no-ajax/x")
	assert.False(t, ok)
}

func TestActivate_FlushesAndPersists(t *testing.T) {
	p := &recordingPersister{}
	table := rewrite.NewTable(p)
	host := platform.NewHost(platform.Site{BaseURL: testBase}, table)
	r := New(host, WithKeyword("fast-ajax"))
	r.Init()

	// Nothing is active before activation.
	_, ok := table.Match("/fast-ajax/")
	require.False(t, ok)

	require.NoError(t, host.Activate(context.Background()))

	_, ok = table.Match("/fast-ajax/")
	require.True(t, ok)
	require.Len(t, p.saves, 1)
	assert.Equal(t, []rewrite.Rule{{Pattern: "^fast-ajax/?$", Query: RuleQuery}}, p.saves[0])
}
