package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/noajax/internal/actions"
	"github.com/zjrosen/noajax/internal/auth"
	"github.com/zjrosen/noajax/internal/config"
	"github.com/zjrosen/noajax/internal/frontend"
	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/metrics"
	"github.com/zjrosen/noajax/internal/noajax"
	"github.com/zjrosen/noajax/internal/platform"
	"github.com/zjrosen/noajax/internal/rewrite"
	"github.com/zjrosen/noajax/internal/rewrite/store"
	"github.com/zjrosen/noajax/theme"
)

// app is the wired process: one host, one rerouter, one store.
type app struct {
	cfg      config.Config
	store    *store.Store
	table    *rewrite.Table
	sessions *auth.Store
	metrics  *metrics.Metrics
	host     *platform.Host
	rerouter *noajax.Rerouter
}

func newApp(ctx context.Context, cfg config.Config, tracer trace.Tracer) (*app, error) {
	st, err := store.Open(ctx, cfg.DatabasePath(store.DefaultFilename))
	if err != nil {
		return nil, fmt.Errorf("opening rewrite store: %w", err)
	}

	sessions := auth.NewStore(cfg.Auth.Cookie, cfg.Auth.TTL)
	for user, token := range cfg.Auth.Tokens {
		sessions.Seed(token, user)
	}

	var themeFS fs.FS = theme.Root()
	if cfg.Site.ThemeDir != "" {
		themeFS = os.DirFS(cfg.Site.ThemeDir)
	}

	table := rewrite.NewTable(st)
	host := platform.NewHost(
		platform.Site{
			BaseURL:   cfg.Site.BaseURL,
			Charset:   cfg.Site.Charset,
			AdminPath: cfg.Site.AdminPath,
			Admin:     cfg.Site.Admin,
			BlogID:    cfg.Site.BlogID,
		},
		table,
		platform.WithAuthenticator(sessions),
		platform.WithRuleLoader(st),
		platform.WithFallback(frontend.NewSiteHandler(themeFS, cfg.Site.AdminPath)),
	)

	m := metrics.New()
	rerouter := noajax.New(host,
		noajax.WithKeyword(cfg.URL),
		noajax.WithTracer(tracer),
		noajax.WithMetrics(m),
	)
	rerouter.Register()
	actions.RegisterHeartbeat(rerouter, nil)
	actions.RegisterSession(rerouter, sessions, nil)

	return &app{
		cfg:      cfg,
		store:    st,
		table:    table,
		sessions: sessions,
		metrics:  m,
		host:     host,
		rerouter: rerouter,
	}, nil
}

// handler mounts the public routes. Everything not matched explicitly goes
// through the host pipeline.
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", frontend.HealthHandler(a.rerouter.Keyword, func() int { return len(a.table.Rules()) }))
	mux.Handle("GET /ajaxurl.js", frontend.AjaxURLScript(a.host.AjaxURL))
	mux.Handle("/", a.host)
	return mux
}

// rebuild re-reads the config file and rebuilds the rewrite table. The
// keyword is fixed for the life of the process, so a changed keyword is
// only reported.
func (a *app) rebuild(file string) func(context.Context) error {
	return func(ctx context.Context) error {
		next, err := config.Load(file)
		if err != nil {
			return err
		}
		if next.URL != a.cfg.URL {
			log.Warn(log.CatConfig, "keyword changed; restart to apply", "current", a.rerouter.Keyword(), "configured", next.URL)
		}

		err = a.host.RebuildRewriteRules(ctx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		a.metrics.RewriteFlushes.WithLabelValues(result).Inc()
		return err
	}
}

func (a *app) Close() error {
	return a.store.Close()
}
