package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/tracing"
	"github.com/zjrosen/noajax/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site and the public asynchronous endpoint",
	Long: `Serve the site. Requests to /<keyword>/ run the asynchronous dispatch
sequence; everything else is served from the theme.

When watch is enabled and a config file was loaded, edits to the file rebuild
the rewrite table without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loaded.Config
	tracer, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.ErrorErr(log.CatHTTP, "tracing shutdown failed", err)
		}
	}()

	a, err := bootApp(ctx, tracer)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if cfg.Watch && loaded.File != "" {
		w, err := watch.New(loaded.File, 0, a.rebuild(loaded.File))
		if err != nil {
			log.ErrorErr(log.CatWatch, "config watch disabled", err, "file", loaded.File)
		} else {
			go w.Run(ctx)
		}
	}

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
	if cfg.Metrics.Addr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           a.metrics.Handler(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info(log.CatHTTP, "listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
		}()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s (ajax: %s)\n", cfg.Server.Addr, a.host.AjaxURL())

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(sctx); err != nil {
			log.ErrorErr(log.CatHTTP, "shutdown failed", err, "addr", srv.Addr)
		}
	}
	return serveErr
}

// bootApp wires the app from the loaded config and runs the host's startup
// stages.
func bootApp(ctx context.Context, tracer trace.Tracer) (*app, error) {
	a, err := newApp(ctx, loaded.Config, tracer)
	if err != nil {
		return nil, err
	}
	if err := a.host.Boot(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}
