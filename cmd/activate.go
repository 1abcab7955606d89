package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Register the public rewrite rule and persist the rewrite table",
	Long: `Run the activation hooks: the rewrite rule for /<keyword>/ is registered
and the rewrite table is flushed to the rewrite database.

Run this after changing the keyword so that a running server picks up the
new rule on its next start.`,
	Args: cobra.NoArgs,
	RunE: runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootApp(ctx, noop.NewTracerProvider().Tracer(""))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.host.Activate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Activated /%s/ (%d rewrite rules)\n", a.rerouter.Keyword(), len(a.table.Rules()))
	return nil
}
