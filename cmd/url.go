package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
)

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the URL clients use for asynchronous requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootApp(cmd.Context(), noop.NewTracerProvider().Tracer(""))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		fmt.Fprintln(cmd.OutOrStdout(), a.host.AjaxURL())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(urlCmd)
}
