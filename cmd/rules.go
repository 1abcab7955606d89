package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/noajax/internal/rewrite"
	"github.com/zjrosen/noajax/internal/rewrite/store"
)

var rulesFormat string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the persisted rewrite table",
	Long: `Print the rewrite rules stored in the rewrite database, in the order they
are matched, together with the time of the last flush.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().StringVarP(&rulesFormat, "format", "f", "text", "output format: text or yaml")
	rootCmd.AddCommand(rulesCmd)
}

// rulesDocument is the yaml output of the rules command.
type rulesDocument struct {
	FlushedAt *time.Time     `yaml:"flushed_at,omitempty"`
	Rules     []rewrite.Rule `yaml:"rules"`
}

func runRules(cmd *cobra.Command, args []string) error {
	if rulesFormat != "text" && rulesFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want text or yaml)", rulesFormat)
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, loaded.DatabasePath(store.DefaultFilename))
	if err != nil {
		return fmt.Errorf("opening rewrite store: %w", err)
	}
	defer func() { _ = st.Close() }()

	rules, err := st.Load(ctx)
	if err != nil {
		return err
	}
	flushedAt, err := st.FlushedAt(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rulesFormat == "yaml" {
		doc := rulesDocument{Rules: rules}
		if doc.Rules == nil {
			doc.Rules = []rewrite.Rule{}
		}
		if !flushedAt.IsZero() {
			doc.FlushedAt = &flushedAt
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		return enc.Close()
	}
	return printRules(out, rules, flushedAt)
}

func printRules(w io.Writer, rules []rewrite.Rule, flushedAt time.Time) error {
	if len(rules) == 0 {
		_, err := fmt.Fprintln(w, "No rewrite rules persisted. Run 'noajax activate'.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tQUERY")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\n", r.Pattern, r.Query)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !flushedAt.IsZero() {
		_, err := fmt.Fprintf(w, "\nFlushed %s\n", flushedAt.Format(time.RFC3339))
		return err
	}
	return nil
}
