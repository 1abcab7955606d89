// Package cmd implements the noajax command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/noajax/internal/config"
	"github.com/zjrosen/noajax/internal/log"
)

// version is set at build time with -ldflags "-X github.com/zjrosen/noajax/cmd.version=...".
var version = "dev"

var (
	cfgFile   string
	logFile   string
	debugFlag bool

	// loaded is populated by loadConfig before any subcommand runs.
	loaded     config.Loaded
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "noajax",
	Short: "Serve asynchronous requests from a public path",
	Long: `noajax reroutes the platform's asynchronous endpoint (admin-ajax) to a
public path, /<keyword>/, so that rules blocking the administrative back-end
do not also block asynchronous requests.

Configuration is read from noajax.yaml in the data directory or the working
directory, and from NOAJAX_* environment variables.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLog,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: noajax.yaml in the data directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	loaded, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	path := logFile
	if path == "" {
		path = loaded.Log.File
	}
	if path != "" {
		logCleanup, err = log.Init(path)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	} else {
		log.InitWriter(os.Stderr)
	}

	level := log.ParseLevel(loaded.Log.Level)
	if debugFlag || os.Getenv("NOAJAX_DEBUG") != "" {
		level = log.LevelDebug
	}
	log.SetMinLevel(level)
	return nil
}

func closeLog(cmd *cobra.Command, args []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}
