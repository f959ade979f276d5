// Package cmd holds the teimanager cobra command tree: a serve command
// (also the root's default action) and a version command, following the
// prismctl convention of one file per subcommand registering itself with
// rootCmd from init().
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "teimanager",
	Short: "Fleet manager for GPU-resident embedding worker subprocesses",
	Long: `teimanager launches, supervises, and multiplexes requests to a fleet of
text-embeddings-router worker processes, each bound to one model and one GPU.

Example:
  teimanager serve --config /etc/teimanager/config.yaml
`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the manager's YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "pretty", "log output format (pretty, json)")
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}
