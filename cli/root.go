// Package cli implements the stackhut-runner command line.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	configPath string
)

// exitCodeError carries a process exit code through cobra
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return "task exited with a non-zero status"
}

var rootCmd = &cobra.Command{
	Use:   "stackhut-runner",
	Short: "Per-task runtime for StackHut services",
	Long: `stackhut-runner fetches a task's JSON-RPC input, dispatches each call to an
in-process handler or to the service's foreign-language worker, and persists
the output and the execution log to local disk or S3.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}

// Execute runs the root command and returns the process exit code.
func Execute(version, commit, date string) int {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	rootCmd.PrintErrln("Error:", err)
	return 1
}
