// Package cmd implements the nasctl command line: the chat assistant run
// directly against a share, without the HTTP server.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	verbose        bool
	commandTimeout time.Duration
)

// newExecutor is replaced in tests.
var newExecutor = func() remote.Executor {
	return remote.NewLocalExecutor(commandTimeout)
}

var rootCmd = &cobra.Command{
	Use:   "nasctl",
	Short: "Talk to a network share in plain English",
	Long: `nasctl classifies a plain-English request (list, count, search, create,
move, delete, media and date filters) and runs it against an SMB share.
Deletes only run when --confirm is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			logging.InitNop()
			return nil
		}
		return logging.Init(logging.Config{Level: "debug", Format: "console", OutputPath: "stderr"})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "nasctl %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log every share command to stderr")
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "command-timeout", 0, "limit for each share command (0 = none)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
