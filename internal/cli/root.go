// Package cli implements dronectl, a developer tool that registers drones and
// replays media server webhooks against a running gateway.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	baseURL string
	timeout time.Duration
}

// NewRootCmd builds the dronectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "dronectl",
		Short:         "Drone stream gateway client: registration, simulated hooks, queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8000", "gateway base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")

	root.AddCommand(newRegisterCmd(opts))
	root.AddCommand(newHookCmd(opts))
	root.AddCommand(newStreamsCmd(opts))
	root.AddCommand(newRecordingsCmd(opts))
	return root
}

// Execute runs the root command and returns the error (for main to report).
func Execute() error {
	return NewRootCmd().Execute()
}
