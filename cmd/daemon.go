package cmd

import (
	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/daemon"
)

// NewDaemonCommand returns the hidden command the client forks itself
// into: `ptyserver daemon <socket-path>` expects fd 0/1/2 already wired
// up by the launching client (see internal/client.Launch) and never
// runs interactively.
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "daemon <socket-path>",
		Short:  "Run the PTY multiplexing server (internal use only)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.SetupLogging(); err != nil {
				return err
			}
			srv, initial, err := daemon.Bootstrap(args[0])
			if err != nil {
				return err
			}
			return srv.Run(initial)
		},
	}
}
