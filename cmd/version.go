package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/client"
	"go.olrik.dev/ptyserver/internal/core"
	"go.olrik.dev/ptyserver/internal/protocol"
)

// NewVersionCommand reports the client's version and the protocol
// version it speaks, plus whether a daemon is reachable.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client version and daemon reachability",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "ptyserver %s (protocol v%d)\n", core.FormatVersion(core.Version), protocol.ProtocolVersion1)

			delegate := newRegistryDelegate()
			c, err := client.Attach(resolveSocketPath(), delegate)
			if err != nil {
				fmt.Fprintln(os.Stderr, "daemon: not running")
				return
			}
			defer c.Close()
			delegate.closeUnused(-1)
			fmt.Fprintf(os.Stderr, "daemon: running, %d known children\n", len(delegate.snapshot()))
		},
	}
}
