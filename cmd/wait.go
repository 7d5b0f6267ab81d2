package cmd

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/client"
)

// NewWaitCommand asks the daemon once for a child's exit status; it does
// not block, so a still-running child yields an error. On success it
// prints the raw wait status and exits with the child's exit code (255
// when the child did not exit normally).
func NewWaitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <pid>",
		Short: "Wait for a terminated child and reap its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid64, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}

			delegate := newRegistryDelegate()
			c, err := client.Attach(resolveSocketPath(), delegate)
			if err != nil {
				return fmt.Errorf("no daemon to attach to: %w", err)
			}
			defer c.Close()
			delegate.closeUnused(-1)

			status, err := c.Wait(int32(pid64))
			if err != nil {
				return err
			}
			fmt.Printf("pid %d exited with status %d\n", pid64, status)
			os.Exit(syscall.WaitStatus(status).ExitStatus())
			return nil
		},
	}
}
