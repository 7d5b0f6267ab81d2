package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/client"
	"go.olrik.dev/ptyserver/internal/core"
	"go.olrik.dev/ptyserver/internal/protocol"
)

// NewLaunchCommand starts a new child on the daemon (spawning one first
// if none is listening) and attaches to it interactively.
func NewLaunchCommand() *cobra.Command {
	var pwd string
	var width, height int

	launchCmd := &cobra.Command{
		Use:   "launch [-- command [args...]]",
		Short: "Launch a new child process behind the daemon and attach to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := args
			if len(argv) == 0 {
				argv = core.Config.DefaultArgv
			}
			if pwd == "" {
				if wd, err := os.Getwd(); err == nil {
					pwd = wd
				}
			}
			if width == 0 || height == 0 {
				if client.IsTerminal(int(os.Stdin.Fd())) {
					if w, h, err := client.TerminalSize(int(os.Stdin.Fd())); err == nil {
						if width == 0 {
							width = w
						}
						if height == 0 {
							height = h
						}
					}
				}
				if width == 0 {
					width = core.Config.DefaultWidth
				}
				if height == 0 {
					height = core.Config.DefaultHeight
				}
			}

			daemonPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating daemon binary: %w", err)
			}

			delegate := newRegistryDelegate()
			c, err := client.AttachOrLaunch(resolveSocketPath(), daemonPath, delegate)
			if err != nil {
				return fmt.Errorf("connecting to daemon: %w", err)
			}
			defer c.Close()

			handle, err := c.Launch(protocol.LaunchRequest{
				Path:   argv[0],
				Argv:   argv,
				Envp:   os.Environ(),
				Width:  int32(width),
				Height: int32(height),
				IsUTF8: 1,
				Pwd:    pwd,
			})
			if err != nil {
				return fmt.Errorf("launch failed: %w", err)
			}
			delegate.closeUnused(handle.Pid)

			return runInteractiveSession(c, handle)
		},
	}

	launchCmd.Flags().StringVar(&pwd, "pwd", "", "working directory for the child (default: current directory)")
	launchCmd.Flags().IntVar(&width, "width", 0, "terminal width (default: auto-detected, falling back to config)")
	launchCmd.Flags().IntVar(&height, "height", 0, "terminal height (default: auto-detected, falling back to config)")

	return launchCmd
}
