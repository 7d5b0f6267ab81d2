package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:   "ptyserver",
		Short: "Long-lived PTY multiplexing daemon and client",
		Long:  `ptyserver delegates fork/exec of interactive child processes to a background daemon so they survive client restarts.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = core.DefaultConfigPath()
			}
			cfg, err := core.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if verbose > 0 {
				cfg.Verbose = verbose
			}
			core.Config = cfg

			level := slog.LevelInfo
			if core.Config.Verbose > 0 {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: time.DateTime,
			})))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "config directory (default $HOME/.config/ptyserver)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&socketPathFlag, "socket", "", "control socket path (default <config-path>/daemon.sock)")

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewLaunchCommand(),
		NewWaitCommand(),
		NewAttachCommand(),
		NewListCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

// socketPathFlag is bound to --socket on the root command; resolveSocketPath
// falls back to core.GetSocketPath() when it's empty.
var socketPathFlag string

func resolveSocketPath() string {
	if socketPathFlag != "" {
		return socketPathFlag
	}
	return core.GetSocketPath()
}
