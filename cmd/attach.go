package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/client"
)

// NewAttachCommand reattaches to a child the daemon already owns and
// drives its PTY interactively until the child exits or the user
// detaches.
func NewAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running child's terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid64, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}
			pid := int32(pid64)

			delegate := newRegistryDelegate()
			c, err := client.Attach(resolveSocketPath(), delegate)
			if err != nil {
				return fmt.Errorf("no daemon to attach to: %w", err)
			}
			defer c.Close()

			found, ok := delegate.lookup(pid)
			delegate.closeUnused(pid)
			if !ok {
				return fmt.Errorf("no such child: pid %d", pid)
			}
			if found.Terminated {
				unixCloseQuiet(found.MasterFD)
				return fmt.Errorf("child %d has already terminated; run 'ptyserver wait %d'", pid, pid)
			}

			return runInteractiveSession(c, client.ChildHandle{Pid: pid, MasterFD: found.MasterFD})
		},
	}
}

// runInteractiveSession copies bytes between the calling terminal and a
// child's PTY master until the child exits (master read returns EOF, or
// EIO on Linux) or the process receives SIGQUIT, which detaches. Ctrl-\
// raises SIGQUIT only while stdin is not in raw mode; in a raw session
// that key reaches the child as an ordinary byte.
func runInteractiveSession(c *client.Client, handle client.ChildHandle) error {
	master := os.NewFile(uintptr(handle.MasterFD), fmt.Sprintf("pty-master-%d", handle.Pid))
	defer master.Close()

	var raw *client.RawSession
	if client.IsTerminal(int(os.Stdin.Fd())) {
		var err error
		raw, err = client.StartRawSession(int(os.Stdin.Fd()))
		if err != nil {
			slog.Debug("could not enter raw mode", "error", err)
		} else {
			defer raw.Restore()
		}
	}

	detach := make(chan os.Signal, 1)
	signal.Notify(detach, syscall.SIGQUIT)
	defer signal.Stop(detach)

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(master, os.Stdin)
		done <- err
	}()

	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, master)
		copyErr <- err
	}()

	select {
	case <-detach:
		fmt.Fprintln(os.Stderr, "\r\ndetached")
		return nil
	case err := <-copyErr:
		if err != nil && err != io.EOF && !errors.Is(err, syscall.EIO) {
			return err
		}
		fmt.Fprintf(os.Stderr, "\r\nchild %d exited\n", handle.Pid)
		return nil
	case err := <-done:
		return err
	}
}

func unixCloseQuiet(fd int) {
	if fd >= 0 {
		os.NewFile(uintptr(fd), "").Close()
	}
}
