// Package ptylaunch starts a child process attached to a freshly allocated
// pseudo-terminal, the Go-native replacement for the original daemon's
// forkpty(3) plus iTermTTYStateInitialize. Unlike pty.Start, it opens the
// master/slave pair itself so it can size the terminal and set the IUTF8
// termios flag before the child ever execs.
package ptylaunch

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// Result is what a successful Launch hands back to the caller: the PTY
// master (kept open and read/written by the daemon for as long as the
// child lives) and the process handle used to learn its pid and reap it.
type Result struct {
	Master *os.File
	Cmd    *exec.Cmd
}

// Spec describes everything a launch needs, mirroring LaunchRequest's
// fields except UniqueID.
type Spec struct {
	Path   string
	Argv   []string
	Envp   []string
	Pwd    string
	Width  int
	Height int
	IsUTF8 bool
}

// Launch allocates a PTY, sets its size and UTF-8 mode, and starts Path as
// a session leader attached to the slave end. On success the slave fd is
// already closed in this process; only the master remains open. On
// failure, errno carries the underlying syscall.Errno when starting the
// child failed with one (EIO when the start error carries none), or 0 if
// the failure happened before the child was started.
func Launch(spec Spec) (res Result, errno int, err error) {
	master, slave, err := pty.Open()
	if err != nil {
		return Result{}, 0, fmt.Errorf("open pty: %w", err)
	}
	defer slave.Close()

	if err := pty.Setsize(master, &pty.Winsize{
		Rows: uint16(spec.Height),
		Cols: uint16(spec.Width),
	}); err != nil {
		master.Close()
		return Result{}, 0, fmt.Errorf("set pty size: %w", err)
	}

	if err := setUTF8Mode(slave, spec.IsUTF8); err != nil {
		master.Close()
		return Result{}, 0, fmt.Errorf("set utf8 termios mode: %w", err)
	}

	argv := spec.Argv
	if len(argv) == 0 {
		argv = []string{spec.Path}
	}

	cmd := &exec.Cmd{
		Path:   spec.Path,
		Args:   argv,
		Env:    spec.Envp,
		Dir:    spec.Pwd,
		Stdin:  slave,
		Stdout: slave,
		Stderr: slave,
		SysProcAttr: &syscall.SysProcAttr{
			Setsid:  true,
			Setctty: true,
		},
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return Result{}, int(errno), err
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			if errors.As(pathErr.Err, &errno) {
				return Result{}, int(errno), err
			}
		}
		return Result{}, int(syscall.EIO), err
	}

	return Result{Master: master, Cmd: cmd}, 0, nil
}

// Resize applies a new terminal size to an already-running child's PTY.
func Resize(master *os.File, width, height int) error {
	return pty.Setsize(master, &pty.Winsize{
		Rows: uint16(height),
		Cols: uint16(width),
	})
}
