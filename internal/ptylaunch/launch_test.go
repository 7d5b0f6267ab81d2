package ptylaunch

import (
	"bufio"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
)

func TestLaunchRunsCommandAttachedToPTY(t *testing.T) {
	res, errno, err := Launch(Spec{
		Path:   "/bin/echo",
		Argv:   []string{"echo", "hello-from-pty"},
		Envp:   []string{"PATH=/usr/bin:/bin"},
		Pwd:    "/",
		Width:  80,
		Height: 24,
		IsUTF8: true,
	})
	if err != nil {
		t.Fatalf("Launch: %v (errno=%d)", err, errno)
	}
	defer res.Master.Close()

	res.Master.SetReadDeadline(time.Now().Add(5 * time.Second))
	reader := bufio.NewReader(res.Master)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading pty output: %v", err)
	}
	want := "hello-from-pty\r\n"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}

	if err := res.Cmd.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestLaunchNonexistentPathReturnsErrno(t *testing.T) {
	_, errno, err := Launch(Spec{
		Path:   "/no/such/binary-ptyserver-test",
		Argv:   []string{"nope"},
		Pwd:    "/",
		Width:  80,
		Height: 24,
	})
	if err == nil {
		t.Fatal("expected an error launching a nonexistent binary")
	}
	if errno == 0 {
		t.Fatal("expected a nonzero errno for a failed exec")
	}
}

func TestResizeAppliesNewWinsize(t *testing.T) {
	res, _, err := Launch(Spec{
		Path:   "/bin/cat",
		Argv:   []string{"cat"},
		Pwd:    "/",
		Width:  80,
		Height: 24,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer res.Master.Close()
	defer res.Cmd.Process.Kill()

	if err := Resize(res.Master, 120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	rows, cols, err := pty.Getsize(res.Master)
	if err != nil {
		t.Fatalf("Getsize: %v", err)
	}
	if rows != 40 || cols != 120 {
		t.Fatalf("size = %dx%d, want 120x40", cols, rows)
	}
}

func TestMain(m *testing.M) {
	if _, err := os.Stat("/bin/echo"); err != nil {
		os.Exit(0)
	}
	os.Exit(m.Run())
}
