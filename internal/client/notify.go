//go:build linux

package client

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// NotifyChildTerminated best-effort posts a desktop notification over
// the session bus when a child exits. This is purely cosmetic — any
// failure (no session bus, no notification daemon, whatever) is
// swallowed, the same way the teacher's dbus signaling is never on a
// correctness-critical path.
func NotifyChildTerminated(pid int32, status int32) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		slog.Debug("desktop notification skipped: no session bus", "error", err)
		return
	}
	defer conn.Close()

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"ptyserver", uint32(0), "",
		"Child process exited",
		fmt.Sprintf("pid %d exited with status %d", pid, status),
		[]string{}, map[string]dbus.Variant{}, int32(5000),
	)
	if call.Err != nil {
		slog.Debug("desktop notification failed", "error", call.Err)
	}
}
