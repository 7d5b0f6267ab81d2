package daemon

import "log/slog"

// installParentDeathSignal wires the redundant, platform-specific
// parent-death layer (see parent_monitor_linux.go / _darwin.go / _other.go)
// on top of the death pipe that fd 2 already provides. A failure here is
// never fatal — the death pipe alone is sufficient per spec.md §6.
func installParentDeathSignal() {
	if err := setupParentDeathSignal(); err != nil {
		slog.Debug("parent death signal unavailable, relying on death pipe alone", "error", err)
	}
}
