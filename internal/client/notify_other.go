//go:build !linux

package client

// NotifyChildTerminated is a no-op outside Linux: the session-bus
// desktop notification is a Linux-specific nicety, never load-bearing.
func NotifyChildTerminated(pid int32, status int32) {}
