package cmd

import (
	"sync"

	"golang.org/x/sys/unix"

	"go.olrik.dev/ptyserver/internal/client"
	"go.olrik.dev/ptyserver/internal/protocol"
)

// discoveredChild is what the CLI layer keeps per child reported during
// a handshake's ReportChild replay.
type discoveredChild struct {
	Spec       protocol.LaunchRequest
	MasterFD   int
	Terminated bool
}

// registryDelegate implements client.Delegate for the CLI commands:
// list and attach both need to know what the daemon already has before
// they can act on a specific pid, and every command wants a desktop
// notification when a child it knows about exits.
type registryDelegate struct {
	mu       sync.Mutex
	children map[int32]*discoveredChild
}

func newRegistryDelegate() *registryDelegate {
	return &registryDelegate{children: make(map[int32]*discoveredChild)}
}

func (r *registryDelegate) ChildDiscovered(pid int32, spec protocol.LaunchRequest, terminated bool, masterFD int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[pid] = &discoveredChild{Spec: spec, MasterFD: masterFD, Terminated: terminated}
}

func (r *registryDelegate) ChildTerminated(pid int32) {
	r.mu.Lock()
	if c, ok := r.children[pid]; ok {
		c.Terminated = true
	}
	r.mu.Unlock()
	client.NotifyChildTerminated(pid, 0)
}

func (r *registryDelegate) lookup(pid int32) (*discoveredChild, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[pid]
	return c, ok
}

// snapshot returns every known child, releasing callers from holding the
// registry's lock while they print or inspect entries.
func (r *registryDelegate) snapshot() map[int32]*discoveredChild {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int32]*discoveredChild, len(r.children))
	for pid, c := range r.children {
		out[pid] = c
	}
	return out
}

// closeUnused closes every discovered master fd except keep, so commands
// that only care about one pid don't leak the rest.
func (r *registryDelegate) closeUnused(keep int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pid, c := range r.children {
		if pid == keep || c.MasterFD < 0 {
			continue
		}
		unix.Close(c.MasterFD)
		c.MasterFD = -1
	}
}
