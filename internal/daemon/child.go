package daemon

import (
	"os"
	"sync"

	"go.olrik.dev/ptyserver/internal/protocol"
)

// Child is the server-side record for one launched process, keyed by pid
// in Table. It owns the PTY master fd until the record is removed.
//
// MasterFile, not a bare int, is what's retained here: pty.Open returns
// an *os.File, and Go finalizes unreachable *os.File values by closing
// their descriptor. Keeping only the raw int would leave that *os.File
// unreachable the moment handleLaunch returns, so the finalizer could
// close the fd out from under the table at an arbitrary later point —
// and once the kernel reuses that fd number, every subsequent close or
// SCM_RIGHTS send of that same int would be operating on whatever
// unrelated descriptor the OS has since assigned it. Code needing the
// number calls c.MasterFD(); nothing should retain just that int.
type Child struct {
	Pid        int32
	MasterFile *os.File
	Spec       protocol.LaunchRequest
	Terminated bool
	Status     int32
}

// MasterFD returns the child's PTY master file descriptor number.
func (c *Child) MasterFD() int {
	return int(c.MasterFile.Fd())
}

// Table is the daemon's child collection. It is mutated only from the
// server's single event-loop goroutine (see Server.Run); the mutex makes
// each method safe to call from another goroutine too, though nothing in
// this package does so.
type Table struct {
	mu       sync.Mutex
	children map[int32]*Child
	order    []int32 // insertion order, newest last
}

// NewTable returns an empty child table.
func NewTable() *Table {
	return &Table{children: make(map[int32]*Child)}
}

// Add inserts a new child record. Spec is deep-copied: string slices in
// LaunchRequest are never aliased with whatever buffer the caller decoded
// the request from, so the table's copy can outlive it safely.
func (t *Table) Add(pid int32, masterFile *os.File, spec protocol.LaunchRequest) *Child {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &Child{
		Pid:        pid,
		MasterFile: masterFile,
		Spec:       cloneLaunchRequest(spec),
	}
	t.children[pid] = c
	t.order = append(t.order, pid)
	return c
}

func cloneLaunchRequest(spec protocol.LaunchRequest) protocol.LaunchRequest {
	out := spec
	out.Argv = append([]string(nil), spec.Argv...)
	out.Envp = append([]string(nil), spec.Envp...)
	return out
}

// Get returns the child for pid, or nil if none exists.
func (t *Table) Get(pid int32) *Child {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.children[pid]
}

// MarkTerminated records a reaped exit status for pid. It returns false if
// pid is not in the table (the reaper raced with a removal, which cannot
// happen under the single-goroutine invariant, but is checked anyway).
func (t *Table) MarkTerminated(pid int32, status int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.children[pid]
	if !ok {
		return false
	}
	c.Terminated = true
	c.Status = status
	return true
}

// Remove deletes pid's record, returning it for the caller to close the
// master fd. Returns nil if pid is not present.
func (t *Table) Remove(pid int32) *Child {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.children[pid]
	if !ok {
		return nil
	}
	delete(t.children, pid)
	for i, p := range t.order {
		if p == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return c
}

// Len returns the number of live records in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// Snapshot returns every child in newest-first order, matching the
// original ReportChildren() iteration (numberOfChildren-1 down to 0).
func (t *Table) Snapshot() []*Child {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Child, len(t.order))
	for i, pid := range t.order {
		out[len(out)-1-i] = t.children[pid]
	}
	return out
}

// NotTerminated returns the pids of every child the reaper still needs to
// poll with waitpid.
func (t *Table) NotTerminated() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int32
	for _, pid := range t.order {
		if c := t.children[pid]; c != nil && !c.Terminated {
			out = append(out, pid)
		}
	}
	return out
}
