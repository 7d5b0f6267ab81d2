package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"go.olrik.dev/ptyserver/internal/client"
)

// NewListCommand reattaches just long enough to enumerate the daemon's
// children, enriching each with live CPU/RSS figures.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List children known to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			delegate := newRegistryDelegate()
			c, err := client.Attach(resolveSocketPath(), delegate)
			if err != nil {
				return fmt.Errorf("no daemon running")
			}
			defer c.Close()
			delegate.closeUnused(-1)

			children := delegate.snapshot()
			pids := make([]int32, 0, len(children))
			for pid := range children {
				pids = append(pids, pid)
			}
			sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tSTATE\tCPU%\tRSS\tCOMMAND")
			for _, pid := range pids {
				child := children[pid]
				state := "running"
				if child.Terminated {
					state = "terminated"
				}
				cpu, rss := "-", "-"
				if !child.Terminated {
					if proc, err := process.NewProcess(pid); err == nil {
						if pct, err := proc.CPUPercent(); err == nil {
							cpu = fmt.Sprintf("%.1f", pct)
						}
						if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
							rss = fmt.Sprintf("%dK", mem.RSS/1024)
						}
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", pid, state, cpu, rss, strings.Join(child.Spec.Argv, " "))
			}
			return w.Flush()
		},
	}
}
