// Win32_Process class: one instance per running process.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set of
// display values used across all platforms.
var normalizedStatuses = map[string]string{
	"running":    "running",
	"sleep":      "sleeping",
	"sleeping":   "sleeping",
	"disk-sleep": "sleeping",
	"wait":       "sleeping",
	"lock":       "sleeping",
	"idle":       "idle",
	"parked":     "idle",
	"stop":       "stopped",
	"stopped":    "stopped",
	"suspended":  "stopped",
	"zombie":     "zombie",
	"dead":       "zombie",
}

// normalizeStatus maps a raw gopsutil status string to a consistent display
// value. Empty statuses (common on Windows) stay empty, as WMI reports them.
func normalizeStatus(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if mapped, ok := normalizedStatuses[key]; ok {
		return mapped
	}
	return key
}

// ProcessCollector serves Win32_Process.
type ProcessCollector struct{}

// NewProcessCollector creates a new process class.
func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{}
}

func (c *ProcessCollector) Namespace() string { return NamespaceCIMV2 }

func (c *ProcessCollector) Name() string { return "Win32_Process" }

// Collect lists all processes ordered by PID. Individual process errors leave
// the affected fields empty instead of failing the whole enumeration.
func (c *ProcessCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })

	instances := make([]wmi.Instance, 0, len(procs))
	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		ppid, _ := p.PpidWithContext(ctx)
		threads, _ := p.NumThreadsWithContext(ctx)
		status, _ := p.StatusWithContext(ctx)

		created := ""
		if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
			created = cimDateTime(time.UnixMilli(ms))
		}

		var kernel, user string
		if times, err := p.TimesWithContext(ctx); err == nil {
			kernel = i64(int64(times.System * ticksPerSecond))
			user = i64(int64(times.User * ticksPerSecond))
		}

		var rss, vms string
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			rss = u64(mi.RSS)
			vms = u64(mi.VMS)
		}

		rawStatus := ""
		if len(status) > 0 {
			rawStatus = status[0]
		}

		// Caption and CommandLine lead, the rest follows alphabetically.
		instances = append(instances, wmi.Instance{
			prop("Caption", name),
			prop("CommandLine", cmdline),
			prop("CreationDate", created),
			prop("ExecutablePath", exe),
			prop("Handle", i64(int64(p.Pid))),
			prop("KernelModeTime", kernel),
			prop("Name", name),
			prop("ParentProcessId", i64(int64(ppid))),
			prop("ProcessId", i64(int64(p.Pid))),
			prop("Status", normalizeStatus(rawStatus)),
			prop("ThreadCount", i64(int64(threads))),
			prop("UserModeTime", user),
			prop("VirtualSize", vms),
			prop("WorkingSetSize", rss),
		})
	}
	return instances, nil
}

// IsAvailable returns true: process listing is available on all platforms.
func (c *ProcessCollector) IsAvailable() bool { return true }
