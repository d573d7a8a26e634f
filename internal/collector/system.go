// Host-wide classes: Win32_ComputerSystem, Win32_OperatingSystem and the raw
// Win32_PerfRawData_PerfOS_System counters. Each enumerates exactly one
// instance. Uses gopsutil host, cpu, mem and load.
package collector

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// ComputerSystemCollector serves Win32_ComputerSystem.
type ComputerSystemCollector struct{}

// NewComputerSystemCollector creates a new computer system class.
func NewComputerSystemCollector() *ComputerSystemCollector {
	return &ComputerSystemCollector{}
}

func (c *ComputerSystemCollector) Namespace() string { return NamespaceCIMV2 }

func (c *ComputerSystemCollector) Name() string { return "Win32_ComputerSystem" }

func (c *ComputerSystemCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		physical = logical
	}

	model := info.VirtualizationSystem
	if model == "" {
		model = info.Platform
	}

	return []wmi.Instance{{
		prop("Caption", info.Hostname),
		prop("Model", model),
		prop("Name", info.Hostname),
		prop("NumberOfLogicalProcessors", i64(int64(logical))),
		prop("NumberOfProcessors", i64(int64(physical))),
		prop("SystemType", info.KernelArch),
		prop("TotalPhysicalMemory", u64(vm.Total)),
	}}, nil
}

func (c *ComputerSystemCollector) IsAvailable() bool { return true }

// OperatingSystemCollector serves Win32_OperatingSystem.
type OperatingSystemCollector struct{}

// NewOperatingSystemCollector creates a new operating system class.
func NewOperatingSystemCollector() *OperatingSystemCollector {
	return &OperatingSystemCollector{}
}

func (c *OperatingSystemCollector) Namespace() string { return NamespaceCIMV2 }

func (c *OperatingSystemCollector) Name() string { return "Win32_OperatingSystem" }

func (c *OperatingSystemCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	caption := info.Platform
	if caption == "" {
		caption = info.OS
	}

	return []wmi.Instance{{
		prop("Caption", caption),
		prop("CSName", info.Hostname),
		prop("FreePhysicalMemory", u64(vm.Available/1024)),
		prop("LastBootUpTime", cimDateTime(time.Unix(int64(info.BootTime), 0))),
		prop("LocalDateTime", cimDateTime(time.Now())),
		prop("NumberOfProcesses", u64(info.Procs)),
		prop("OSArchitecture", runtime.GOARCH),
		prop("TotalVisibleMemorySize", u64(vm.Total/1024)),
		prop("Version", info.PlatformVersion),
		prop("KernelVersion", info.KernelVersion),
	}}, nil
}

func (c *OperatingSystemCollector) IsAvailable() bool { return true }

// PerfSystemCollector serves Win32_PerfRawData_PerfOS_System, the source of
// the system_perf sub-section.
type PerfSystemCollector struct {
	now func() time.Time
}

// NewPerfSystemCollector creates a new raw system performance class.
func NewPerfSystemCollector() *PerfSystemCollector {
	return &PerfSystemCollector{now: time.Now}
}

func (c *PerfSystemCollector) Namespace() string { return NamespaceCIMV2 }

func (c *PerfSystemCollector) Name() string { return "Win32_PerfRawData_PerfOS_System" }

func (c *PerfSystemCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	misc, err := load.MiscWithContext(ctx)
	if err != nil {
		return nil, err
	}
	boot, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()

	return []wmi.Instance{{
		prop("ContextSwitchesPersec", i64(int64(misc.Ctxt))),
		prop("Frequency_Object", i64(ticksPerSecond)),
		prop("Frequency_PerfTime", i64(ticksPerSecond)),
		prop("Frequency_Sys100NS", i64(ticksPerSecond)),
		prop("Name", ""),
		prop("ProcessorQueueLength", i64(int64(misc.ProcsRunning))),
		prop("Processes", i64(int64(misc.ProcsTotal))),
		prop("SystemUpTime", sys100ns(time.Unix(int64(boot), 0))),
		prop("Timestamp_Object", sys100ns(now)),
		prop("Timestamp_PerfTime", sys100ns(now)),
		prop("Timestamp_Sys100NS", sys100ns(now)),
	}}, nil
}

func (c *PerfSystemCollector) IsAvailable() bool { return true }
