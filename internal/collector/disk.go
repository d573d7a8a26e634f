// Win32_LogicalDisk class: one instance per local mounted volume.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// pseudoFSTypes contains filesystem types that should be excluded.
// These are virtual/system filesystems and network/remote filesystems that don't
// represent local storage devices.
var pseudoFSTypes = map[string]bool{
	"devfs": true, "autofs": true, "tmpfs": true, "sysfs": true,
	"proc": true, "devtmpfs": true, "cgroup": true, "cgroup2": true,
	"overlay": true, "squashfs": true, "nsfs": true, "debugfs": true,
	"tracefs": true, "securityfs": true, "mqueue": true, "bpf": true,
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "9p": true,
}

// isSystemMount returns true for macOS system volumes that shouldn't be listed.
func isSystemMount(mount string) bool {
	return strings.HasPrefix(mount, "/System/Volumes/") ||
		strings.HasPrefix(mount, "/private/var/vm")
}

// LogicalDiskCollector serves Win32_LogicalDisk.
type LogicalDiskCollector struct {
	logger *zap.Logger
}

// NewLogicalDiskCollector creates a new logical disk class.
func NewLogicalDiskCollector(logger *zap.Logger) *LogicalDiskCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogicalDiskCollector{logger: logger}
}

func (c *LogicalDiskCollector) Namespace() string { return NamespaceCIMV2 }

func (c *LogicalDiskCollector) Name() string { return "Win32_LogicalDisk" }

// Collect gathers usage for all mounted partitions.
// Inaccessible partitions are silently skipped.
func (c *LogicalDiskCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var instances []wmi.Instance
	for _, p := range partitions {
		if pseudoFSTypes[p.Fstype] || isSystemMount(p.Mountpoint) {
			c.logger.Debug("Skipping pseudo/network filesystem",
				zap.String("mount", p.Mountpoint),
				zap.String("fstype", p.Fstype))
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		instances = append(instances, wmi.Instance{
			prop("DeviceID", p.Device),
			prop("FileSystem", p.Fstype),
			prop("FreeSpace", u64(usage.Free)),
			prop("Size", u64(usage.Total)),
			prop("VolumeName", p.Mountpoint),
		})
	}
	return instances, nil
}

func (c *LogicalDiskCollector) IsAvailable() bool { return true }
