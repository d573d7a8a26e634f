// Win32_PerfRawData_Tcpip_NetworkInterface class: raw per-NIC counters.
// Uses gopsutil for cross-platform network metrics. Values are cumulative;
// the monitoring server computes rates from consecutive samples.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// NetworkInterfaceCollector serves Win32_PerfRawData_Tcpip_NetworkInterface.
type NetworkInterfaceCollector struct{}

// NewNetworkInterfaceCollector creates a new network interface class.
func NewNetworkInterfaceCollector() *NetworkInterfaceCollector {
	return &NetworkInterfaceCollector{}
}

func (c *NetworkInterfaceCollector) Namespace() string { return NamespaceCIMV2 }

func (c *NetworkInterfaceCollector) Name() string {
	return "Win32_PerfRawData_Tcpip_NetworkInterface"
}

func (c *NetworkInterfaceCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	instances := make([]wmi.Instance, 0, len(counters))
	for _, n := range counters {
		instances = append(instances, wmi.Instance{
			prop("BytesReceivedPersec", u64(n.BytesRecv)),
			prop("BytesSentPersec", u64(n.BytesSent)),
			prop("BytesTotalPersec", u64(n.BytesRecv+n.BytesSent)),
			prop("Name", n.Name),
			prop("PacketsOutboundDiscarded", u64(n.Dropout)),
			prop("PacketsOutboundErrors", u64(n.Errout)),
			prop("PacketsReceivedDiscarded", u64(n.Dropin)),
			prop("PacketsReceivedErrors", u64(n.Errin)),
			prop("PacketsReceivedPersec", u64(n.PacketsRecv)),
			prop("PacketsSentPersec", u64(n.PacketsSent)),
		})
	}
	return instances, nil
}

func (c *NetworkInterfaceCollector) IsAvailable() bool { return true }
