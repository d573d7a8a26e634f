package provider

import (
	"strings"

	"github.com/Guliveer/vitalis/sectionagent/internal/collector"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
)

// Separators of the catalog sections.
const (
	WMISeparator rune = '|'
	OHMSeparator rune = ','
)

// Descriptor identifies one queryable unit. A composite descriptor has no
// query identity of its own; only its SubObjects are queried.
type Descriptor struct {
	Name      string
	Namespace string
	Object    string
	Columns   []string
	// StatusColumn appends the WMIStatus column to every produced table.
	StatusColumn bool
	SubObjects   []Descriptor
}

// Composite reports whether d aggregates sub-objects.
func (d Descriptor) Composite() bool { return len(d.SubObjects) > 0 }

func msexch(name, class string) Descriptor {
	return Descriptor{
		Name:         name,
		Namespace:    collector.NamespaceCIMV2,
		Object:       "Win32_PerfRawData_" + class + "_" + class,
		StatusColumn: true,
	}
}

var catalog = map[string]Descriptor{
	section.OHM: {
		Name:         section.OHM,
		Namespace:    collector.NamespaceOHM,
		Object:       "Sensor",
		Columns:      []string{"Index", "Name", "Parent", "SensorType", "Value"},
		StatusColumn: true,
	},
	section.DotNetCLR: {
		Name:      section.DotNetCLR,
		Namespace: collector.NamespaceCIMV2,
		Object:    "Win32_PerfRawData_NETFramework_NETCLRMemory",
	},
	section.WMIWebServices: {
		Name:      section.WMIWebServices,
		Namespace: collector.NamespaceCIMV2,
		Object:    "Win32_PerfRawData_W3SVC_WebService",
	},
	section.WMICPULoad: {
		Name: section.WMICPULoad,
		SubObjects: []Descriptor{
			{
				Name:      section.SubSystemPerf,
				Namespace: collector.NamespaceCIMV2,
				Object:    "Win32_PerfRawData_PerfOS_System",
			},
			{
				Name:      section.SubComputerSystem,
				Namespace: collector.NamespaceCIMV2,
				Object:    "Win32_ComputerSystem",
			},
		},
	},
	section.MSExch: {
		Name: section.MSExch,
		SubObjects: []Descriptor{
			msexch("msexch_activesync", "MSExchangeActiveSync"),
			msexch("msexch_availability", "MSExchangeAvailabilityService"),
			msexch("msexch_owa", "MSExchangeOWA"),
			msexch("msexch_autodiscovery", "MSExchangeAutodiscover"),
			msexch("msexch_isclienttype", "MSExchangeISClientType"),
			msexch("msexch_isstore", "MSExchangeISStore"),
			msexch("msexch_rpcclientaccess", "MSExchangeRpcClientAccess"),
		},
	},
	section.BadWMI: {
		Name:      section.BadWMI,
		Namespace: `Root\BadWmiPath`,
		Object:    "BadSensor",
	},
}

// Lookup returns the catalog descriptor of a WMI section. Unknown names get
// a descriptor that carries only the name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := catalog[strings.ToLower(name)]
	if !ok {
		return Descriptor{Name: name}, false
	}
	return d, true
}

// WMISections lists the catalog WMI section names in a stable order.
func WMISections() []string {
	return []string{
		section.OHM,
		section.DotNetCLR,
		section.WMIWebServices,
		section.WMICPULoad,
		section.MSExch,
		section.BadWMI,
	}
}

// DefaultSeparator returns the separator a catalog section is emitted with.
func DefaultSeparator(name string) rune {
	if strings.EqualFold(name, section.OHM) {
		return OHMSeparator
	}
	return WMISeparator
}
