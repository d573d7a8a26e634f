// Package section builds the text framing of agent output: section headers,
// sub-section headers and the catalog of well-known section names.
package section

import (
	"strconv"
	"strings"
)

// Well-known section names.
const (
	CheckMK        = "check_mk"
	SystemTime     = "systemtime"
	OHM            = "openhardwaremonitor"
	DotNetCLR      = "dotnet_clrmemory"
	WMIWebServices = "wmi_webservices"
	WMICPULoad     = "wmi_cpuload"
	MSExch         = "msexch"
	BadWMI         = "bad_wmi"
)

// Sub-section names used by composite sections.
const (
	SubSystemPerf     = "system_perf"
	SubComputerSystem = "computer_system"
)

// UseEmbeddedName asks an engine to put its own name into the header.
const UseEmbeddedName = "."

// NoSeparator produces a header without the sep(...) suffix.
const NoSeparator rune = 0

// MakeHeader returns "<<<name:sep(code)>>>\n", or "<<<name>>>\n" when sep is
// NoSeparator.
func MakeHeader(name string, sep rune) string {
	var b strings.Builder
	b.WriteString("<<<")
	b.WriteString(name)
	if sep != NoSeparator {
		b.WriteString(":sep(")
		b.WriteString(strconv.Itoa(int(sep)))
		b.WriteString(")")
	}
	b.WriteString(">>>\n")
	return b.String()
}

// MakeSubSectionHeader returns "[name]\n".
func MakeSubSectionHeader(name string) string {
	return "[" + name + "]\n"
}

// ResolveName picks the name to print in the header. An empty or embedded
// name request falls back to the engine's own name.
func ResolveName(requested, own string) string {
	if requested == "" || requested == UseEmbeddedName {
		return own
	}
	return requested
}
