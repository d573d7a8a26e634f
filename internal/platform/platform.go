// Package platform provides an OS abstraction layer for the facts the
// section engines need and gopsutil does not cover.
// Each supported OS implements the Platform interface.
package platform

// Platform provides OS-specific functionality beyond what gopsutil offers.
type Platform interface {
	// Name returns the platform name (windows, linux, darwin).
	Name() string

	// IsElevated reports whether the agent runs with administrative rights.
	IsElevated() bool

	// HelperExecutable turns a helper base name into the file name the OS
	// expects, e.g. "ohmcli" -> "ohmcli.exe" on Windows.
	HelperExecutable(name string) string
}
