// Package collector serves WMI-style object classes from gopsutil so the query
// engine has a local instrumentation backend on every platform.
package collector

import (
	"context"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// Namespaces served by the local backend.
const (
	NamespaceCIMV2 = `Root\Cimv2`
	NamespaceOHM   = `Root\OpenHardwareMonitor`
)

// Collector is one enumerable object class.
type Collector interface {
	// Namespace returns the namespace the class lives in.
	Namespace() string

	// Name returns the class name, e.g. "Win32_Process".
	Name() string

	// Collect enumerates all instances of the class. Property order within
	// an instance is the column order of the rendered table.
	Collect(ctx context.Context) ([]wmi.Instance, error)

	// IsAvailable checks if this class can be served on the current platform.
	// Classes that return false will not be registered.
	IsAvailable() bool
}
