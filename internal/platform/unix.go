//go:build !windows

package platform

import (
	"os"
	"runtime"
)

// UnixPlatform is the Platform for Linux and macOS.
type UnixPlatform struct{}

// New creates the platform instance of the running OS.
func New() Platform {
	return &UnixPlatform{}
}

// Name returns the platform identifier.
func (p *UnixPlatform) Name() string { return runtime.GOOS }

// IsElevated reports whether the effective user is root.
func (p *UnixPlatform) IsElevated() bool {
	return os.Geteuid() == 0
}

// HelperExecutable returns name unchanged.
func (p *UnixPlatform) HelperExecutable(name string) string { return name }
