//go:build windows

package main

import (
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// newConnector returns the COM-backed WMI connector.
func newConnector(logger *zap.Logger) wmi.Connector {
	return wmi.NewOLEConnector(logger)
}
