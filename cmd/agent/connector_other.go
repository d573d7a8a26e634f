//go:build !windows

package main

import (
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/collector"
	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// newConnector serves the WMI-style classes from local instrumentation.
func newConnector(logger *zap.Logger) wmi.Connector {
	return collector.NewDefaultRegistry(logger.Named("collector"))
}
