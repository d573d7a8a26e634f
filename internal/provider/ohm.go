package provider

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/childproc"
	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
	"github.com/Guliveer/vitalis/sectionagent/internal/platform"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
)

// OHMHelperName is the base name of the OpenHardwareMonitor command line helper.
const OHMHelperName = "OpenHardwareMonitorCLI"

// Elevation is the part of platform.Platform the sensor engine needs.
type Elevation interface {
	IsElevated() bool
}

// OHM reads hardware sensors published by the OpenHardwareMonitor helper.
// The helper is started on demand and kept running until Close.
type OHM struct {
	wmi      *WMI
	sup      *childproc.Supervisor
	elevated Elevation
	logger   *zap.Logger

	body     string
	cachedAt time.Time
}

// NewOHM creates the sensor engine. The supervisor is owned by the engine
// from now on and stopped by Close.
func NewOHM(deps Deps, sup *childproc.Supervisor, elevated Elevation) *OHM {
	deps = deps.withDefaults()
	if elevated == nil {
		elevated = platform.New()
	}
	return &OHM{
		wmi:      NewWMI(section.OHM, OHMSeparator, deps),
		sup:      sup,
		elevated: elevated,
		logger:   deps.Logger.Named("ohm"),
	}
}

// UniqName returns the section name.
func (o *OHM) UniqName() string { return section.OHM }

// Policy exposes the scheduling state of the underlying query.
func (o *OHM) Policy() *WMI { return o.wmi }

// RegisterCommandLine forwards the caller metadata.
func (o *OHM) RegisterCommandLine(line string) { o.wmi.RegisterCommandLine(line) }

// IsAllowedByCurrentConfig adds the elevation requirement to the section
// allow list.
func (o *OHM) IsAllowedByCurrentConfig() bool {
	if !o.wmi.IsAllowedByCurrentConfig() {
		return false
	}
	if o.wmi.deps.Config.OHM.RequireElevation && !o.elevated.IsElevated() {
		o.logger.Debug("Sensor section requires elevation")
		return false
	}
	return true
}

// GenerateContent returns the sensor table. A table younger than
// ohm.cache_ttl is returned again unless noCache is set; the header always
// carries the requested name.
func (o *OHM) GenerateContent(ctx context.Context, sectionName string, noCache bool) string {
	if !o.IsAllowedByCurrentConfig() {
		metrics.IncSectionRun(section.OHM, metrics.OutcomeDenied)
		return ""
	}
	header := section.MakeHeader(section.ResolveName(sectionName, section.OHM), OHMSeparator)

	now := o.wmi.deps.Clock.Now()
	ttl := o.wmi.deps.Config.OHM.CacheTTL.Duration
	if !noCache && o.body != "" && now.Sub(o.cachedAt) < ttl {
		return header + o.body
	}

	if !o.ensureHelper(ctx) {
		o.wmi.DisableSectionTemporary()
		return ""
	}

	out := o.wmi.GenerateContent(ctx, section.UseEmbeddedName, true)
	if out == "" {
		return ""
	}
	o.body = strings.TrimPrefix(out, section.MakeHeader(section.OHM, OHMSeparator))
	o.cachedAt = now
	return header + o.body
}

// ensureHelper starts the helper unless it is already running. Stray
// helpers left behind by a previous agent are killed first. Without a
// configured helper path the sensor class is expected to exist already.
func (o *OHM) ensureHelper(ctx context.Context) bool {
	path := o.wmi.deps.Config.OHM.HelperPath
	if path == "" || o.sup == nil {
		return true
	}
	if o.sup.Running() {
		return true
	}

	if n, err := childproc.KillByName(ctx, filepath.Base(path)); err != nil {
		o.logger.Warn("Failed to kill stray helpers", zap.Error(err))
	} else if n > 0 {
		o.logger.Info("Killed stray helpers", zap.Int("count", n))
	}

	if err := o.sup.Start(path); err != nil {
		metrics.IncHelperStart("error")
		o.logger.Error("Failed to start helper",
			zap.String("path", path),
			zap.Error(err))
		return false
	}
	metrics.IncHelperStart("ok")
	return true
}

// Close stops the helper.
func (o *OHM) Close() error {
	if o.sup == nil {
		return nil
	}
	return o.sup.Stop()
}
