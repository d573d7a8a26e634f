package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/childproc"
	"github.com/Guliveer/vitalis/sectionagent/internal/config"
	"github.com/Guliveer/vitalis/sectionagent/internal/platform"
	"github.com/Guliveer/vitalis/sectionagent/internal/provider"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
	"github.com/Guliveer/vitalis/sectionagent/internal/srv"
)

// buildRegistry registers every section engine in output order.
func buildRegistry(cfg *config.Config, logger *zap.Logger) *srv.Registry {
	plat := platform.New()
	if cfg.OHM.HelperPath == "" {
		cfg.OHM.HelperPath = defaultHelperPath(plat)
	}

	deps := provider.Deps{
		Config:    cfg,
		Connector: newConnector(logger),
		Logger:    logger,
	}

	reg := srv.NewRegistry(cfg.Global.SectionTimeout.Duration, logger)
	reg.Register(provider.NewCheckMK(cfg, version, logger))
	reg.Register(provider.NewSystemTime(cfg, nil))

	for _, name := range provider.WMISections() {
		switch name {
		case section.OHM:
			sup := childproc.NewSupervisor(logger, childproc.Options{
				StopTimeout: cfg.OHM.StopTimeout.Duration,
			})
			reg.Register(provider.NewOHM(deps, sup, plat))
		case section.BadWMI:
			// diagnostic section, only on explicit request
			if explicitlyEnabled(cfg, name) {
				reg.Register(provider.NewWMI(name, provider.DefaultSeparator(name), deps))
			}
		default:
			reg.Register(provider.NewWMI(name, provider.DefaultSeparator(name), deps))
		}
	}
	return reg
}

// defaultHelperPath looks for the sensor helper in the bin directory next
// to the agent executable.
func defaultHelperPath(plat platform.Platform) string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	path := filepath.Join(filepath.Dir(exe), "bin", plat.HelperExecutable(provider.OHMHelperName))
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}

func explicitlyEnabled(cfg *config.Config, name string) bool {
	for _, s := range cfg.Global.EnabledSections {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
