package provider

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/config"
	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
)

// CheckMK describes the agent itself.
type CheckMK struct {
	cfg     *config.Config
	version string
	logger  *zap.Logger
}

// NewCheckMK creates the agent description section.
func NewCheckMK(cfg *config.Config, version string, logger *zap.Logger) *CheckMK {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckMK{cfg: cfg, version: version, logger: logger.Named("check_mk")}
}

// UniqName returns the section name.
func (c *CheckMK) UniqName() string { return section.CheckMK }

// GenerateContent returns "Key: value" lines describing the agent.
func (c *CheckMK) GenerateContent(ctx context.Context, sectionName string, _ bool) string {
	if !c.cfg.IsSectionEnabled(section.CheckMK) {
		metrics.IncSectionRun(section.CheckMK, metrics.OutcomeDenied)
		return ""
	}

	wd, _ := os.Getwd()
	agentDir := ""
	if exe, err := os.Executable(); err == nil {
		agentDir = filepath.Dir(exe)
	}

	var b strings.Builder
	b.WriteString(section.MakeHeader(section.ResolveName(sectionName, section.CheckMK), section.NoSeparator))
	line := func(key, value string) {
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}
	line("Version", c.version)
	line("AgentOS", runtime.GOOS)
	line("Hostname", c.hostname(ctx))
	line("Architecture", strconv.Itoa(strconv.IntSize)+"bit")
	line("WorkingDirectory", wd)
	line("ConfigFile", c.cfg.Path())
	line("AgentDirectory", agentDir)
	line("SpoolDirectory", c.cfg.Spool.Dir)
	line("OnlyFrom", FormatOnlyFrom(c.cfg.Global.OnlyFrom))

	metrics.IncSectionRun(section.CheckMK, metrics.OutcomeOK)
	return b.String()
}

func (c *CheckMK) hostname(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return info.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		c.logger.Debug("Hostname unavailable", zap.Error(err))
		return ""
	}
	return name
}

// FormatOnlyFrom renders the allowed peers. Every IPv4 entry is followed by
// its IPv4-mapped IPv6 form; an empty list allows everybody.
func FormatOnlyFrom(entries []string) string {
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		prefix, err := parsePrefix(e)
		if err != nil {
			out = append(out, e)
			continue
		}
		out = append(out, prefix.String())
		if prefix.Addr().Is4() {
			out = append(out, mappedIPv6(prefix))
		}
	}
	if len(out) == 0 {
		return "0.0.0.0/0"
	}
	return strings.Join(out, " ")
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// mappedIPv6 writes an IPv4 prefix as "0:0:0:0:0:ffff:hhhh:hhhh/len+96".
func mappedIPv6(p netip.Prefix) string {
	a := p.Addr().As4()
	return fmt.Sprintf("0:0:0:0:0:ffff:%x:%x/%d",
		uint16(a[0])<<8|uint16(a[1]),
		uint16(a[2])<<8|uint16(a[3]),
		p.Bits()+96)
}

// SystemTime reports the agent's clock in Unix seconds.
type SystemTime struct {
	cfg   *config.Config
	clock Clock
}

// NewSystemTime creates the systemtime section.
func NewSystemTime(cfg *config.Config, clock Clock) *SystemTime {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SystemTime{cfg: cfg, clock: clock}
}

// UniqName returns the section name.
func (s *SystemTime) UniqName() string { return section.SystemTime }

// GenerateContent returns the header and the current Unix time.
func (s *SystemTime) GenerateContent(_ context.Context, sectionName string, _ bool) string {
	if !s.cfg.IsSectionEnabled(section.SystemTime) {
		metrics.IncSectionRun(section.SystemTime, metrics.OutcomeDenied)
		return ""
	}
	metrics.IncSectionRun(section.SystemTime, metrics.OutcomeOK)
	return section.MakeHeader(section.ResolveName(sectionName, section.SystemTime), section.NoSeparator) +
		strconv.FormatInt(s.clock.Now().Unix(), 10) + "\n"
}
