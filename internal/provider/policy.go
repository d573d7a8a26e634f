// Package provider implements the section engines: WMI-backed sections with
// their scheduling and backoff policy, the OpenHardwareMonitor sensor engine
// that depends on a supervised helper, and the check_mk and systemtime
// sections.
//
// An engine is owned by one adapter and is not safe for concurrent use.
package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/config"
	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// Deps are the collaborators shared by the engines.
type Deps struct {
	Config    *config.Config
	Connector wmi.Connector
	Clock     Clock
	Logger    *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// backoff gates re-execution after a failure.
type backoff struct {
	delayOnFail time.Duration
	allowedFrom time.Time
}

func (b *backoff) allowedByTime(now time.Time) bool {
	return !now.Before(b.allowedFrom)
}

// disable moves allowedFrom to now+delayOnFail. It never moves backwards.
func (b *backoff) disable(now time.Time) {
	next := now.Add(b.delayOnFail)
	if next.After(b.allowedFrom) {
		b.allowedFrom = next
	}
}

// SubSection is one sub-object of a composite section with its own backoff.
type SubSection struct {
	desc  Descriptor
	floor time.Duration
	clock Clock
	backoff
}

// UniqName returns the sub-section name.
func (s *SubSection) UniqName() string { return s.desc.Name }

// Descriptor returns the query identity of the sub-object.
func (s *SubSection) Descriptor() Descriptor { return s.desc }

// IsAllowedByTime reports whether the sub-object is out of its cooling period.
func (s *SubSection) IsAllowedByTime() bool { return s.allowedByTime(s.clock.Now()) }

// DisableSectionTemporary puts the sub-object into its cooling period.
func (s *SubSection) DisableSectionTemporary() { s.disable(s.clock.Now()) }

// SetupDelayOnFail restores the configured delay.
func (s *SubSection) SetupDelayOnFail() { s.delayOnFail = s.floor }

// AllowedFrom returns the end of the cooling period.
func (s *SubSection) AllowedFrom() time.Time { return s.allowedFrom }

// WMI is a section produced by one or more management queries.
type WMI struct {
	desc   Descriptor
	sep    rune
	known  bool
	deps   Deps
	logger *zap.Logger

	floor time.Duration
	backoff
	subs []*SubSection

	ip string
}

// NewWMI creates the engine of a WMI section. Names missing from the catalog
// produce an engine that configuration never allows.
func NewWMI(name string, sep rune, deps Deps) *WMI {
	deps = deps.withDefaults()
	desc, known := Lookup(name)
	floor := deps.Config.DelayOnFailFor(desc.Name)

	w := &WMI{
		desc:    desc,
		sep:     sep,
		known:   known,
		deps:    deps,
		logger:  deps.Logger.Named("wmi").With(zap.String("section", desc.Name)),
		floor:   floor,
		backoff: backoff{delayOnFail: floor},
	}
	for _, sub := range desc.SubObjects {
		w.subs = append(w.subs, &SubSection{
			desc:    sub,
			floor:   floor,
			clock:   deps.Clock,
			backoff: backoff{delayOnFail: floor},
		})
	}
	return w
}

// UniqName returns the section name.
func (w *WMI) UniqName() string { return w.desc.Name }

// Namespace returns the namespace of a leaf section, "" for composites.
func (w *WMI) Namespace() string { return w.desc.Namespace }

// Object returns the queried object of a leaf section, "" for composites.
func (w *WMI) Object() string { return w.desc.Object }

// Columns returns the selected columns; empty selects all.
func (w *WMI) Columns() []string { return w.desc.Columns }

// Separator returns the field separator.
func (w *WMI) Separator() rune { return w.sep }

// SubObjects returns the sub-sections in declaration order.
func (w *WMI) SubObjects() []*SubSection { return w.subs }

// DelayOnFail returns the current cooling interval.
func (w *WMI) DelayOnFail() time.Duration { return w.delayOnFail }

// AllowedFrom returns the end of the cooling period. For a composite section
// it is the earliest moment any sub-object becomes due.
func (w *WMI) AllowedFrom() time.Time {
	if !w.desc.Composite() {
		return w.allowedFrom
	}
	earliest := w.subs[0].AllowedFrom()
	for _, sub := range w.subs[1:] {
		if sub.AllowedFrom().Before(earliest) {
			earliest = sub.AllowedFrom()
		}
	}
	return earliest
}

// RegisterCommandLine records the caller of the current request. The first
// token of line is the caller address.
func (w *WMI) RegisterCommandLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		w.ip = ""
		return
	}
	w.ip = fields[0]
}

// IP returns the caller address recorded by RegisterCommandLine.
func (w *WMI) IP() string { return w.ip }

// IsAllowedByCurrentConfig reports whether configuration lets the section run.
func (w *WMI) IsAllowedByCurrentConfig() bool {
	return w.known && w.deps.Config.IsSectionEnabled(w.desc.Name)
}

// IsAllowedByTime reports whether the section is out of its cooling period.
// A composite section is due as soon as one of its sub-objects is.
func (w *WMI) IsAllowedByTime() bool {
	if !w.desc.Composite() {
		return w.allowedByTime(w.deps.Clock.Now())
	}
	for _, sub := range w.subs {
		if sub.IsAllowedByTime() {
			return true
		}
	}
	return false
}

// DisableSectionTemporary puts the section into its cooling period. On a
// composite section every sub-object is cooled.
func (w *WMI) DisableSectionTemporary() {
	now := w.deps.Clock.Now()
	if w.desc.Composite() {
		for _, sub := range w.subs {
			sub.disable(now)
		}
	} else {
		w.disable(now)
	}
	w.logger.Debug("Section disabled temporarily",
		zap.Time("allowed_from", w.AllowedFrom()))
}

// SetupDelayOnFail restores the configured delay, including that of every
// sub-object.
func (w *WMI) SetupDelayOnFail() {
	w.delayOnFail = w.floor
	for _, sub := range w.subs {
		sub.SetupDelayOnFail()
	}
}

// GenerateContent returns the header and body of the section, or "" when
// the section is denied, cooling down or has nothing to report.
func (w *WMI) GenerateContent(ctx context.Context, sectionName string, _ bool) string {
	if !w.IsAllowedByCurrentConfig() {
		metrics.IncSectionRun(w.desc.Name, metrics.OutcomeDenied)
		return ""
	}
	if !w.IsAllowedByTime() {
		w.logger.Debug("Section is cooling down",
			zap.Time("allowed_from", w.AllowedFrom()))
		metrics.IncSectionRun(w.desc.Name, metrics.OutcomeCooling)
		return ""
	}

	body := w.MakeBody(ctx)
	if body == "" {
		metrics.IncSectionRun(w.desc.Name, metrics.OutcomeEmpty)
		return ""
	}
	metrics.IncSectionRun(w.desc.Name, metrics.OutcomeOK)
	return section.MakeHeader(section.ResolveName(sectionName, w.desc.Name), w.sep) + body
}

// MakeBody runs the queries of the section. A failed leaf query yields ""
// and starts the cooling period. Sub-objects of a composite section are
// gated and cooled only by their own state; each produced sub-table is
// preceded by its sub-section header.
func (w *WMI) MakeBody(ctx context.Context) string {
	if !w.desc.Composite() {
		text, status := w.query(ctx, w.desc)
		if status != wmi.StatusOK {
			w.DisableSectionTemporary()
			return ""
		}
		w.SetupDelayOnFail()
		return text
	}

	var b strings.Builder
	for _, sub := range w.subs {
		if !sub.IsAllowedByTime() {
			w.logger.Debug("Sub-section is cooling down",
				zap.String("sub", sub.UniqName()),
				zap.Time("allowed_from", sub.AllowedFrom()))
			continue
		}
		text, status := w.query(ctx, sub.desc)
		if status != wmi.StatusOK {
			sub.DisableSectionTemporary()
			continue
		}
		sub.SetupDelayOnFail()
		b.WriteString(section.MakeSubSectionHeader(sub.UniqName()))
		b.WriteString(text)
	}
	return b.String()
}

// query runs one enumeration and appends the status column if the
// descriptor asks for it.
func (w *WMI) query(ctx context.Context, d Descriptor) (string, wmi.Status) {
	start := w.deps.Clock.Now()
	text, status := wmi.GenerateTable(ctx, w.deps.Connector, w.logger,
		d.Namespace, d.Object, d.Columns, w.sep)
	elapsed := w.deps.Clock.Now().Sub(start)
	metrics.ObserveQuery(d.Object, status.String(), elapsed.Seconds())

	if status != wmi.StatusOK {
		w.logger.Debug("Query produced no table",
			zap.String("namespace", d.Namespace),
			zap.String("object", d.Object),
			zap.Stringer("status", status),
			zap.Duration("elapsed", elapsed))
		return "", status
	}
	if d.StatusColumn {
		column := wmi.ColumnOK
		if timeout := w.deps.Config.WMI.Timeout.Duration; timeout > 0 && elapsed > timeout {
			column = wmi.ColumnTimeout
		}
		text = wmi.PostProcess(text, column, w.sep)
	}
	return text, status
}
