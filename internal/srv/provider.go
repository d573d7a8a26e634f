// Package srv exposes section engines to the scheduler through a uniform,
// name-addressed adapter and fans a cycle out over all registered sections.
package srv

import (
	"context"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
)

// Engine produces the content of one section.
type Engine interface {
	UniqName() string
	// GenerateContent returns header and body, or "" when the section has
	// nothing to report this time. noCache bypasses any memoized result.
	GenerateContent(ctx context.Context, sectionName string, noCache bool) string
}

// CommandLineRegistrar is implemented by engines that record the caller of
// a synchronous request.
type CommandLineRegistrar interface {
	RegisterCommandLine(line string)
}

// SectionProvider wraps one engine. Calls into the engine are serialized by
// the caller; Run reports a call still in flight instead of overlapping it.
type SectionProvider struct {
	engine   Engine
	logger   *zap.Logger
	inFlight atomic.Bool
}

// NewSectionProvider wraps engine.
func NewSectionProvider(engine Engine, logger *zap.Logger) *SectionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionProvider{
		engine: engine,
		logger: logger.Named("provider").With(zap.String("section", engine.UniqName())),
	}
}

// UniqName returns the name of the wrapped section.
func (p *SectionProvider) UniqName() string { return p.engine.UniqName() }

// GenerateContent delegates to the engine.
func (p *SectionProvider) GenerateContent(ctx context.Context, sectionName string, noCache bool) string {
	return p.engine.GenerateContent(ctx, sectionName, noCache)
}

// Run produces content unless a previous run of this provider is still in
// flight, in which case it returns false without touching the engine.
func (p *SectionProvider) Run(ctx context.Context) (string, bool) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return "", false
	}
	defer p.inFlight.Store(false)
	return p.engine.GenerateContent(ctx, section.UseEmbeddedName, false), true
}

// StartSynchronous produces the section and delivers it to target. A
// "file:<path>" target replaces the file atomically, even with empty
// content; any other target hands the content to sink. cmdline is the
// request metadata "<id> <section>" and only feeds logging.
func (p *SectionProvider) StartSynchronous(ctx context.Context, target string, sink io.Writer, cmdline string) error {
	cl, err := ParseCommandLine(cmdline)
	if err != nil {
		p.logger.Debug("Request without command line", zap.Error(err))
	} else if r, ok := p.engine.(CommandLineRegistrar); ok {
		r.RegisterCommandLine(cl.Raw)
	}

	content := p.engine.GenerateContent(ctx, section.UseEmbeddedName, false)

	if path, ok := FileTarget(target); ok {
		err = WriteFileAtomic(path, []byte(content))
	} else {
		err = writeAll(sink, []byte(content))
	}
	if err != nil {
		metrics.IncSinkWrite("error")
		p.logger.Error("Failed to deliver section",
			zap.String("target", target),
			zap.Stringer("request", cl),
			zap.Error(err))
		return err
	}
	metrics.IncSinkWrite("ok")
	p.logger.Debug("Section delivered",
		zap.String("target", target),
		zap.Stringer("request", cl),
		zap.Int("bytes", len(content)))
	return nil
}
