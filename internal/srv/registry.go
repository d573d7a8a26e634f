package srv

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/metrics"
)

// Registry manages the section providers and runs them concurrently.
type Registry struct {
	providers []*SectionProvider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. timeout bounds one provider run
// within a cycle; zero means no bound.
func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers: make([]*SectionProvider, 0),
		timeout:   timeout,
		logger:    logger,
	}
}

// Register wraps engine in a provider and appends it. Output order follows
// registration order.
func (r *Registry) Register(engine Engine) *SectionProvider {
	p := NewSectionProvider(engine, r.logger)
	r.providers = append(r.providers, p)
	r.logger.Info("Registered section", zap.String("name", engine.UniqName()))
	return p
}

// Lookup returns the provider of the named section.
func (r *Registry) Lookup(name string) (*SectionProvider, bool) {
	for _, p := range r.providers {
		if strings.EqualFold(p.UniqName(), name) {
			return p, true
		}
	}
	return nil, false
}

// Providers returns a copy of all registered providers.
func (r *Registry) Providers() []*SectionProvider {
	result := make([]*SectionProvider, len(r.providers))
	copy(result, r.providers)
	return result
}

// CollectAll runs every provider concurrently and concatenates their output
// in registration order. A provider that outlives the timeout is left to
// finish in the background; its output is dropped and the next cycle skips
// it until it returns.
func (r *Registry) CollectAll(ctx context.Context) string {
	results := make([]string, len(r.providers))
	var wg sync.WaitGroup

	for i, p := range r.providers {
		wg.Add(1)
		go func(i int, p *SectionProvider) {
			defer wg.Done()
			results[i] = r.runOne(ctx, p)
		}(i, p)
	}

	wg.Wait()

	var b strings.Builder
	for _, s := range results {
		b.WriteString(s)
	}
	return b.String()
}

func (r *Registry) runOne(ctx context.Context, p *SectionProvider) string {
	type outcome struct {
		text string
		ran  bool
	}
	done := make(chan outcome, 1)
	go func() {
		text, ran := p.Run(ctx)
		done <- outcome{text, ran}
	}()

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case o := <-done:
		if !o.ran {
			r.logger.Warn("Section still running, skipped",
				zap.String("section", p.UniqName()))
			metrics.IncSectionRun(p.UniqName(), metrics.OutcomeBusy)
		}
		return o.text
	case <-timeout:
		r.logger.Warn("Section timed out",
			zap.String("section", p.UniqName()),
			zap.Duration("timeout", r.timeout))
		metrics.IncSectionRun(p.UniqName(), metrics.OutcomeTimedOut)
		return ""
	case <-ctx.Done():
		return ""
	}
}

// Close releases engines that hold resources, such as helper processes.
func (r *Registry) Close() error {
	var errs error
	for _, p := range r.providers {
		if c, ok := p.engine.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}
