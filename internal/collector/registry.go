package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// ErrInvalidQuery is returned when a selected column does not exist.
var ErrInvalidQuery = errors.New("collector: invalid query")

// Registry maps namespaces to their classes and implements wmi.Connector.
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Collector
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		namespaces: make(map[string]map[string]Collector),
		logger:     logger,
	}
}

// NewDefaultRegistry registers every class this package knows about.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewProcessCollector())
	r.Register(NewComputerSystemCollector())
	r.Register(NewPerfSystemCollector())
	r.Register(NewOperatingSystemCollector())
	r.Register(NewLogicalDiskCollector(logger))
	r.Register(NewNetworkInterfaceCollector())
	r.Register(NewSensorCollector(logger))
	return r
}

// Register adds a class if it's available on the current platform.
// Unavailable classes are logged and skipped.
func (r *Registry) Register(c Collector) {
	if !c.IsAvailable() {
		r.logger.Warn("Class not available, skipping",
			zap.String("namespace", c.Namespace()),
			zap.String("class", c.Name()))
		return
	}
	ns := key(c.Namespace())
	r.mu.Lock()
	if r.namespaces[ns] == nil {
		r.namespaces[ns] = make(map[string]Collector)
	}
	r.namespaces[ns][key(c.Name())] = c
	r.mu.Unlock()
	r.logger.Debug("Registered class",
		zap.String("namespace", c.Namespace()),
		zap.String("class", c.Name()))
}

// Connect opens a session to a registered namespace.
func (r *Registry) Connect(_ context.Context, namespace string) (wmi.Session, error) {
	r.mu.RLock()
	classes, ok := r.namespaces[key(namespace)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", wmi.ErrInvalidNamespace, namespace)
	}
	return &session{classes: classes, mu: &r.mu}, nil
}

type session struct {
	classes map[string]Collector
	mu      *sync.RWMutex
}

func (s *session) Query(ctx context.Context, object string, columns []string) ([]wmi.Instance, error) {
	s.mu.RLock()
	c, ok := s.classes[key(object)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", wmi.ErrInvalidClass, object)
	}
	instances, err := c.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", c.Name(), err)
	}
	return selectColumns(instances, columns)
}

func (s *session) Close() error { return nil }

// selectColumns restricts every instance to the requested columns, keeping
// the discovered property order.
func selectColumns(instances []wmi.Instance, columns []string) ([]wmi.Instance, error) {
	if len(columns) == 0 || len(instances) == 0 {
		return instances, nil
	}
	for _, c := range columns {
		if !hasProperty(instances[0], c) {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidQuery, c)
		}
	}
	out := make([]wmi.Instance, len(instances))
	for i, inst := range instances {
		out[i] = inst.Restrict(columns)
	}
	return out, nil
}

func hasProperty(inst wmi.Instance, name string) bool {
	for _, p := range inst {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func key(s string) string {
	return strings.ToLower(wmi.NormalizeNamespace(s))
}
