// Package wmi runs object enumerations against a local management namespace
// and renders the results as separator-delimited tables.
//
// The package never returns query failures as errors to its callers: every
// attempt ends with a Status. Backends plug in through Connector, so the same
// engine drives Windows WMI (via COM) and the gopsutil-backed classes served
// by the collector package.
package wmi

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrInvalidNamespace is returned by a Connector for an unknown namespace.
	ErrInvalidNamespace = errors.New("wmi: invalid namespace")
	// ErrInvalidClass is returned by a Session for an unknown object class.
	ErrInvalidClass = errors.New("wmi: invalid class")
)

// Property is one named field of an enumerated instance.
type Property struct {
	Name  string
	Value string
}

// Instance is one enumerated object; property order is the discovery order.
type Instance []Property

// Names returns the property names in order.
func (in Instance) Names() []string {
	names := make([]string, len(in))
	for i, p := range in {
		names[i] = p.Name
	}
	return names
}

// Get returns the value of the named property or "" if absent.
func (in Instance) Get(name string) string {
	for _, p := range in {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Restrict keeps only the properties named in columns, compared without
// regard to case, in discovery order. An empty columns slice keeps all.
func (in Instance) Restrict(columns []string) Instance {
	if len(columns) == 0 {
		return in
	}
	out := make(Instance, 0, len(columns))
	for _, p := range in {
		for _, c := range columns {
			if strings.EqualFold(p.Name, c) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Connector opens sessions to a management namespace.
type Connector interface {
	Connect(ctx context.Context, namespace string) (Session, error)
}

// Session enumerates instances of an object class. An empty columns slice
// selects every property. A session is owned by one goroutine.
type Session interface {
	Query(ctx context.Context, object string, columns []string) ([]Instance, error)
	Close() error
}

// NormalizeNamespace accepts both "root/cimv2" and `Root\Cimv2` spellings and
// returns the backslash form.
func NormalizeNamespace(ns string) string {
	return strings.ReplaceAll(strings.TrimSpace(ns), "/", `\`)
}

// Wrapper is one logical query batch: connect once, run queries, close.
type Wrapper struct {
	connector Connector
	session   Session
	namespace string
	logger    *zap.Logger
}

// NewWrapper creates an unconnected wrapper.
func NewWrapper(connector Connector, logger *zap.Logger) *Wrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wrapper{connector: connector, logger: logger}
}

// Connect opens a session to namespace. A previous session is closed first.
func (w *Wrapper) Connect(ctx context.Context, namespace string) bool {
	w.Close()
	if w.connector == nil {
		return false
	}
	ns := NormalizeNamespace(namespace)
	session, err := w.connector.Connect(ctx, ns)
	if err != nil {
		w.logger.Debug("Namespace connect failed",
			zap.String("namespace", ns),
			zap.Error(err))
		return false
	}
	w.session = session
	w.namespace = ns
	return true
}

// Connected reports whether a session is open.
func (w *Wrapper) Connected() bool { return w.session != nil }

// Close releases the session, if any.
func (w *Wrapper) Close() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Debug("Session close failed",
			zap.String("namespace", w.namespace),
			zap.Error(err))
	}
	w.session = nil
	w.namespace = ""
}

// Query runs one enumeration and returns the parsed result.
func (w *Wrapper) Query(ctx context.Context, columns []string, object string) Result {
	if strings.TrimSpace(object) == "" {
		return Result{Status: StatusBadParam}
	}
	if w.session == nil {
		return Result{Status: StatusFailConnect}
	}
	instances, err := w.session.Query(ctx, object, columns)
	if err != nil {
		w.logger.Debug("Query failed",
			zap.String("namespace", w.namespace),
			zap.String("object", object),
			zap.Error(err))
		return Result{Status: StatusError}
	}
	return Result{Status: StatusOK, Table: buildTable(instances)}
}

// QueryTable runs one enumeration and renders it with sep. The text is empty
// whenever the status is not StatusOK.
func (w *Wrapper) QueryTable(ctx context.Context, columns []string, object string, sep rune) (string, Status) {
	r := w.Query(ctx, columns, object)
	return r.Render(sep), r.Status
}

// GenerateTable connects to namespace, runs one enumeration of object and
// closes the session. Empty namespace or object is rejected before any
// connection attempt.
func GenerateTable(ctx context.Context, connector Connector, logger *zap.Logger,
	namespace, object string, columns []string, sep rune) (string, Status) {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(object) == "" {
		return "", StatusBadParam
	}
	w := NewWrapper(connector, logger)
	if !w.Connect(ctx, namespace) {
		return "", StatusFailConnect
	}
	defer w.Close()
	return w.QueryTable(ctx, columns, object, sep)
}
