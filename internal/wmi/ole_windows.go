//go:build windows

package wmi

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"go.uber.org/zap"
)

// sFalse is returned by CoInitializeEx when COM is already initialised on the
// calling thread; it still has to be balanced by CoUninitialize.
const sFalse = 0x00000001

// wbemInvalidClass is WBEM_E_INVALID_CLASS.
const wbemInvalidClass = 0x80041010

// ComGuard keeps COM initialised on the current OS thread until Release.
// The goroutine stays locked to its thread for the guard's lifetime.
type ComGuard struct {
	active bool
}

// AcquireComGuard locks the goroutine to its thread and initialises COM.
func AcquireComGuard() (*ComGuard, error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || (oleErr.Code() != ole.S_OK && oleErr.Code() != sFalse) {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("initialize COM: %w", err)
		}
	}
	return &ComGuard{active: true}, nil
}

// Release uninitialises COM and unlocks the thread. Safe to call twice.
func (g *ComGuard) Release() {
	if g == nil || !g.active {
		return
	}
	g.active = false
	ole.CoUninitialize()
	runtime.UnlockOSThread()
}

// OLEConnector talks to Windows WMI through the SWbemLocator scripting object.
type OLEConnector struct {
	logger *zap.Logger
}

// NewOLEConnector creates a WMI connector.
func NewOLEConnector(logger *zap.Logger) *OLEConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OLEConnector{logger: logger}
}

// Connect initialises COM for the calling goroutine and connects to namespace
// on the local machine. The returned session must be used and closed on the
// same goroutine.
func (c *OLEConnector) Connect(_ context.Context, namespace string) (Session, error) {
	guard, err := AcquireComGuard()
	if err != nil {
		return nil, err
	}

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		guard.Release()
		return nil, fmt.Errorf("create locator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		guard.Release()
		return nil, fmt.Errorf("query locator interface: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", nil, namespace)
	if err != nil {
		guard.Release()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidNamespace, namespace, err)
	}

	return &oleSession{
		guard:   guard,
		service: serviceRaw,
		logger:  c.logger,
	}, nil
}

type oleSession struct {
	guard   *ComGuard
	service *ole.VARIANT
	logger  *zap.Logger
}

func (s *oleSession) Query(_ context.Context, object string, columns []string) ([]Instance, error) {
	query := buildSelect(object, columns)
	resultRaw, err := oleutil.CallMethod(s.service.ToIDispatch(), "ExecQuery", query)
	if err != nil {
		return nil, classifyOLE(err, object)
	}
	defer resultRaw.Clear()

	var instances []Instance
	err = oleutil.ForEach(resultRaw.ToIDispatch(), func(v *ole.VARIANT) error {
		defer v.Clear()
		inst, err := readInstance(v.ToIDispatch())
		if err != nil {
			return err
		}
		// partial instances may still carry key properties nobody asked for
		instances = append(instances, inst.Restrict(columns))
		return nil
	})
	if err != nil {
		return nil, classifyOLE(err, object)
	}
	return instances, nil
}

func (s *oleSession) Close() error {
	if s.service != nil {
		_ = s.service.Clear()
		s.service = nil
	}
	s.guard.Release()
	return nil
}

// readInstance walks Properties_ of one SWbemObject in enumeration order.
func readInstance(item *ole.IDispatch) (Instance, error) {
	propsRaw, err := oleutil.GetProperty(item, "Properties_")
	if err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	defer propsRaw.Clear()

	var inst Instance
	err = oleutil.ForEach(propsRaw.ToIDispatch(), func(pv *ole.VARIANT) error {
		defer pv.Clear()
		prop := pv.ToIDispatch()

		name, err := oleutil.GetProperty(prop, "Name")
		if err != nil {
			return err
		}
		defer name.Clear()

		value, err := oleutil.GetProperty(prop, "Value")
		if err != nil {
			return err
		}
		defer value.Clear()

		inst = append(inst, Property{Name: name.ToString(), Value: formatValue(value.Value())})
		return nil
	})
	return inst, err
}

func formatValue(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func buildSelect(object string, columns []string) string {
	fields := "*"
	if len(columns) > 0 {
		fields = strings.Join(columns, ",")
	}
	return "SELECT " + fields + " FROM " + object
}

func classifyOLE(err error, object string) error {
	var exc *ole.OleError
	if errors.As(err, &exc) && exc.Code() == wbemInvalidClass {
		return fmt.Errorf("%w: %s", ErrInvalidClass, object)
	}
	return fmt.Errorf("query %s: %w", object, err)
}
