package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/vitalis/sectionagent/internal/collector"
	"github.com/Guliveer/vitalis/sectionagent/internal/config"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

// fakeConnector serves fixed instances and counts connection attempts.
type fakeConnector struct {
	classes  map[string][]wmi.Instance // key: lower(namespace) + "/" + lower(object)
	attempts int
	queries  int
	onQuery  func()
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{classes: make(map[string][]wmi.Instance)}
}

func classKey(ns, object string) string {
	return strings.ToLower(wmi.NormalizeNamespace(ns)) + "/" + strings.ToLower(object)
}

func (f *fakeConnector) add(ns, object string, rows ...wmi.Instance) {
	f.classes[classKey(ns, object)] = rows
}

func (f *fakeConnector) Connect(_ context.Context, ns string) (wmi.Session, error) {
	f.attempts++
	prefix := strings.ToLower(wmi.NormalizeNamespace(ns)) + "/"
	for k := range f.classes {
		if strings.HasPrefix(k, prefix) {
			return &fakeSession{f: f, ns: ns}, nil
		}
	}
	return nil, wmi.ErrInvalidNamespace
}

type fakeSession struct {
	f  *fakeConnector
	ns string
}

func (s *fakeSession) Query(_ context.Context, object string, _ []string) ([]wmi.Instance, error) {
	s.f.queries++
	if s.f.onQuery != nil {
		s.f.onQuery()
	}
	rows, ok := s.f.classes[classKey(s.ns, object)]
	if !ok {
		return nil, wmi.ErrInvalidClass
	}
	return rows, nil
}

func (s *fakeSession) Close() error { return nil }

func row(kv ...string) wmi.Instance {
	var in wmi.Instance
	for i := 0; i+1 < len(kv); i += 2 {
		in = append(in, wmi.Property{Name: kv[i], Value: kv[i+1]})
	}
	return in
}

func testDeps(conn wmi.Connector, clock Clock) Deps {
	return Deps{Config: config.DefaultConfig(), Connector: conn, Clock: clock}
}

func TestWMI_Catalog(t *testing.T) {
	deps := testDeps(newFakeConnector(), newFakeClock())

	ohm := NewWMI(section.OHM, OHMSeparator, deps)
	assert.Equal(t, "Sensor", ohm.Object())
	assert.Equal(t, `Root\OpenHardwareMonitor`, ohm.Namespace())
	assert.Len(t, ohm.Columns(), 5)
	assert.True(t, ohm.IsAllowedByCurrentConfig())
	assert.True(t, ohm.IsAllowedByTime())

	clr := NewWMI(section.DotNetCLR, WMISeparator, deps)
	assert.Equal(t, "Win32_PerfRawData_NETFramework_NETCLRMemory", clr.Object())
	assert.Equal(t, `Root\Cimv2`, clr.Namespace())
	assert.Equal(t, time.Hour, clr.DelayOnFail())

	web := NewWMI(section.WMIWebServices, WMISeparator, deps)
	assert.Equal(t, "Win32_PerfRawData_W3SVC_WebService", web.Object())

	bad := NewWMI(section.BadWMI, WMISeparator, deps)
	assert.Equal(t, "BadSensor", bad.Object())
	assert.Equal(t, `Root\BadWmiPath`, bad.Namespace())

	cpu := NewWMI(section.WMICPULoad, WMISeparator, deps)
	assert.Empty(t, cpu.Object())
	assert.Empty(t, cpu.Namespace())
	assert.Empty(t, cpu.Columns())
	require.Len(t, cpu.SubObjects(), 2)
	assert.Equal(t, section.SubSystemPerf, cpu.SubObjects()[0].UniqName())
	assert.Equal(t, section.SubComputerSystem, cpu.SubObjects()[1].UniqName())

	exch := NewWMI(section.MSExch, WMISeparator, deps)
	want := []string{
		"msexch_activesync", "msexch_availability", "msexch_owa",
		"msexch_autodiscovery", "msexch_isclienttype", "msexch_isstore",
		"msexch_rpcclientaccess",
	}
	require.Len(t, exch.SubObjects(), len(want))
	for i, sub := range exch.SubObjects() {
		assert.Equal(t, want[i], sub.UniqName())
		assert.NotEmpty(t, sub.Descriptor().Namespace)
		assert.NotEmpty(t, sub.Descriptor().Object)
	}
	assert.True(t, exch.IsAllowedByCurrentConfig())
	assert.Equal(t, time.Hour, exch.DelayOnFail())
}

func TestWMI_UnknownName(t *testing.T) {
	w := NewWMI("badname", WMISeparator, testDeps(newFakeConnector(), newFakeClock()))
	assert.Empty(t, w.Object())
	assert.Empty(t, w.Namespace())
	assert.False(t, w.IsAllowedByCurrentConfig())
	assert.True(t, w.IsAllowedByTime())
	assert.Empty(t, w.GenerateContent(context.Background(), section.UseEmbeddedName, false))
}

func TestWMI_RegisterCommandLine(t *testing.T) {
	w := NewWMI("badname", '.', testDeps(nil, nil))
	w.RegisterCommandLine("1.1.1.1 wefwef rfwrwer rwerw")
	assert.Equal(t, "1.1.1.1", w.IP())
	w.RegisterCommandLine("   ")
	assert.Empty(t, w.IP())
}

func TestWMI_DisableAndSetupDelayOnFail(t *testing.T) {
	clock := newFakeClock()
	w := NewWMI("a", ',', testDeps(nil, clock))
	assert.Equal(t, time.Duration(0), w.DelayOnFail())

	w.delayOnFail = 900 * time.Second
	w.DisableSectionTemporary()
	assert.Equal(t, clock.Now().Add(900*time.Second), w.AllowedFrom())
	assert.False(t, w.IsAllowedByTime())

	clock.Advance(899 * time.Second)
	assert.False(t, w.IsAllowedByTime())
	clock.Advance(time.Second)
	assert.True(t, w.IsAllowedByTime())

	w.SetupDelayOnFail()
	assert.Equal(t, time.Duration(0), w.DelayOnFail())

	for _, name := range []string{section.OHM, section.WMICPULoad, section.WMIWebServices, section.DotNetCLR, section.MSExch} {
		b := NewWMI(name, ',', testDeps(nil, clock))
		assert.Equal(t, config.DefaultDelayOnFail, b.DelayOnFail(), name)
		b.delayOnFail = time.Second
		b.SetupDelayOnFail()
		assert.Equal(t, config.DefaultDelayOnFail, b.DelayOnFail(), name)
	}
}

func TestWMI_DisableIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	w := NewWMI(section.DotNetCLR, WMISeparator, testDeps(nil, clock))

	w.DisableSectionTemporary()
	first := w.AllowedFrom()
	w.DisableSectionTemporary()
	assert.False(t, w.AllowedFrom().Before(first))

	w.delayOnFail = time.Second
	w.DisableSectionTemporary()
	assert.Equal(t, first, w.AllowedFrom(), "a shorter delay must not shorten the cooling period")
}

func TestWMI_BadSectionCoolsDown(t *testing.T) {
	clock := newFakeClock()
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_ComputerSystem", row("Name", "host"))
	w := NewWMI(section.BadWMI, WMISeparator, testDeps(conn, clock))

	assert.Empty(t, w.MakeBody(context.Background()))
	assert.False(t, w.IsAllowedByTime(), "bad wmi must fail and wait")
	assert.Equal(t, clock.Now().Add(config.DefaultDelayOnFail), w.AllowedFrom())

	attempts := conn.attempts
	assert.Empty(t, w.GenerateContent(context.Background(), section.UseEmbeddedName, false))
	assert.Equal(t, attempts, conn.attempts, "cooling section must not query")

	clock.Advance(config.DefaultDelayOnFail)
	assert.True(t, w.IsAllowedByTime())
}

func TestWMI_LeafContent(t *testing.T) {
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_NETFramework_NETCLRMemory",
		row("AllocatedBytesPersec", "10", "Name", "_Global_"),
		row("AllocatedBytesPersec", "20", "Name", "w3wp"))
	w := NewWMI(section.DotNetCLR, WMISeparator, testDeps(conn, newFakeClock()))

	got := w.GenerateContent(context.Background(), section.UseEmbeddedName, false)
	assert.Equal(t,
		"<<<dotnet_clrmemory:sep(124)>>>\n"+
			"AllocatedBytesPersec|Name\n"+
			"10|_Global_\n"+
			"20|w3wp\n", got)
	assert.True(t, w.IsAllowedByTime())

	got = w.GenerateContent(context.Background(), "clr", false)
	assert.True(t, strings.HasPrefix(got, "<<<clr:sep(124)>>>\n"))
}

func TestWMI_ZeroInstancesIsNotAFailure(t *testing.T) {
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_W3SVC_WebService")
	w := NewWMI(section.WMIWebServices, WMISeparator, testDeps(conn, newFakeClock()))

	assert.Empty(t, w.GenerateContent(context.Background(), section.UseEmbeddedName, false))
	assert.True(t, w.IsAllowedByTime())
}

func TestWMI_ConfigDeniedSkipsQueries(t *testing.T) {
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_NETFramework_NETCLRMemory", row("A", "1"))
	deps := testDeps(conn, newFakeClock())
	deps.Config.Global.DisabledSections = []string{section.DotNetCLR}

	w := NewWMI(section.DotNetCLR, WMISeparator, deps)
	assert.False(t, w.IsAllowedByCurrentConfig())
	assert.Empty(t, w.GenerateContent(context.Background(), section.UseEmbeddedName, false))
	assert.Zero(t, conn.attempts)
}

func TestWMI_CompositeBody(t *testing.T) {
	conn := newFakeConnector()
	conn.add("root/x", "Perf", row("Frequency", "10", "Timestamp", "20"), row("Frequency", "11", "Timestamp", "21"))
	conn.add("root/y", "Sys", row("Name", "host", "Cores", "4"))
	w := NewWMI(section.WMICPULoad, WMISeparator, testDeps(conn, newFakeClock()))
	w.subs[0].desc = Descriptor{Name: "perf", Namespace: "root/x", Object: "Perf"}
	w.subs[1].desc = Descriptor{Name: "sys", Namespace: "root/y", Object: "Sys"}

	body := w.MakeBody(context.Background())
	require.True(t, strings.HasPrefix(body, "[perf]\n"), body)

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	assert.Equal(t, []string{
		"[perf]", "Frequency|Timestamp", "10|20", "11|21",
		"[sys]", "Name|Cores", "host|4",
	}, lines)
	assert.Equal(t, 1, strings.Count(body, "[perf]\n"))
	assert.Equal(t, 1, strings.Count(body, "[sys]\n"))
}

func TestWMI_CompositeCatalogHeaders(t *testing.T) {
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_PerfOS_System", row("Frequency_PerfTime", "10000000"))
	conn.add(collector.NamespaceCIMV2, "Win32_ComputerSystem", row("Name", "host"))
	w := NewWMI(section.WMICPULoad, WMISeparator, testDeps(conn, newFakeClock()))

	out := w.GenerateContent(context.Background(), section.UseEmbeddedName, false)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, section.MakeHeader(section.WMICPULoad, WMISeparator), lines[0]+"\n")

	perf, sys := 0, 0
	for _, l := range lines {
		switch l + "\n" {
		case section.MakeSubSectionHeader(section.SubSystemPerf):
			perf++
		case section.MakeSubSectionHeader(section.SubComputerSystem):
			sys++
		}
	}
	assert.Equal(t, 1, perf)
	assert.Equal(t, 1, sys)
}

func TestWMI_SubObjectsBackOffIndependently(t *testing.T) {
	clock := newFakeClock()
	conn := newFakeConnector()
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_PerfOS_System", row("Frequency_PerfTime", "10000000"))
	w := NewWMI(section.WMICPULoad, WMISeparator, testDeps(conn, clock))

	body := w.MakeBody(context.Background())
	assert.Contains(t, body, "[system_perf]\n")
	assert.NotContains(t, body, "[computer_system]")

	perf, sys := w.SubObjects()[0], w.SubObjects()[1]
	assert.True(t, perf.IsAllowedByTime())
	assert.False(t, sys.IsAllowedByTime())
	assert.True(t, w.IsAllowedByTime(), "a healthy sibling keeps the section due")

	queries := conn.queries
	body = w.MakeBody(context.Background())
	assert.Contains(t, body, "[system_perf]\n")
	assert.Equal(t, queries+1, conn.queries, "cooling sub-object must not be queried")

	conn.add(collector.NamespaceCIMV2, "Win32_ComputerSystem", row("Name", "host"))
	clock.Advance(config.DefaultDelayOnFail)
	body = w.MakeBody(context.Background())
	assert.Contains(t, body, "[computer_system]\n")
}

func TestWMI_SiblingFailureDoesNotExtendCooling(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	conn := newFakeConnector()
	perfKey := classKey(collector.NamespaceCIMV2, "Win32_PerfRawData_PerfOS_System")
	conn.add(collector.NamespaceCIMV2, "Win32_PerfRawData_PerfOS_System", row("Frequency_PerfTime", "10000000"))
	w := NewWMI(section.WMICPULoad, WMISeparator, testDeps(conn, clock))
	ctx := context.Background()
	perf, sys := w.SubObjects()[0], w.SubObjects()[1]

	// computer_system fails, system_perf is fine
	out := w.GenerateContent(ctx, section.UseEmbeddedName, false)
	assert.Contains(t, out, "[system_perf]\n")
	assert.Equal(t, start.Add(config.DefaultDelayOnFail), sys.AllowedFrom())

	// half an hour later system_perf starts failing too
	clock.Advance(30 * time.Minute)
	delete(conn.classes, perfKey)
	assert.Empty(t, w.GenerateContent(ctx, section.UseEmbeddedName, false))
	assert.Equal(t, start.Add(30*time.Minute+config.DefaultDelayOnFail), perf.AllowedFrom())
	assert.Equal(t, start.Add(config.DefaultDelayOnFail), sys.AllowedFrom(),
		"a failing sibling must not move the cooling period of another sub-object")
	assert.False(t, w.IsAllowedByTime())
	assert.Equal(t, sys.AllowedFrom(), w.AllowedFrom())

	// computer_system has recovered and is due again
	clock.Advance(31 * time.Minute)
	conn.add(collector.NamespaceCIMV2, "Win32_ComputerSystem", row("Name", "host"))
	assert.True(t, sys.IsAllowedByTime())
	assert.False(t, perf.IsAllowedByTime())
	assert.True(t, w.IsAllowedByTime())

	out = w.GenerateContent(ctx, section.UseEmbeddedName, false)
	assert.Contains(t, out, "[computer_system]\n")
	assert.NotContains(t, out, "[system_perf]")
}

func TestWMI_CompositeDisableCoolsEverySub(t *testing.T) {
	clock := newFakeClock()
	w := NewWMI(section.WMICPULoad, WMISeparator, testDeps(newFakeConnector(), clock))

	w.DisableSectionTemporary()
	assert.False(t, w.IsAllowedByTime())
	for _, sub := range w.SubObjects() {
		assert.Equal(t, clock.Now().Add(config.DefaultDelayOnFail), sub.AllowedFrom(), sub.UniqName())
	}
	clock.Advance(config.DefaultDelayOnFail)
	assert.True(t, w.IsAllowedByTime())
}

func TestWMI_CompositeAllFailingCoolsEverySub(t *testing.T) {
	clock := newFakeClock()
	w := NewWMI(section.MSExch, WMISeparator, testDeps(newFakeConnector(), clock))

	assert.Empty(t, w.GenerateContent(context.Background(), section.UseEmbeddedName, false))
	assert.False(t, w.IsAllowedByTime())
	for _, sub := range w.SubObjects() {
		assert.False(t, sub.IsAllowedByTime(), sub.UniqName())
	}
}

func TestWMI_StatusColumn(t *testing.T) {
	clock := newFakeClock()
	conn := newFakeConnector()
	conn.add(collector.NamespaceOHM, "Sensor",
		row("Index", "0", "Name", "CPU Core", "Parent", "/lpc/cpu", "SensorType", "Temperature", "Value", "45"),
		row("Index", "1", "Name", "GPU Core", "Parent", "/gpu/0", "SensorType", "Temperature", "Value", "51"))
	deps := testDeps(conn, clock)

	w := NewWMI(section.OHM, OHMSeparator, deps)
	lines := strings.Split(strings.TrimSuffix(w.MakeBody(context.Background()), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Index,Name,Parent,SensorType,Value,WMIStatus", lines[0])
	for _, l := range lines[1:] {
		f := strings.Split(l, ",")
		assert.Len(t, f, 6)
		assert.Equal(t, "OK", f[5])
	}

	conn.onQuery = func() { clock.Advance(deps.Config.WMI.Timeout.Duration + time.Second) }
	lines = strings.Split(strings.TrimSuffix(w.MakeBody(context.Background()), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ",Timeout"))
	assert.True(t, strings.HasSuffix(lines[2], ",Timeout"))
}
