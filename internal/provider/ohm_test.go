package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/vitalis/sectionagent/internal/childproc"
	"github.com/Guliveer/vitalis/sectionagent/internal/collector"
	"github.com/Guliveer/vitalis/sectionagent/internal/section"
)

// helperEnv turns the re-executed test binary into a stand-in sensor helper.
const helperEnv = "PROVIDER_TEST_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "sleep" {
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type fakeElevation bool

func (f fakeElevation) IsElevated() bool { return bool(f) }

func sensorConnector() *fakeConnector {
	conn := newFakeConnector()
	conn.add(collector.NamespaceOHM, "Sensor",
		row("Index", "0", "Name", "CPU Package", "Parent", "/intelcpu/0", "SensorType", "Temperature", "Value", "48"),
		row("Index", "1", "Name", "Fan #1", "Parent", "/lpc/nct6776f", "SensorType", "Fan", "Value", "1150"))
	return conn
}

func TestOHM_Construction(t *testing.T) {
	o := NewOHM(testDeps(sensorConnector(), newFakeClock()), nil, fakeElevation(true))
	assert.Equal(t, section.OHM, o.UniqName())
	assert.Equal(t, OHMSeparator, o.Policy().Separator())
}

func TestOHM_RequiresElevation(t *testing.T) {
	deps := testDeps(sensorConnector(), newFakeClock())

	o := NewOHM(deps, nil, fakeElevation(false))
	assert.False(t, o.IsAllowedByCurrentConfig())
	assert.Empty(t, o.GenerateContent(context.Background(), section.UseEmbeddedName, true))

	deps.Config.OHM.RequireElevation = false
	o = NewOHM(deps, nil, fakeElevation(false))
	assert.True(t, o.IsAllowedByCurrentConfig())
}

func TestOHM_ReadData(t *testing.T) {
	conn := sensorConnector()
	o := NewOHM(testDeps(conn, newFakeClock()), nil, fakeElevation(true))

	out := o.GenerateContent(context.Background(), section.UseEmbeddedName, true)
	table := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Greater(t, len(table), 2)
	assert.Equal(t, "<<<openhardwaremonitor:sep(44)>>>", table[0])
	assert.Equal(t, []string{"Index", "Name", "Parent", "SensorType", "Value", "WMIStatus"},
		strings.Split(table[1], ","))
	for _, l := range table[2:] {
		assert.Len(t, strings.Split(l, ","), 6)
	}
}

func TestOHM_Cache(t *testing.T) {
	clock := newFakeClock()
	conn := sensorConnector()
	deps := testDeps(conn, clock)
	o := NewOHM(deps, nil, fakeElevation(true))
	ctx := context.Background()

	first := o.GenerateContent(ctx, section.UseEmbeddedName, false)
	require.NotEmpty(t, first)
	assert.Equal(t, 1, conn.queries)

	assert.Equal(t, first, o.GenerateContent(ctx, section.UseEmbeddedName, false))
	assert.Equal(t, 1, conn.queries, "fresh result must come from cache")

	o.GenerateContent(ctx, section.UseEmbeddedName, true)
	assert.Equal(t, 2, conn.queries, "noCache must bypass the cache")

	clock.Advance(deps.Config.OHM.CacheTTL.Duration + time.Second)
	o.GenerateContent(ctx, section.UseEmbeddedName, false)
	assert.Equal(t, 3, conn.queries, "stale cache must be refreshed")
}

func TestOHM_HelperStartFailureCoolsDown(t *testing.T) {
	deps := testDeps(sensorConnector(), newFakeClock())
	deps.Config.OHM.HelperPath = filepath.Join(t.TempDir(), "no-such-ohm-helper")
	sup := childproc.NewSupervisor(nil, childproc.Options{})
	o := NewOHM(deps, sup, fakeElevation(true))
	defer o.Close()

	assert.Empty(t, o.GenerateContent(context.Background(), section.UseEmbeddedName, true))
	assert.False(t, o.Policy().IsAllowedByTime())
	assert.Equal(t, 0, sup.PID())
}

func TestOHM_CacheKeepsRequestedName(t *testing.T) {
	conn := sensorConnector()
	o := NewOHM(testDeps(conn, newFakeClock()), nil, fakeElevation(true))
	ctx := context.Background()

	first := o.GenerateContent(ctx, section.UseEmbeddedName, false)
	require.True(t, strings.HasPrefix(first, "<<<openhardwaremonitor:sep(44)>>>\n"))

	cached := o.GenerateContent(ctx, "sensors", false)
	assert.Equal(t, 1, conn.queries)
	assert.Equal(t, "<<<sensors:sep(44)>>>\n"+strings.TrimPrefix(first, "<<<openhardwaremonitor:sep(44)>>>\n"), cached)
}

func TestOHM_HelperLifecycle(t *testing.T) {
	t.Setenv(helperEnv, "sleep")
	exe, err := os.Executable()
	require.NoError(t, err)

	deps := testDeps(sensorConnector(), newFakeClock())
	deps.Config.OHM.HelperPath = exe
	sup := childproc.NewSupervisor(nil, childproc.Options{StopTimeout: 2 * time.Second})
	o := NewOHM(deps, sup, fakeElevation(true))
	defer o.Close()
	ctx := context.Background()

	require.NotEmpty(t, o.GenerateContent(ctx, section.UseEmbeddedName, true))
	require.True(t, sup.Running())
	pid := sup.PID()
	assert.NotZero(t, pid)

	require.NotEmpty(t, o.GenerateContent(ctx, section.UseEmbeddedName, true))
	assert.Equal(t, pid, sup.PID(), "a running helper must be reused")

	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	require.NoError(t, proc.Kill())
	require.Eventually(t, func() bool { return !sup.Running() }, 5*time.Second, 10*time.Millisecond)

	require.NotEmpty(t, o.GenerateContent(ctx, section.UseEmbeddedName, true))
	assert.True(t, sup.Running())
	assert.NotEqual(t, pid, sup.PID(), "a dead helper must be replaced")

	require.NoError(t, o.Close())
	assert.False(t, sup.Running())
	assert.Equal(t, 0, sup.PID())
}
