package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedscode/dbrouted/pkg/monitor"
	"github.com/nedscode/dbrouted/pkg/registry"
)

func newTestSetup(t *testing.T) (*Admin, *registry.Registry, *registry.Backend) {
	t.Helper()

	reg := registry.New()
	b := registry.NewBackend("b1", "127.0.0.1", 3306, 1)
	require.NoError(t, reg.Register(b))

	m := monitor.New("pool1", monitor.DefaultSettings(), reg)

	a := New()
	require.NoError(t, a.RegisterMonitor("pool1", m))

	return a, reg, b
}

func TestRegisterMonitorRejectsDuplicateName(t *testing.T) {
	a, reg, _ := newTestSetup(t)
	m2 := monitor.New("pool1", monitor.DefaultSettings(), reg)
	err := a.RegisterMonitor("pool1", m2)
	assert.Error(t, err)
}

func TestDeregisterMonitorRemovesIt(t *testing.T) {
	a, _, _ := newTestSetup(t)
	a.DeregisterMonitor("pool1")
	assert.Nil(t, a.Monitor("pool1"))
	assert.Empty(t, a.MonitorNames())
}

func TestMonitorNamesSorted(t *testing.T) {
	a, reg, _ := newTestSetup(t)
	require.NoError(t, a.RegisterMonitor("zeta", monitor.New("zeta", monitor.DefaultSettings(), reg)))
	require.NoError(t, a.RegisterMonitor("alpha", monitor.New("alpha", monitor.DefaultSettings(), reg)))

	assert.Equal(t, []string{"alpha", "pool1", "zeta"}, a.MonitorNames())
}

func TestForEachMonitorVisitsAll(t *testing.T) {
	a, reg, _ := newTestSetup(t)
	require.NoError(t, a.RegisterMonitor("pool2", monitor.New("pool2", monitor.DefaultSettings(), reg)))

	seen := map[string]bool{}
	a.ForEachMonitor(func(name string, m *monitor.Monitor) {
		seen[name] = true
	})
	assert.True(t, seen["pool1"])
	assert.True(t, seen["pool2"])
}

func TestWithLockRunsExclusively(t *testing.T) {
	a, _, _ := newTestSetup(t)
	var names []string
	a.WithLock(func(inner *Admin) {
		names = inner.MonitorNames()
	})
	assert.Equal(t, []string{"pool1"}, names)
}

func TestSetMaintenanceOnUnknownBackendErrors(t *testing.T) {
	a, _, _ := newTestSetup(t)
	err := a.SetMaintenance("ghost", true)
	assert.Error(t, err)
}

func TestSetMaintenanceQueuesAdminRequest(t *testing.T) {
	a, _, b := newTestSetup(t)
	require.NoError(t, a.SetMaintenance("b1", true))
	assert.Equal(t, registry.AdminMaintOn, b.TakeAdminRequest())
}

func TestSetMaintenanceOffQueuesAdminRequest(t *testing.T) {
	a, _, b := newTestSetup(t)
	require.NoError(t, a.SetMaintenance("b1", false))
	assert.Equal(t, registry.AdminMaintOff, b.TakeAdminRequest())
}

func TestSetDrainingQueuesAdminRequest(t *testing.T) {
	a, _, b := newTestSetup(t)
	require.NoError(t, a.SetDraining("b1", true))
	assert.Equal(t, registry.AdminDrainOn, b.TakeAdminRequest())
}

func TestSetMaintenanceOverwritingUnreadRequestStillSucceeds(t *testing.T) {
	a, _, b := newTestSetup(t)
	require.NoError(t, a.SetMaintenance("b1", true))
	// b1's admin slot now holds AdminMaintOn, never drained by a tick.
	require.NoError(t, a.SetDraining("b1", true))
	assert.Equal(t, registry.AdminDrainOn, b.TakeAdminRequest(), "the later request wins; the overwritten one is only logged, not blocked")
}

func TestSetDrainingOnUnknownBackendErrors(t *testing.T) {
	a, _, _ := newTestSetup(t)
	err := a.SetDraining("ghost", true)
	assert.Error(t, err)
}

func TestStatusReturnsSortedSnapshot(t *testing.T) {
	a, reg, _ := newTestSetup(t)
	b2 := registry.NewBackend("a-first", "127.0.0.1", 3307, 1)
	require.NoError(t, reg.Register(b2))

	status := a.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "a-first", status[0].Name)
	assert.Equal(t, "b1", status[1].Name)
	assert.Equal(t, "[127.0.0.1]:3306", status[1].Address)
}

func TestStatusAcrossMultipleMonitors(t *testing.T) {
	a, _, _ := newTestSetup(t)
	reg2 := registry.New()
	b2 := registry.NewBackend("other", "10.0.0.1", 3306, 1)
	require.NoError(t, reg2.Register(b2))
	require.NoError(t, a.RegisterMonitor("pool2", monitor.New("pool2", monitor.DefaultSettings(), reg2)))

	status := a.Status()
	names := make([]string, 0, len(status))
	for _, s := range status {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"b1", "other"}, names)
}
