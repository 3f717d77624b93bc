// Package admin implements the Admin Control Plane (spec §4.G): a single
// process-wide lock guarding the monitor/backend registries, exposing the
// MAINT/DRAIN administrative operations spec §6 describes. Grounded on
// the locked-registry shape of cuemby-warren's pkg/manager.Manager,
// stripped of its Raft/FSM consensus layer — this proxy is single-process,
// so there is no multi-manager quorum to replicate admin state across
// (see DESIGN.md for the full dependency-drop justification).
package admin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nedscode/dbrouted/pkg/log"
	"github.com/nedscode/dbrouted/pkg/monitor"
	"github.com/nedscode/dbrouted/pkg/registry"
)

// Admin is the single lock described in spec §5: every administrative
// operation against a monitor or backend goes through it.
type Admin struct {
	mu       sync.Mutex
	monitors map[string]*monitor.Monitor
}

// New creates an empty Admin control plane.
func New() *Admin {
	return &Admin{monitors: make(map[string]*monitor.Monitor)}
}

// RegisterMonitor adds a running monitor under name. Returns an error if
// the name is already taken.
func (a *Admin) RegisterMonitor(name string, m *monitor.Monitor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.monitors[name]; exists {
		return fmt.Errorf("admin: monitor %q already registered", name)
	}
	a.monitors[name] = m
	return nil
}

// DeregisterMonitor removes a monitor by name.
func (a *Admin) DeregisterMonitor(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.monitors, name)
}

// Monitor returns the named monitor, or nil if none is registered.
func (a *Admin) Monitor(name string) *monitor.Monitor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.monitors[name]
}

// MonitorNames returns every registered monitor name, sorted for
// deterministic diagnostics output.
func (a *Admin) MonitorNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.monitors))
	for name := range a.monitors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForEachMonitor calls fn once per registered monitor while holding the
// admin lock, generalized from the original's for_each_monitor helper.
// fn must not itself call back into Admin.
func (a *Admin) ForEachMonitor(fn func(name string, m *monitor.Monitor)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, m := range a.monitors {
		fn(name, m)
	}
}

// WithLock runs fn while holding the admin lock, the run_under_lock
// escape hatch described in spec §4.G for callers that need several
// operations to appear atomic to the rest of the control plane.
func (a *Admin) WithLock(fn func(*Admin)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

// backendFor finds the named backend and its owning monitor across every
// registered monitor's registry. Backend names are process-unique (spec
// §3), so the first match is authoritative.
func (a *Admin) backendFor(backendName string) (*registry.Backend, *monitor.Monitor) {
	for _, m := range a.monitors {
		if m.Registry == nil {
			continue
		}
		if b := m.Registry.Lookup(backendName); b != nil {
			return b, m
		}
	}
	return nil, nil
}

// logOverwrite warns when an admin request overwrites one that was never
// drained by a monitor tick (spec §6: "Overwriting an unread prior request
// logs a warning").
func logOverwrite(backendName string, prev registry.AdminRequest) {
	if prev == registry.AdminNone {
		return
	}
	log.Logger.Warn().
		Str("backend", backendName).
		Str("overwritten", prev.String()).
		Msg("admin request overwrote an unread prior request")
}

// SetMaintenance requests the MAINT flag be set or cleared on a backend.
// The request is drained and applied at the start of that backend's next
// monitor tick (spec §3: admin requests are a single-writer/single-reader
// slot read once per tick), or immediately if the monitor's loop is idle
// waiting on its ticker (spec §4.B step 1).
func (a *Admin) SetMaintenance(backendName string, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, m := a.backendFor(backendName)
	if b == nil {
		return fmt.Errorf("admin: unknown backend %q", backendName)
	}
	var prev registry.AdminRequest
	if on {
		prev = b.RequestAdmin(registry.AdminMaintOn)
	} else {
		prev = b.RequestAdmin(registry.AdminMaintOff)
	}
	logOverwrite(backendName, prev)
	if m != nil {
		m.WakeAdmin()
	}
	return nil
}

// SetDraining requests the DRAINING flag be set or cleared on a backend.
func (a *Admin) SetDraining(backendName string, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, m := a.backendFor(backendName)
	if b == nil {
		return fmt.Errorf("admin: unknown backend %q", backendName)
	}
	var prev registry.AdminRequest
	if on {
		prev = b.RequestAdmin(registry.AdminDrainOn)
	} else {
		prev = b.RequestAdmin(registry.AdminDrainOff)
	}
	logOverwrite(backendName, prev)
	if m != nil {
		m.WakeAdmin()
	}
	return nil
}

// BackendStatus is a diagnostics snapshot of one backend, for the admin
// CLI's status output.
type BackendStatus struct {
	Name        string
	Address     string
	Flags       string
	Connections int64
}

// Status returns a point-in-time snapshot of every backend across every
// registered monitor.
func (a *Admin) Status() []BackendStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []BackendStatus
	for _, m := range a.monitors {
		if m.Registry == nil {
			continue
		}
		for _, b := range m.Registry.All() {
			out = append(out, BackendStatus{
				Name:        b.Name,
				Address:     b.Addr(),
				Flags:       b.Flags().String(),
				Connections: b.Connections(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
