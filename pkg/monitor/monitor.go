// Package monitor implements the Monitor Engine (spec §4.B): it probes
// every configured backend on a fixed interval, updates its role flags,
// detects transitions, dispatches event hooks, and maintains a crash-safe
// journal of the last-published state.
package monitor

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nedscode/dbrouted/pkg/hook"
	"github.com/nedscode/dbrouted/pkg/journal"
	"github.com/nedscode/dbrouted/pkg/log"
	"github.com/nedscode/dbrouted/pkg/metrics"
	"github.com/nedscode/dbrouted/pkg/registry"
)

// MonitoredBackend pairs a registry.Backend with the connection-layer
// state the monitor needs to probe it: its DSN, a reused driver.Conn (if
// any), and the consecutive-failure count that drives the
// backend_connect_attempts key of spec §6.
type MonitoredBackend struct {
	Backend *registry.Backend
	DSN     string

	conn              driver.Conn
	consecutiveErrors int
}

// DisconnectFunc is called once per backend that just transitioned away
// from RUNNING, so the router can force-close client sessions bound to it
// (spec §4.B step 7). The connection router supplies this; the monitor
// package has no session concept of its own.
type DisconnectFunc func(backendName string)

// Monitor runs the probe/publish/dispatch loop for one named set of
// backends, mirroring the teacher's worker-loop shape
// (pkg/worker/health_monitor.go) generalized to backend role discovery.
type Monitor struct {
	Name     string
	Settings Settings

	Registry  *registry.Registry
	Discovery DiscoveryModule
	Disk      DiskChecker
	Journal   *journal.Store
	Hooks     *hook.Runner

	OnDisconnect DisconnectFunc

	mu        sync.Mutex
	monitored []*MonitoredBackend

	logger zerolog.Logger

	tickCount uint64

	cancel context.CancelFunc
	group  *errgroup.Group

	// adminPending wakes the tick loop early when an admin request is
	// queued, instead of waiting out the full Settings.Interval (spec
	// §4.B steps 1, 9).
	adminPending chan struct{}
}

// New constructs a Monitor. Discovery, Journal and Hooks may be supplied
// directly on the returned struct before Start.
func New(name string, settings Settings, reg *registry.Registry) *Monitor {
	return &Monitor{
		Name:         name,
		Settings:     settings,
		Registry:     reg,
		logger:       log.WithMonitor(name),
		adminPending: make(chan struct{}, 1),
	}
}

// AddBackend registers a backend with this monitor's probe list. The
// backend must already be present in the Registry.
func (m *Monitor) AddBackend(mb *MonitoredBackend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitored = append(m.monitored, mb)
}

// WakeAdmin signals the tick loop that an admin request has been queued,
// so it runs a tick immediately instead of waiting out the rest of
// Settings.Interval (spec §4.B steps 1, 9).
func (m *Monitor) WakeAdmin() {
	select {
	case m.adminPending <- struct{}{}:
	default:
	}
}

// Start launches the monitor's tick loop on its own goroutine, ticking
// every Settings.Interval until ctx is cancelled or Stop is called.
// Start-up staleness handling (spec §4.B): a journal older than
// JournalMaxAge is deleted before the first tick rather than restored.
//
// Before the loop is spawned, Start performs a one-time permission probe
// on every monitored backend (spec §4.B lifecycle); a failure aborts
// Start and the monitor remains STOPPED (spec §7).
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.Settings.Validate(); err != nil {
		return err
	}

	if err := m.checkPermissions(ctx); err != nil {
		return err
	}

	if m.Journal != nil && m.Settings.JournalMaxAge > 0 && m.Journal.IsStale(m.Settings.JournalMaxAge) {
		if err := m.Journal.RemoveStale(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to remove stale journal")
		}
	} else if m.Journal != nil {
		if snap, err := m.Journal.Read(m.Settings.JournalMaxAge); err == nil {
			m.restoreFromJournal(snap)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	group, gctx := errgroup.WithContext(runCtx)
	m.group = group

	group.Go(func() error {
		m.loop(gctx)
		return nil
	})

	return nil
}

// checkPermissions opens a connection to every monitored backend and runs
// Discovery.HasSufficientPermissions over it, closing the connection
// afterward regardless of outcome. It is a no-op if no Discovery module is
// configured, matching probe()'s own tolerance of a nil Discovery during
// tests that never call Start.
func (m *Monitor) checkPermissions(ctx context.Context) error {
	if m.Discovery == nil {
		return nil
	}

	m.mu.Lock()
	backends := make([]*MonitoredBackend, len(m.monitored))
	copy(backends, m.monitored)
	m.mu.Unlock()

	for _, mb := range backends {
		connectCtx, cancel := context.WithTimeout(ctx, m.Settings.ConnectTimeout)
		conn, err := m.Discovery.Open(connectCtx, mb.DSN)
		if err != nil {
			cancel()
			return fmt.Errorf("monitor: permission check %s: %w", mb.Backend.Name, err)
		}
		err = m.Discovery.HasSufficientPermissions(connectCtx, conn)
		closeErr := conn.Close()
		cancel()
		if err != nil {
			return fmt.Errorf("monitor: insufficient permissions on %s: %w", mb.Backend.Name, err)
		}
		if closeErr != nil {
			m.logger.Warn().Err(closeErr).Str("backend", mb.Backend.Name).Msg("failed to close permission-check connection")
		}
	}
	return nil
}

// Stop cancels the tick loop, waits for it to exit, and closes every
// backend's probe connection (spec §4.B: "stop() closes all probe
// connections").
func (m *Monitor) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.group != nil {
		err = m.group.Wait()
	}

	m.mu.Lock()
	backends := make([]*MonitoredBackend, len(m.monitored))
	copy(backends, m.monitored)
	m.mu.Unlock()

	for _, mb := range backends {
		m.closeConn(mb)
	}

	return err
}

// closeConn closes mb's probe connection, if any, and clears it.
func (m *Monitor) closeConn(mb *MonitoredBackend) {
	if mb.conn == nil {
		return
	}
	if err := mb.conn.Close(); err != nil {
		m.logger.Warn().Err(err).Str("backend", mb.Backend.Name).Msg("failed to close probe connection")
	}
	mb.conn = nil
}

// restoreFromJournal republishes previously-saved role flags before the
// first probe completes, so the router has a reasonable view of the
// world immediately after a restart (spec §4.C).
func (m *Monitor) restoreFromJournal(snap journal.Snapshot) {
	byName := make(map[string]uint64, len(snap.Backends))
	for _, bs := range snap.Backends {
		byName[bs.Name] = bs.Flags
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.monitored {
		if flags, ok := byName[mb.Backend.Name]; ok {
			mb.Backend.SetFlags(registry.RoleFlags(flags))
		}
	}
}

// loop sleeps until Settings.Interval elapses or an admin request wakes it
// early (spec §4.B step 1: "a single flag indicates whether any admin
// request is pending; if set, the loop wakes early"; step 9 bounds the
// wake latency to a 100ms granularity).
func (m *Monitor) loop(ctx context.Context) {
	const wakeGranularity = 100 * time.Millisecond

	ticker := time.NewTicker(m.Settings.Interval)
	defer ticker.Stop()

	wake := time.NewTicker(wakeGranularity)
	defer wake.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-wake.C:
			select {
			case <-m.adminPending:
				m.tick(ctx)
			default:
			}
		}
	}
}

// tick runs exactly one monitor cycle, per spec §4.B's nine steps:
// drain admin requests, probe, module-specific discovery, disk check,
// publish, detect/dispatch transitions, force-disconnect, journal,
// increment tick count.
func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	backends := make([]*MonitoredBackend, len(m.monitored))
	copy(backends, m.monitored)
	m.mu.Unlock()

	for _, mb := range backends {
		m.tickOne(ctx, mb)
	}

	m.tickCount++
	metrics.MonitorTicks.WithLabelValues(m.Name).Inc()
	m.logger.Debug().Uint64("tick", m.tickCount).Msg("monitor tick complete")
}

func (m *Monitor) tickOne(ctx context.Context, mb *MonitoredBackend) {
	prevFlags := mb.Backend.Flags()

	// Step 1: drain any pending admin request (MAINT/DRAIN toggles).
	req := mb.Backend.TakeAdminRequest()
	adminFlags := applyAdminRequest(prevFlags, req)

	// Step 2+3: connect/ping and module-specific role discovery.
	newFlags, err := m.probe(ctx, mb)
	if err != nil {
		mb.consecutiveErrors++
		metrics.BackendConsecutiveErrors.WithLabelValues(m.Name, mb.Backend.Name).Set(float64(mb.consecutiveErrors))
		if mb.consecutiveErrors < m.Settings.ConnectAttempts {
			// Not yet past the configured attempt budget: keep the
			// previous published role state (spec §4.B step 2), but still
			// apply the drained admin request so it is not lost.
			if req != registry.AdminNone {
				mb.Backend.SetFlags(prevFlags&^(registry.MAINT|registry.DRAINING) | adminFlags)
			}
			return
		}
		// Past the attempt budget: the backend is down. adminFlags
		// carries no role bits, only whatever MAINT/DRAINING survived
		// the admin-request drain above.
		newFlags = adminFlags
	} else {
		mb.consecutiveErrors = 0
		metrics.BackendConsecutiveErrors.WithLabelValues(m.Name, mb.Backend.Name).Set(0)
		newFlags |= adminFlags & (registry.MAINT | registry.DRAINING)
	}

	// Step 4: disk space check.
	if m.Disk != nil && m.Settings.DiskSpaceCheckInterval > 0 {
		if _, exceeded, derr := checkDiskSpace(m.Disk, m.Settings.DiskSpaceThresholds, mb.Backend.Name); derr == nil && exceeded {
			newFlags |= registry.DISK_EXHAUSTED
		}
	}

	// WAS_MASTER is sticky: once a backend has been seen as MASTER it
	// stays marked, even after it steps down (spec's role-flag table).
	if newFlags.Has(registry.MASTER) || prevFlags.Has(registry.MASTER) || prevFlags.Has(registry.WAS_MASTER) {
		newFlags |= registry.WAS_MASTER
	}

	// Step 5: publish.
	mb.Backend.SetFlags(newFlags)
	m.publishMetrics(mb.Backend.Name, newFlags)

	// Step 6: detect and dispatch transitions.
	cat, dispatched := computeCategory(prevFlags, newFlags)
	if dispatched {
		m.logger.Info().Str("backend", mb.Backend.Name).Str("event", cat.String()).Msg("backend role transition")
	}
	if dispatched && m.Settings.Dispatch(cat) {
		metrics.MonitorTransitions.WithLabelValues(m.Name, cat.String()).Inc()
		m.dispatchHook(mb, cat)
	}

	// Step 7: force-disconnect sessions on a backend that just left
	// RUNNING.
	if prevFlags.Has(registry.RUNNING) && !newFlags.Has(registry.RUNNING) && m.OnDisconnect != nil {
		m.OnDisconnect(mb.Backend.Name)
	}

	// Step 8: journal.
	m.writeJournal()
}

// applyAdminRequest folds a drained AdminRequest into the flag word ahead
// of a fresh probe, so MAINT/DRAINING bits survive even if discovery
// itself fails this tick.
func applyAdminRequest(prev registry.RoleFlags, req registry.AdminRequest) registry.RoleFlags {
	base := prev & (registry.MAINT | registry.DRAINING)
	switch req {
	case registry.AdminMaintOn:
		return base | registry.MAINT
	case registry.AdminMaintOff:
		return base &^ registry.MAINT
	case registry.AdminDrainOn:
		return base | registry.DRAINING
	case registry.AdminDrainOff:
		return base &^ registry.DRAINING
	default:
		return base
	}
}

func (m *Monitor) probe(ctx context.Context, mb *MonitoredBackend) (registry.RoleFlags, error) {
	if m.Discovery == nil {
		return 0, fmt.Errorf("monitor: no discovery module configured")
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.Settings.ConnectTimeout)
	defer cancel()

	if mb.conn == nil {
		conn, err := m.Discovery.Open(connectCtx, mb.DSN)
		if err != nil {
			return 0, fmt.Errorf("monitor: connect %s: %w", mb.Backend.Name, err)
		}
		mb.conn = conn
	}

	if pinger, ok := pingable(mb.conn); ok {
		if err := pinger.Ping(connectCtx); err != nil {
			m.closeConn(mb)
			return 0, fmt.Errorf("monitor: ping %s: %w", mb.Backend.Name, err)
		}
	}

	flags, err := m.Discovery.Probe(connectCtx, mb.conn)
	if err != nil {
		m.closeConn(mb)
		return 0, fmt.Errorf("monitor: probe %s: %w", mb.Backend.Name, err)
	}

	return flags | registry.RUNNING, nil
}

func (m *Monitor) publishMetrics(backend string, flags registry.RoleFlags) {
	roles := []registry.RoleFlags{
		registry.RUNNING, registry.MASTER, registry.SLAVE, registry.JOINED, registry.NDB,
		registry.MAINT, registry.DRAINING, registry.DISK_EXHAUSTED, registry.AUTH_ERROR, registry.WAS_MASTER,
	}
	names := []string{
		"RUNNING", "MASTER", "SLAVE", "JOINED", "NDB",
		"MAINT", "DRAINING", "DISK_EXHAUSTED", "AUTH_ERROR", "WAS_MASTER",
	}
	for i, bit := range roles {
		v := 0.0
		if flags.Has(bit) {
			v = 1.0
		}
		metrics.BackendRole.WithLabelValues(m.Name, backend, names[i]).Set(v)
	}
}

func (m *Monitor) dispatchHook(mb *MonitoredBackend, cat Category) {
	if m.Hooks == nil || m.Settings.Script == "" {
		return
	}

	ctx := hook.Context{
		Initiator: mb.Backend.Addr(),
		Event:     cat.String(),
		Parent:    m.parentOf(mb.Backend),
		Children:  m.childrenOf(mb.Backend),
	}
	ctx.NodeList, ctx.List, ctx.MasterList, ctx.SlaveList, ctx.SyncedList, ctx.Credentials = m.hookLists()

	cmd := m.Hooks.Render(m.Settings.Script, ctx)
	m.Hooks.Enqueue(hook.Job{
		Monitor: m.Name,
		Backend: mb.Backend.Name,
		Command: cmd,
		Timeout: m.Settings.ScriptTimeout,
	})
}

// hookLists builds the $NODELIST/$LIST/$MASTERLIST/$SLAVELIST/$SYNCEDLIST/
// $CREDENTIALS tokens from the current registry snapshot (spec §4.D token
// table). "Synced" backends are those carrying the JOINED bit, the only
// role flag this proxy tracks for cluster-membership sync state.
func (m *Monitor) hookLists() (nodeList, list, masterList, slaveList, syncedList, credentials string) {
	if m.Registry == nil {
		return
	}

	var nodes, all, masters, slaves, synced, creds []string
	for _, b := range m.Registry.All() {
		flags := b.Flags()
		all = append(all, b.Addr())
		if flags.Has(registry.RUNNING) {
			nodes = append(nodes, b.Addr())
			creds = append(creds, m.Settings.User+":"+m.Settings.Password+"@"+b.Addr())
		}
		if flags.Has(registry.MASTER) {
			masters = append(masters, b.Addr())
		}
		if flags.Has(registry.SLAVE) {
			slaves = append(slaves, b.Addr())
		}
		if flags.Has(registry.JOINED) {
			synced = append(synced, b.Addr())
		}
	}

	return strings.Join(nodes, ","), strings.Join(all, ","), strings.Join(masters, ","),
		strings.Join(slaves, ","), strings.Join(synced, ","), strings.Join(creds, ",")
}

func (m *Monitor) parentOf(b *registry.Backend) string {
	if b.MasterID == "" {
		return ""
	}
	if parent := m.Registry.Lookup(b.MasterID); parent != nil {
		return parent.Addr()
	}
	return ""
}

func (m *Monitor) childrenOf(b *registry.Backend) string {
	var out string
	for _, other := range m.Registry.All() {
		if other.MasterID == b.Name {
			if out != "" {
				out += ","
			}
			out += other.Addr()
		}
	}
	return out
}

func (m *Monitor) writeJournal() {
	if m.Journal == nil {
		return
	}

	snap := journal.Snapshot{}
	for _, b := range m.Registry.All() {
		snap.Backends = append(snap.Backends, journal.BackendState{
			Name:  b.Name,
			Flags: uint64(b.Flags()),
		})
		if b.Flags().Has(registry.MASTER) {
			snap.Master = b.Name
		}
	}

	if err := m.Journal.Write(snap); err != nil {
		m.logger.Error().Err(err).Msg("journal write failed")
		metrics.JournalWrites.WithLabelValues(m.Name, "error").Inc()
		return
	}
	metrics.JournalWrites.WithLabelValues(m.Name, "ok").Inc()
}

// TickCount returns the number of completed ticks, for tests and
// diagnostics.
func (m *Monitor) TickCount() uint64 {
	return m.tickCount
}
