package monitor

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/nedscode/dbrouted/pkg/registry"
)

// DiscoveryModule abstracts the "module-specific discovery" step of a
// monitor tick (spec §4.B step 3, §9 redesign note): a pluggable strategy
// that opens a backend connection and reports its role flags. The SQL
// dialect itself stays out of scope (spec §1) — callers inject whatever
// driver.Driver and role query they need; this package only defines the
// shape, grounded on nedscode rwproxy's delegate-driver.Driver wrapping.
type DiscoveryModule interface {
	Configure(settings Settings) error
	Open(ctx context.Context, dsn string) (driver.Conn, error)
	Probe(ctx context.Context, conn driver.Conn) (registry.RoleFlags, error)
	HasSufficientPermissions(ctx context.Context, conn driver.Conn) error
	Diagnostics() map[string]any
}

// RoleQuery discovers a backend's role flags over an already-open
// connection. Implementations issue whatever dialect-specific statement
// they need; SimpleDiscovery treats this entirely as an opaque callback.
type RoleQuery func(ctx context.Context, conn driver.Conn) (registry.RoleFlags, error)

// PermissionCheck validates that the monitor's credentials can see
// everything role discovery needs. A nil check always succeeds.
type PermissionCheck func(ctx context.Context, conn driver.Conn) error

// SimpleDiscovery is the default DiscoveryModule: it delegates connection
// opening to an injected driver.Driver and role discovery to an injected
// RoleQuery, keeping this package free of any particular SQL dialect
// while still giving the monitor a concrete, mockable connect/probe path.
type SimpleDiscovery struct {
	Driver    driver.Driver
	Query     RoleQuery
	PermCheck PermissionCheck

	settings Settings
}

// NewSimpleDiscovery builds a SimpleDiscovery over the given driver and
// role query.
func NewSimpleDiscovery(d driver.Driver, query RoleQuery) *SimpleDiscovery {
	return &SimpleDiscovery{Driver: d, Query: query}
}

func (s *SimpleDiscovery) Configure(settings Settings) error {
	if s.Driver == nil {
		return fmt.Errorf("monitor: SimpleDiscovery requires a driver")
	}
	if s.Query == nil {
		return fmt.Errorf("monitor: SimpleDiscovery requires a role query")
	}
	s.settings = settings
	return nil
}

// Open opens a fresh connection via the configured driver. Connect-level
// timeouts are the caller's responsibility via ctx, matching the
// connect_timeout/connect_attempts keys of spec §6.
func (s *SimpleDiscovery) Open(ctx context.Context, dsn string) (driver.Conn, error) {
	if ctxOpener, ok := s.Driver.(driver.DriverContext); ok {
		connector, err := ctxOpener.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		return connector.Connect(ctx)
	}
	return s.Driver.Open(dsn)
}

func (s *SimpleDiscovery) Probe(ctx context.Context, conn driver.Conn) (registry.RoleFlags, error) {
	return s.Query(ctx, conn)
}

// HasSufficientPermissions runs the injected PermCheck, if any. A nil
// PermCheck is treated as always sufficient.
func (s *SimpleDiscovery) HasSufficientPermissions(ctx context.Context, conn driver.Conn) error {
	if s.PermCheck == nil {
		return nil
	}
	return s.PermCheck(ctx, conn)
}

func (s *SimpleDiscovery) Diagnostics() map[string]any {
	return map[string]any{
		"connect_attempts": s.settings.ConnectAttempts,
		"connect_timeout":  s.settings.ConnectTimeout.String(),
	}
}

// pingable checks for optional driver.Pinger support (spec §4.B step 2:
// "ping or, failing that, a trivial round-trip query").
func pingable(conn driver.Conn) (driver.Pinger, bool) {
	p, ok := conn.(driver.Pinger)
	return p, ok
}
