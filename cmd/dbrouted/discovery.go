package main

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net"
	"time"

	"github.com/nedscode/dbrouted/pkg/registry"
)

// tcpDriver is the default driver.Driver this binary wires into
// monitor.SimpleDiscovery: it treats "reachable over TCP" as the whole
// role query, since the SQL dialect needed to distinguish master/slave
// is explicitly out of scope (spec §1). A real deployment replaces this
// with a dialect-specific driver.Driver and RoleQuery.
type tcpDriver struct {
	dialTimeout time.Duration
}

func (d *tcpDriver) Open(dsn string) (driver.Conn, error) {
	timeout := d.dialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	conn, err := net.DialTimeout("tcp", dsn, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", dsn, err)
	}
	return &tcpConn{conn: conn}, nil
}

// tcpConn adapts a net.Conn to database/sql/driver.Conn just well enough
// for monitor.SimpleDiscovery to open and ping it; it implements no SQL
// statement execution since this discovery never issues one.
type tcpConn struct {
	conn net.Conn
}

func (c *tcpConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("tcpConn: statements not supported")
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("tcpConn: transactions not supported")
}

func (c *tcpConn) Ping(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(deadline)
	}
	return nil
}

var _ driver.Pinger = (*tcpConn)(nil)

// reachabilityRoleQuery reports RUNNING whenever the connection is open;
// it cannot distinguish MASTER/SLAVE without a SQL dialect, so it leaves
// those bits for an operator-supplied RoleQuery to set in a real
// deployment.
func reachabilityRoleQuery(ctx context.Context, conn driver.Conn) (registry.RoleFlags, error) {
	return 0, nil
}
