package monitor

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedscode/dbrouted/pkg/registry"
)

type mockConn struct {
	pingErr error
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *mockConn) Close() error                              { return nil }
func (c *mockConn) Begin() (driver.Tx, error)                  { return nil, errors.New("not implemented") }
func (c *mockConn) Ping(ctx context.Context) error             { return c.pingErr }

type mockDriver struct {
	conn *mockConn
	err  error
}

func (d *mockDriver) Open(name string) (driver.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func TestSimpleDiscoveryConfigureRequiresDriverAndQuery(t *testing.T) {
	d := &SimpleDiscovery{}
	err := d.Configure(DefaultSettings())
	assert.Error(t, err)
}

func TestSimpleDiscoveryOpenDelegatesToDriver(t *testing.T) {
	conn := &mockConn{}
	d := NewSimpleDiscovery(&mockDriver{conn: conn}, func(ctx context.Context, c driver.Conn) (registry.RoleFlags, error) {
		return registry.SLAVE, nil
	})
	require.NoError(t, d.Configure(DefaultSettings()))

	got, err := d.Open(context.Background(), "dsn")
	require.NoError(t, err)
	assert.Same(t, conn, got)
}

func TestSimpleDiscoveryOpenPropagatesDriverError(t *testing.T) {
	d := NewSimpleDiscovery(&mockDriver{err: errors.New("refused")}, func(ctx context.Context, c driver.Conn) (registry.RoleFlags, error) {
		return registry.SLAVE, nil
	})
	require.NoError(t, d.Configure(Settings{ConnectAttempts: 1, ConnectTimeout: 1}))
	_, err := d.Open(context.Background(), "dsn")
	assert.Error(t, err)
}

func TestSimpleDiscoveryProbeDelegatesToRoleQuery(t *testing.T) {
	conn := &mockConn{}
	d := NewSimpleDiscovery(&mockDriver{conn: conn}, func(ctx context.Context, c driver.Conn) (registry.RoleFlags, error) {
		return registry.MASTER, nil
	})
	flags, err := d.Probe(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, registry.MASTER, flags)
}

func TestSimpleDiscoveryHasSufficientPermissionsDefaultsToOK(t *testing.T) {
	d := &SimpleDiscovery{}
	assert.NoError(t, d.HasSufficientPermissions(context.Background(), &mockConn{}))
}

func TestSimpleDiscoveryHasSufficientPermissionsRunsCheck(t *testing.T) {
	d := &SimpleDiscovery{PermCheck: func(ctx context.Context, c driver.Conn) error {
		return errors.New("missing REPLICATION CLIENT")
	}}
	err := d.HasSufficientPermissions(context.Background(), &mockConn{})
	assert.Error(t, err)
}

func TestPingableDetectsPingerSupport(t *testing.T) {
	_, ok := pingable(&mockConn{})
	assert.True(t, ok)
}
