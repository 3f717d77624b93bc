package registry

import (
	"strconv"
	"sync/atomic"
)

// Backend is a database server instance the proxy can route to.
//
// Stable identity fields (Name, Address, Port) are set at construction and
// never change. Mutable state (role flags, counters) lives in aligned
// machine words mutated via atomic load/store, per spec §4.A: readers never
// block writers.
type Backend struct {
	Name    string
	Address string
	Port    int

	// Weight is the non-negative fairness weight used by the router.
	Weight int

	// MasterID is the stable Name of the backend this one replicates
	// from, or "" if none is known. Used to compute the $PARENT/$CHILDREN
	// hook tokens (spec §4.D); a supplemented field (SPEC_FULL §3).
	MasterID string

	flags            atomic.Uint64
	connections      atomic.Int64
	lifetimeSessions atomic.Int64

	// adminRequest is the single-writer(admin)/single-reader(monitor)
	// slot described in spec §3. It holds an AdminRequest value.
	adminRequest atomic.Uint32
}

// NewBackend constructs a Backend with zero role flags and zero counters.
func NewBackend(name, address string, port, weight int) *Backend {
	b := &Backend{Name: name, Address: address, Port: port, Weight: weight}
	return b
}

// Flags atomically loads the backend's current role flags.
func (b *Backend) Flags() RoleFlags {
	return RoleFlags(b.flags.Load())
}

// SetFlags atomically publishes new role flags. Per spec's invariant, this
// must only be called at the end of a monitor tick (publish phase).
func (b *Backend) SetFlags(f RoleFlags) {
	b.flags.Store(uint64(f))
}

// Connections returns the current number of open client sessions bound to
// this backend.
func (b *Backend) Connections() int64 {
	return b.connections.Load()
}

// LifetimeSessions returns the total number of sessions ever bound to this
// backend since process start.
func (b *Backend) LifetimeSessions() int64 {
	return b.lifetimeSessions.Load()
}

// IncrConnections increments the connection counter and the lifetime
// session counter together, as happens exactly once at session creation
// (spec §3 invariant).
func (b *Backend) IncrConnections() int64 {
	b.lifetimeSessions.Add(1)
	return b.connections.Add(1)
}

// DecrConnections decrements the connection counter, as happens exactly
// once at session termination.
func (b *Backend) DecrConnections() int64 {
	return b.connections.Add(-1)
}

// AdminRequest is a pending administrative action on a Monitored-Backend.
type AdminRequest uint32

const (
	AdminNone AdminRequest = iota
	AdminMaintOn
	AdminMaintOff
	AdminDrainOn
	AdminDrainOff
)

func (r AdminRequest) String() string {
	switch r {
	case AdminNone:
		return "none"
	case AdminMaintOn:
		return "maint_on"
	case AdminMaintOff:
		return "maint_off"
	case AdminDrainOn:
		return "drain_on"
	case AdminDrainOff:
		return "drain_off"
	default:
		return "unknown"
	}
}

// RequestAdmin atomically swaps in a new admin request, returning the
// previous one so the caller can warn on overwrite of an unread request
// (spec §6: "Overwriting an unread prior request logs a warning").
func (b *Backend) RequestAdmin(req AdminRequest) AdminRequest {
	prev := b.adminRequest.Swap(uint32(req))
	return AdminRequest(prev)
}

// TakeAdminRequest atomically swaps the slot back to AdminNone and returns
// whatever was pending. Called by the monitor at tick start.
func (b *Backend) TakeAdminRequest() AdminRequest {
	prev := b.adminRequest.Swap(uint32(AdminNone))
	return AdminRequest(prev)
}

// Addr renders the "[addr]:port" form used by hook tokens and diagnostics.
func (b *Backend) Addr() string {
	return "[" + b.Address + "]:" + strconv.Itoa(b.Port)
}
