package registry

import "strings"

// RoleFlags is the atomic bit word describing a backend's observed role
// and health. Bits are independent; several may be set simultaneously
// (e.g. RUNNING|MASTER|WAS_MASTER).
type RoleFlags uint64

const (
	RUNNING RoleFlags = 1 << iota
	MASTER
	SLAVE
	JOINED
	NDB
	MAINT
	DRAINING
	DISK_EXHAUSTED
	AUTH_ERROR
	WAS_MASTER
)

// roleBits is the subset of flags that describe replication role, as
// opposed to health/administrative state. Transition-category detection
// (monitor package) masks to this set.
const roleBits = RUNNING | MASTER | SLAVE | JOINED | NDB

// RoleBits masks f down to the replication-role-relevant bits
// (RUNNING, MASTER, SLAVE, JOINED, NDB), per spec §4.B.
func RoleBits(f RoleFlags) RoleFlags {
	return f & roleBits
}

var names = []struct {
	bit  RoleFlags
	name string
}{
	{RUNNING, "RUNNING"},
	{MASTER, "MASTER"},
	{SLAVE, "SLAVE"},
	{JOINED, "JOINED"},
	{NDB, "NDB"},
	{MAINT, "MAINT"},
	{DRAINING, "DRAINING"},
	{DISK_EXHAUSTED, "DISK_EXHAUSTED"},
	{AUTH_ERROR, "AUTH_ERROR"},
	{WAS_MASTER, "WAS_MASTER"},
}

// String renders the set bits as a "|"-joined list, e.g. "RUNNING|MASTER".
func (f RoleFlags) String() string {
	if f == 0 {
		return ""
	}
	var b strings.Builder
	first := true
	for _, n := range names {
		if f&n.bit != 0 {
			if !first {
				b.WriteByte('|')
			}
			b.WriteString(n.name)
			first = false
		}
	}
	return b.String()
}

// Has reports whether all bits in mask are set in f.
func (f RoleFlags) Has(mask RoleFlags) bool {
	return f&mask == mask
}

// Matches implements the router's candidate predicate: (f & mask) == (mask & value).
func (f RoleFlags) Matches(mask, value RoleFlags) bool {
	return f&mask == mask&value
}
