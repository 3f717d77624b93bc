package monitor

import "github.com/nedscode/dbrouted/pkg/registry"

// Category names the kind of role transition detected between two
// consecutive ticks (spec §4.B step 6), generalized from the original
// monitor's UP_EVENT/DOWN_EVENT/LOSS_EVENT/NEW_EVENT switch over the
// SERVER_MASTER|SERVER_SLAVE mask to the full RUNNING|MASTER|SLAVE|
// JOINED|NDB role mask.
type Category int

const (
	NoCategory Category = iota
	MasterDown
	MasterUp
	SlaveDown
	SlaveUp
	ServerDown
	ServerUp
	LostMaster
	LostSlave
	NewMaster
	NewSlave
	NDBDown
	NDBUp
	LostNDB
	NewNDB
	JoinedDown
	JoinedUp
	LostJoined
	NewJoined
)

// AllCategories is the default event mask: every category dispatches.
const AllCategories Category = -1

func (c Category) String() string {
	switch c {
	case NoCategory:
		return "no_event"
	case MasterDown:
		return "master_down"
	case MasterUp:
		return "master_up"
	case SlaveDown:
		return "slave_down"
	case SlaveUp:
		return "slave_up"
	case ServerDown:
		return "server_down"
	case ServerUp:
		return "server_up"
	case LostMaster:
		return "lost_master"
	case LostSlave:
		return "lost_slave"
	case NewMaster:
		return "new_master"
	case NewSlave:
		return "new_slave"
	case NDBDown:
		return "ndb_down"
	case NDBUp:
		return "ndb_up"
	case LostNDB:
		return "lost_ndb"
	case NewNDB:
		return "new_ndb"
	case JoinedDown:
		return "joined_down"
	case JoinedUp:
		return "joined_up"
	case LostJoined:
		return "lost_joined"
	case NewJoined:
		return "new_joined"
	default:
		return "unknown_event"
	}
}

// computeCategory is a pure function of (prev, cur) role-flag pairs,
// masked to the role bits so MAINT/DRAINING/DISK_EXHAUSTED/AUTH_ERROR/
// WAS_MASTER never affect transition detection (spec §4.B step 6,
// grounded on monitor.cc's mon_get_event_type). It returns NoCategory,
// false when prev == cur after masking: P=C never dispatches (spec §8).
//
// Every arm (UP/DOWN/LOSS/NEW) is checked against all four role bits
// (MASTER, SLAVE, JOINED, NDB), in that priority order, so a transition
// flavored only by JOINED or NDB still dispatches instead of silently
// falling through to NoCategory.
func computeCategory(prev, cur registry.RoleFlags) (Category, bool) {
	p := registry.RoleBits(prev)
	c := registry.RoleBits(cur)

	wasRunning := p.Has(registry.RUNNING)
	isRunning := c.Has(registry.RUNNING)
	wasMaster := p.Has(registry.MASTER)
	isMaster := c.Has(registry.MASTER)
	wasSlave := p.Has(registry.SLAVE)
	isSlave := c.Has(registry.SLAVE)
	wasJoined := p.Has(registry.JOINED)
	isJoined := c.Has(registry.JOINED)
	wasNDB := p.Has(registry.NDB)
	isNDB := c.Has(registry.NDB)

	if p == c {
		return NoCategory, false
	}

	switch {
	case wasRunning && !isRunning && wasMaster:
		return MasterDown, true
	case wasRunning && !isRunning && wasSlave:
		return SlaveDown, true
	case wasRunning && !isRunning && wasJoined:
		return JoinedDown, true
	case wasRunning && !isRunning && wasNDB:
		return NDBDown, true
	case wasRunning && !isRunning:
		return ServerDown, true
	case !wasRunning && isRunning && isMaster:
		return MasterUp, true
	case !wasRunning && isRunning && isSlave:
		return SlaveUp, true
	case !wasRunning && isRunning && isJoined:
		return JoinedUp, true
	case !wasRunning && isRunning && isNDB:
		return NDBUp, true
	case !wasRunning && isRunning:
		return ServerUp, true
	case wasMaster && !isMaster:
		return LostMaster, true
	case wasSlave && !isSlave:
		return LostSlave, true
	case wasJoined && !isJoined:
		return LostJoined, true
	case wasNDB && !isNDB:
		return LostNDB, true
	case !wasMaster && isMaster:
		return NewMaster, true
	case !wasSlave && isSlave:
		return NewSlave, true
	case !wasJoined && isJoined:
		return NewJoined, true
	case !wasNDB && isNDB:
		return NewNDB, true
	default:
		return NoCategory, false
	}
}

// Dispatch reports whether category should invoke an event hook given the
// configured EventMask (spec §6 "events" key). EventMask holds a single
// Category, not a set: only a category equal to it dispatches, and
// AllCategories dispatches every category except NoCategory.
func (s Settings) Dispatch(cat Category) bool {
	if s.EventMask == AllCategories {
		return cat != NoCategory
	}
	return cat == s.EventMask
}
