package replication

import "strconv"

// gtidString renders a GTID as "domain-server_id-sequence", matching
// replicator.cc's format exactly.
func gtidString(domain, serverID uint32, sequence uint64) string {
	return strconv.FormatUint(uint64(domain), 10) + "-" +
		strconv.FormatUint(uint64(serverID), 10) + "-" +
		strconv.FormatUint(sequence, 10)
}

// transaction accumulates the tables touched and the GTID cursor for one
// in-flight transaction, between a GTIDEvent and its closing XIDEvent (or
// a standalone QueryEvent for DDL statements outside an explicit
// transaction).
type transaction struct {
	cursor    GTID
	hasCursor bool
	tables    map[uint64]string // table id -> name, from TABLE_MAP events
	pendingTables map[string]bool // table names with queued row events
	query  string
}

func newTransaction(cursor GTID) *transaction {
	return &transaction{
		cursor:        cursor,
		hasCursor:     true,
		tables:        make(map[uint64]string),
		pendingTables: make(map[string]bool),
	}
}

// touchedTables returns the distinct table names with pending row events,
// in no particular order — the downstream sink only needs the set.
func (t *transaction) touchedTables() []string {
	out := make([]string, 0, len(t.pendingTables))
	for name := range t.pendingTables {
		out = append(out, name)
	}
	return out
}
