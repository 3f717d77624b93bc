package journal

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestJournalRoundTripProperty checks the round-trip invariant required by
// spec §8: write(S) then read = S for any valid state S. Names and flags
// are generated as parallel equal-length slices (gen.Identifier never
// produces a NUL byte, which the on-disk format relies on as a
// terminator).
func TestJournalRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("write(S) then read = S for any valid snapshot", prop.ForAll(
		func(names []string, flags []uint64) bool {
			n := len(names)
			if len(flags) < n {
				n = len(flags)
			}

			dir := t.TempDir()
			store, err := New(dir, "mon")
			if err != nil {
				return false
			}

			seen := make(map[string]bool, n)
			var backends []BackendState
			for i := 0; i < n; i++ {
				if seen[names[i]] {
					continue // names must be unique within one snapshot
				}
				seen[names[i]] = true
				backends = append(backends, BackendState{Name: names[i], Flags: flags[i]})
			}

			master := ""
			if len(backends) > 0 {
				master = backends[0].Name
			}
			snap := Snapshot{Backends: backends, Master: master}

			if err := store.Write(snap); err != nil {
				return false
			}

			got, err := store.Read(0)
			if err != nil {
				return false
			}

			if got.Master != snap.Master || len(got.Backends) != len(snap.Backends) {
				return false
			}
			for i := range snap.Backends {
				if got.Backends[i] != snap.Backends[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Identifier()),
		gen.SliceOfN(6, gen.UInt64()),
	))

	properties.TestingRun(t)
}
