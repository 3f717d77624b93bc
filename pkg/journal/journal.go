// Package journal implements the crash-safe on-disk snapshot of a
// monitor's last-published backend role state (spec §4.C, wire format
// §6).
//
// No package in the teacher repository implements a raw binary
// atomic-rename file with this exact header+CRC32 shape (warren persists
// cluster state via BoltDB, a full embedded KV store, which is the wrong
// tool for a single small fixed-layout record); this package is built
// directly from the wire format in spec.md §6 and the original
// store_server_journal/load_server_journal pair in
// _examples/original_source/server/core/monitor.cc, using only
// encoding/binary, hash/crc32 and os — see DESIGN.md for the
// standard-library justification this spec requires.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is the on-disk schema version this package reads and
// writes. Journals with a different version are rejected.
const SchemaVersion uint8 = 2

const fileName = "monitor.dat"

const (
	recordBackend uint8 = 1
	recordMaster  uint8 = 2
)

// BackendState is one backend's last-known role flags, as stored in the
// journal.
type BackendState struct {
	Name  string
	Flags uint64
}

// Snapshot is the full state persisted for one monitor: every backend's
// flags plus the name of the current master, if any.
type Snapshot struct {
	Backends []BackendState
	Master   string // "" if no master
}

// Store reads and writes a single monitor's journal file atomically.
type Store struct {
	dir string // <datadir>/<monitor-name>
}

// New returns a Store rooted at <dataDir>/<monitorName>. The directory is
// created if it does not exist.
func New(dataDir, monitorName string) (*Store, error) {
	dir := filepath.Join(dataDir, monitorName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fileName)
}

// Encode serializes a Snapshot into the on-disk payload format (schema
// version byte + records), exported so callers can hash it to decide
// whether a rewrite is needed (spec §4.B step 8).
func Encode(snap Snapshot) []byte {
	var buf bytes.Buffer
	buf.WriteByte(SchemaVersion)

	for _, b := range snap.Backends {
		buf.WriteByte(recordBackend)
		buf.WriteString(b.Name)
		buf.WriteByte(0)
		var flagBuf [8]byte
		binary.LittleEndian.PutUint64(flagBuf[:], b.Flags)
		buf.Write(flagBuf[:])
	}

	if snap.Master != "" {
		buf.WriteByte(recordMaster)
		buf.WriteString(snap.Master)
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

// Write atomically publishes snap: compose full payload in memory, write
// a temp file in the monitor's data directory with mode 0600, flush, then
// rename onto the final name. Readers either see the previous complete
// file or the new complete file, never a torn write (spec §3 invariant).
func (s *Store) Write(snap Snapshot) error {
	payload := Encode(snap)

	size := uint32(len(payload) + 4) // payload + trailing CRC32
	var out bytes.Buffer
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], size)
	out.Write(sizeBuf[:])
	out.Write(payload)

	sum := crc32.ChecksumIEEE(payload)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], sum)
	out.Write(crcBuf[:])

	tmp, err := os.CreateTemp(s.dir, fileName+".*")
	if err != nil {
		return fmt.Errorf("journal: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("journal: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("journal: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("journal: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: rename temp file: %w", err)
	}
	return nil
}

// ErrCorrupt is returned by Read when the file exists but fails CRC
// verification or carries an unknown schema version; callers should log
// and treat the journal as absent (spec §4.C).
var ErrCorrupt = errors.New("journal: corrupt or unreadable")

// ErrAbsent is returned by Read when no journal file exists, or the
// existing file is stale per journalMaxAge.
var ErrAbsent = errors.New("journal: absent")

// Read loads and verifies the journal file, returning ErrAbsent if it
// does not exist or is older than maxAge (0 disables the staleness
// check), or ErrCorrupt if it exists but parses badly or fails CRC.
func (s *Store) Read(maxAge time.Duration) (Snapshot, error) {
	path := s.path()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrAbsent
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("journal: stat: %w", err)
	}

	if maxAge > 0 && time.Since(info.ModTime()) >= maxAge {
		return Snapshot{}, ErrAbsent
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("journal: read: %w", err)
	}

	return decode(data)
}

// RemoveStale deletes the journal file unconditionally (spec §4.B
// start-up staleness handling: "if file age >= journal_max_age, delete
// it").
func (s *Store) RemoveStale() error {
	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsStale reports whether the journal file exists and is at least maxAge
// old. A non-existent file is never "stale" — it is simply absent.
func (s *Store) IsStale(maxAge time.Duration) bool {
	info, err := os.Stat(s.path())
	if err != nil {
		return false
	}
	return maxAge > 0 && time.Since(info.ModTime()) >= maxAge
}

func decode(data []byte) (Snapshot, error) {
	if len(data) < 4 {
		return Snapshot{}, ErrCorrupt
	}
	size := binary.LittleEndian.Uint32(data[:4])
	rest := data[4:]
	if uint32(len(rest)) != size {
		return Snapshot{}, ErrCorrupt
	}
	if size < 1+4 {
		return Snapshot{}, ErrCorrupt
	}

	payload := rest[:size-4]  // schema version + records
	trailer := rest[size-4:]  // CRC32
	wantCRC := binary.LittleEndian.Uint32(trailer)
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return Snapshot{}, ErrCorrupt
	}

	if payload[0] != SchemaVersion {
		return Snapshot{}, ErrCorrupt
	}
	records := payload[1:]

	snap := Snapshot{}
	for len(records) > 0 {
		typ := records[0]
		records = records[1:]

		nul := bytes.IndexByte(records, 0)
		if nul < 0 {
			return Snapshot{}, ErrCorrupt
		}
		name := string(records[:nul])
		records = records[nul+1:]

		switch typ {
		case recordBackend:
			if len(records) < 8 {
				return Snapshot{}, ErrCorrupt
			}
			flags := binary.LittleEndian.Uint64(records[:8])
			records = records[8:]
			snap.Backends = append(snap.Backends, BackendState{Name: name, Flags: flags})
		case recordMaster:
			snap.Master = name
		default:
			return Snapshot{}, ErrCorrupt
		}
	}

	return snap, nil
}
