// Package seccompdb stores the syscalls a Notify monitor has observed per
// binary, so a later sandboxed run of the same profile can load an
// Enforcing filter pre-populated from history instead of starting from
// Permissive/Notifying every time. Mirrors spec.md §3/§4.10: a SQLite file
// with three tables (binary, profile_binary, syscall). The file lives
// wherever the caller of Open says; the driver and cmd/antimony default to
// seccomp.db under envconf.UserConfigDir(), not to a path under AT_HOME.
package seccompdb

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a connection to the syscall database. A per-DB mutex serializes
// in-process writers on top of SQLite's own file locking, matching the
// original's thread-local-connection-per-writer model translated to Go's
// idiomatic single shared *sql.DB with its own connection pool.
type DB struct {
	sql *sql.DB
	mu  sync.Mutex
}

// Open opens (creating if necessary) the database at path and ensures its
// schema exists.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("seccompdb: open %s: %w", path, err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seccompdb: enable WAL: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seccompdb: create schema: %w", err)
	}
	return &DB{sql: conn}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS binary (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS profile_binary (
	profile   TEXT    NOT NULL,
	binary_id INTEGER NOT NULL REFERENCES binary(id),
	PRIMARY KEY (profile, binary_id)
);

CREATE TABLE IF NOT EXISTS syscall (
	binary_id      INTEGER NOT NULL REFERENCES binary(id),
	syscall_number INTEGER NOT NULL,
	arch           TEXT    NOT NULL,
	PRIMARY KEY (binary_id, syscall_number, arch)
);
`

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Insert records that profile's binary at path made syscallNumber on arch.
// The binary row is created on first sight.
func (d *DB) Insert(profileName, path string, syscallNumber int, arch string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	binaryID, err := upsertBinary(tx, path)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO profile_binary (profile, binary_id) VALUES (?, ?)`,
		profileName, binaryID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO syscall (binary_id, syscall_number, arch) VALUES (?, ?, ?)`,
		binaryID, syscallNumber, arch,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertBinary(tx *sql.Tx, path string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO binary (path) VALUES (?)`, path); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM binary WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// SyscallEntry is one (number, arch) pair in a profile's policy.
type SyscallEntry struct {
	Number int
	Arch   string
}

// Policy returns the union of syscalls observed for every binary associated
// with profileName, per spec.md §3's invariant that a profile's syscall set
// is the union over its binaries.
func (d *DB) Policy(profileName string) ([]SyscallEntry, error) {
	rows, err := d.sql.Query(`
		SELECT DISTINCT s.syscall_number, s.arch
		FROM syscall s
		JOIN profile_binary pb ON pb.binary_id = s.binary_id
		WHERE pb.profile = ?
		ORDER BY s.syscall_number, s.arch
	`, profileName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyscallEntry
	for rows.Next() {
		var e SyscallEntry
		if err := rows.Scan(&e.Number, &e.Arch); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Optimize rebuilds indexes and reclaims space (SQLite VACUUM).
func (d *DB) Optimize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.sql.Exec("REINDEX"); err != nil {
		return err
	}
	_, err := d.sql.Exec("VACUUM")
	return err
}

// Clean drops binaries whose path no longer exists on the host filesystem,
// cascading to their profile_binary and syscall rows. Caveat (spec.md
// §4.10): a binary provided only by a feature's Direct Files entry may not
// resolve through existsFn the same way a PATH-resolved binary does; this is
// a documented limitation, not a bug to silently work around.
func (d *DB) Clean(existsFn func(path string) bool) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.sql.Query(`SELECT id, path FROM binary`)
	if err != nil {
		return 0, err
	}
	type row struct {
		id   int64
		path string
	}
	var stale []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.path); err != nil {
			rows.Close()
			return 0, err
		}
		if !existsFn(r.path) {
			stale = append(stale, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, r := range stale {
		if _, err := tx.Exec(`DELETE FROM syscall WHERE binary_id = ?`, r.id); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM profile_binary WHERE binary_id = ?`, r.id); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM binary WHERE id = ?`, r.id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(stale)), nil
}

// Export dumps profileName's policy to a plain-text file at path, one
// "<number> <arch>" line per syscall, for Merge to later re-import.
func (d *DB) Export(profileName, path string) error {
	entries, err := d.Policy(profileName)
	if err != nil {
		return err
	}
	return writeExport(path, entries)
}

// Merge inserts every syscall listed in an exported file (produced by
// Export) into profileName, attributing them to binaryPath.
func (d *DB) Merge(profileName, binaryPath, path string) error {
	entries, err := readExport(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := d.Insert(profileName, binaryPath, e.Number, e.Arch); err != nil {
			return err
		}
	}
	return nil
}
