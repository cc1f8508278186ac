// Package db provides the sqlite-backed telemetry store: normalized cell
// samples in, derived feature rows out. All mutation of the feature table
// goes through ReplaceChunkFeatures so a chunk is never partially visible.
package db

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database at path and applies connection pragmas,
// without touching the schema. Used by the migrate CLI, which manages the
// schema itself.
func OpenDB(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := sdb.Exec(p); err != nil {
			sdb.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{sdb}, nil
}

// NewDB opens the database and brings the schema up to the latest embedded
// migration version.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

// unixSeconds converts a time to the store's DOUBLE unix-seconds encoding.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// fromUnixSeconds converts a stored DOUBLE back to a UTC time.
func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
