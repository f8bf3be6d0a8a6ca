package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "run ledger",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    dry_run INTEGER DEFAULT 0,
    new_documents INTEGER DEFAULT 0,
    processed INTEGER DEFAULT 0,
    errors INTEGER DEFAULT 0,
    archived_unchanged INTEGER DEFAULT 0,
    fragments INTEGER DEFAULT 0,
    backup_path TEXT,
    summary TEXT
);

CREATE TABLE IF NOT EXISTS batches (
    run_id TEXT NOT NULL REFERENCES runs(id),
    batch_id INTEGER NOT NULL,
    file_count INTEGER DEFAULT 0,
    fragments INTEGER DEFAULT 0,
    dispositions TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (run_id, batch_id)
);

CREATE TABLE IF NOT EXISTS fragments (
    chunk_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    source_key TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    total INTEGER NOT NULL,
    path TEXT NOT NULL,
    score REAL NOT NULL,
    disposition TEXT NOT NULL,
    structure TEXT NOT NULL,
    transmission TEXT NOT NULL,
    purpose TEXT NOT NULL,
    terrain TEXT NOT NULL,
    theme TEXT NOT NULL,
    word_count INTEGER DEFAULT 0,
    method TEXT,
    signals TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fragments_disposition ON fragments(disposition);
CREATE INDEX IF NOT EXISTS idx_fragments_source ON fragments(source_key);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "fingerprint store",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS fingerprints (
    document_key TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    last_processed TEXT NOT NULL,
    fragments_extracted INTEGER DEFAULT 0,
    disposition_summary TEXT
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
