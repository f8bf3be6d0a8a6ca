package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// BeginRun records the start of a run.
func (db *DB) BeginRun(id string, dryRun bool) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, started_at, dry_run) VALUES (?, ?, ?)`,
		id, now(), boolInt(dryRun),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores final counters and the JSON summary of a run.
func (db *DB) FinishRun(r Run) error {
	res, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, new_documents = ?, processed = ?, errors = ?,
		 archived_unchanged = ?, fragments = ?, backup_path = ?, summary = ?
		 WHERE id = ?`,
		now(), r.NewDocuments, r.Processed, r.Errors,
		r.ArchivedUnchanged, r.Fragments, r.BackupPath, r.Summary, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", r.ID, sql.ErrNoRows)
	}
	return nil
}

// InsertBatch records the statistics of one batch.
func (db *DB) InsertBatch(b Batch) error {
	disp, err := json.Marshal(b.Dispositions)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO batches (run_id, batch_id, file_count, fragments, dispositions)
		 VALUES (?, ?, ?, ?, ?)`,
		b.RunID, b.BatchID, b.FileCount, b.Fragments, string(disp),
	)
	if err != nil {
		return fmt.Errorf("insert batch %d: %w", b.BatchID, err)
	}
	return nil
}

// GetBatches returns the batches of a run in order.
func (db *DB) GetBatches(runID string) ([]Batch, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, batch_id, file_count, fragments, dispositions
		 FROM batches WHERE run_id = ? ORDER BY batch_id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var disp sql.NullString
		if err := rows.Scan(&b.RunID, &b.BatchID, &b.FileCount, &b.Fragments, &disp); err != nil {
			return nil, err
		}
		if disp.Valid {
			if err := json.Unmarshal([]byte(disp.String), &b.Dispositions); err != nil {
				return nil, fmt.Errorf("decoding dispositions of batch %d: %w", b.BatchID, err)
			}
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// GetRecentRuns returns the latest runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at, finished_at, dry_run, new_documents, processed, errors,
		 archived_unchanged, fragments, backup_path, summary
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var dry int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &dry, &r.NewDocuments, &r.Processed,
			&r.Errors, &r.ArchivedUnchanged, &r.Fragments, &r.BackupPath, &r.Summary); err != nil {
			return nil, err
		}
		r.DryRun = dry != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate counts over the whole ledger.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{ByDisposition: make(map[string]int)}

	if err := db.conn.QueryRow(`SELECT COUNT(*), MAX(started_at) FROM runs`).Scan(&s.Runs, &s.LastRunAt); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	if err := db.conn.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT source_key) FROM fragments`,
	).Scan(&s.Fragments, &s.Sources); err != nil {
		return nil, fmt.Errorf("counting fragments: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM fingerprints`).Scan(&s.Fingerprints); err != nil {
		return nil, fmt.Errorf("counting fingerprints: %w", err)
	}

	rows, err := db.conn.Query(`SELECT disposition, COUNT(*) FROM fragments GROUP BY disposition`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		s.ByDisposition[d] = n
	}
	return s, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
