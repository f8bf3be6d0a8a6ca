package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertFragments stores placed fragments in one transaction.
func (db *DB) InsertFragments(frags []Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT OR REPLACE INTO fragments (chunk_id, run_id, source_key, sequence, total, path,
			 score, disposition, structure, transmission, purpose, terrain, theme, word_count, method, signals)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range frags {
			signals, err := json.Marshal(f.Signals)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(f.ChunkID, f.RunID, f.SourceKey, f.Sequence, f.Total, f.Path,
				f.Score, f.Disposition, f.Structure, f.Transmission, f.Purpose, f.Terrain, f.Theme,
				f.WordCount, f.Method, string(signals)); err != nil {
				return fmt.Errorf("insert fragment %s: %w", f.ChunkID, err)
			}
		}
		return nil
	})
}

const fragmentColumns = `chunk_id, run_id, source_key, sequence, total, path, score, disposition,
	structure, transmission, purpose, terrain, theme, word_count, method, signals, created_at`

// GetFragments returns placed fragments, optionally limited to one disposition.
func (db *DB) GetFragments(disposition string) ([]Fragment, error) {
	query := `SELECT ` + fragmentColumns + ` FROM fragments`
	var args []any
	if disposition != "" {
		query += ` WHERE disposition = ?`
		args = append(args, disposition)
	}
	query += ` ORDER BY chunk_id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

// GetFragmentsBySource returns the fragments cut from one source document.
func (db *DB) GetFragmentsBySource(sourceKey string) ([]Fragment, error) {
	rows, err := db.conn.Query(
		`SELECT `+fragmentColumns+` FROM fragments WHERE source_key = ? ORDER BY sequence`, sourceKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragments(rows)
}

func scanFragments(rows *sql.Rows) ([]Fragment, error) {
	var frags []Fragment
	for rows.Next() {
		var f Fragment
		var method, signals sql.NullString
		if err := rows.Scan(&f.ChunkID, &f.RunID, &f.SourceKey, &f.Sequence, &f.Total, &f.Path,
			&f.Score, &f.Disposition, &f.Structure, &f.Transmission, &f.Purpose, &f.Terrain,
			&f.Theme, &f.WordCount, &method, &signals, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Method = method.String
		if signals.Valid && signals.String != "" {
			if err := json.Unmarshal([]byte(signals.String), &f.Signals); err != nil {
				return nil, fmt.Errorf("decoding signals of %s: %w", f.ChunkID, err)
			}
		}
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

// CoordinateDistribution counts fragments per coordinate, most populated first.
func (db *DB) CoordinateDistribution() ([]CoordinateCount, error) {
	rows, err := db.conn.Query(
		`SELECT structure, transmission, purpose, terrain, COUNT(*) AS n, AVG(score)
		 FROM fragments
		 GROUP BY structure, transmission, purpose, terrain
		 ORDER BY n DESC, structure, transmission, purpose, terrain`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CoordinateCount
	for rows.Next() {
		var c CoordinateCount
		if err := rows.Scan(&c.Structure, &c.Transmission, &c.Purpose, &c.Terrain, &c.Count, &c.AvgScore); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
