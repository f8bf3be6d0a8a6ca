package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetFingerprint returns the stored fingerprint for key, or nil.
func (db *DB) GetFingerprint(key string) (*Fingerprint, error) {
	var fp Fingerprint
	var summary sql.NullString
	err := db.conn.QueryRow(
		`SELECT document_key, fingerprint, last_processed, fragments_extracted, disposition_summary
		 FROM fingerprints WHERE document_key = ?`, key,
	).Scan(&fp.DocumentKey, &fp.Fingerprint, &fp.LastProcessed, &fp.FragmentsExtracted, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := decodeSummary(summary, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

// PutFingerprints upserts fingerprint records in one transaction.
func (db *DB) PutFingerprints(fps []Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		for _, fp := range fps {
			summary, err := json.Marshal(fp.DispositionSummary)
			if err != nil {
				return err
			}
			_, err = tx.Exec(
				`INSERT INTO fingerprints (document_key, fingerprint, last_processed, fragments_extracted, disposition_summary)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(document_key) DO UPDATE SET
				   fingerprint = excluded.fingerprint,
				   last_processed = excluded.last_processed,
				   fragments_extracted = excluded.fragments_extracted,
				   disposition_summary = excluded.disposition_summary`,
				fp.DocumentKey, fp.Fingerprint, fp.LastProcessed, fp.FragmentsExtracted, string(summary),
			)
			if err != nil {
				return fmt.Errorf("upsert fingerprint %s: %w", fp.DocumentKey, err)
			}
		}
		return nil
	})
}

// AllFingerprints returns every stored record keyed by document key.
func (db *DB) AllFingerprints() (map[string]Fingerprint, error) {
	rows, err := db.conn.Query(
		`SELECT document_key, fingerprint, last_processed, fragments_extracted, disposition_summary
		 FROM fingerprints`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Fingerprint)
	for rows.Next() {
		var fp Fingerprint
		var summary sql.NullString
		if err := rows.Scan(&fp.DocumentKey, &fp.Fingerprint, &fp.LastProcessed, &fp.FragmentsExtracted, &summary); err != nil {
			return nil, err
		}
		if err := decodeSummary(summary, &fp); err != nil {
			return nil, err
		}
		out[fp.DocumentKey] = fp
	}
	return out, rows.Err()
}

func decodeSummary(s sql.NullString, fp *Fingerprint) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), &fp.DispositionSummary); err != nil {
		return fmt.Errorf("decoding summary of %s: %w", fp.DocumentKey, err)
	}
	return nil
}
