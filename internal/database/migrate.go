package database

import (
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/flatdrop/internal/logger"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration above the stored user_version. A ledger
// written by a newer flatdrop is refused rather than downgraded.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if latest := latestVersion(); current > latest {
		return fmt.Errorf("ledger schema version %d is newer than this binary supports (%d)", current, latest)
	}

	log := logger.Named("database")
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")
		if err := apply(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration. The version stamp is written after commit since
// modernc/sqlite ignores user_version inside a transaction; migrations use
// IF NOT EXISTS so a crash between the two steps only repeats the DDL.
func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
