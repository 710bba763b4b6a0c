// Package sqlite holds the connection policy shared by the daemon's
// stores. Pragmas ride in the DSN so every pooled connection gets them,
// not just the first one opened.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const (
	busyTimeout = 5 * time.Second
	poolSize    = 25
)

// Open returns a pooled handle with WAL journaling, a busy timeout and
// foreign key enforcement applied to every connection.
func Open(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping %s: %w", dbPath, err)
	}
	return db, nil
}

// VerifyIntegrity runs PRAGMA quick_check, or integrity_check when full
// is set, against a read-only handle. A healthy database yields nil
// findings; anything else comes back as diagnostic lines.
func VerifyIntegrity(path string, full bool) ([]string, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s read-only: %w", path, err)
	}
	defer db.Close()

	check := "PRAGMA quick_check;"
	if full {
		check = "PRAGMA integrity_check;"
	}
	rows, err := db.Query(check)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(check, ";"), err)
	}
	defer rows.Close()

	var findings []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		findings = append(findings, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The pragma reports a single "ok" row when the file is sound.
	if len(findings) == 1 && strings.EqualFold(findings[0], "ok") {
		return nil, nil
	}
	if len(findings) == 0 {
		findings = []string{"integrity check returned no rows"}
	}
	return findings, nil
}
