// Package sqlite stores scheme artifacts and classification results in a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS schemes (
	name     TEXT PRIMARY KEY,
	artifact BLOB NOT NULL,
	saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS classifications (
	run_id       TEXT NOT NULL,
	case_id      TEXT NOT NULL,
	scheme       TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	class        INTEGER NOT NULL,
	processed_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, case_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_classifications_case ON classifications(case_id, processed_at);
`

// DB is a scheme.Store and a result loader backed by SQLite.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck // schema error takes precedence
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put upserts a scheme artifact.
func (d *DB) Put(ctx context.Context, name string, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO schemes (name, artifact, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET artifact = excluded.artifact, saved_at = excluded.saved_at`,
		name, data, domain.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put scheme %s: %w", name, err)
	}
	return nil
}

// Get reads a scheme artifact.
func (d *DB) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT artifact FROM schemes WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get scheme %s: %w", name, err)
	}
	return data, nil
}

// LoadResults writes every labelled time step of the results in one
// transaction. Re-loading a case within the same run replaces its rows.
func (d *DB) LoadResults(ctx context.Context, results []domain.CaseResult) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO classifications (run_id, case_id, scheme, ts, class, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		for i, ts := range r.Classes.Times {
			if _, err := stmt.ExecContext(ctx, r.RunID, r.CaseID, r.Scheme,
				ts.UnixMilli(), r.Classes.Labels[i], r.ProcessedAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert result %s: %w", r.CaseID, err)
			}
		}
	}
	return tx.Commit()
}

// LatestClasses returns the most recently processed classes of a case.
func (d *DB) LatestClasses(ctx context.Context, caseID string) (domain.ClassSeries, string, error) {
	var runID, schemeName string
	err := d.db.QueryRowContext(ctx,
		`SELECT run_id, scheme FROM classifications WHERE case_id = ?
		 ORDER BY processed_at DESC LIMIT 1`, caseID).Scan(&runID, &schemeName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ClassSeries{}, "", fmt.Errorf("no classes stored for case %s", caseID)
	}
	if err != nil {
		return domain.ClassSeries{}, "", fmt.Errorf("query classes %s: %w", caseID, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT ts, class FROM classifications WHERE run_id = ? AND case_id = ? ORDER BY ts`,
		runID, caseID)
	if err != nil {
		return domain.ClassSeries{}, "", fmt.Errorf("query classes %s: %w", caseID, err)
	}
	defer rows.Close()

	var out domain.ClassSeries
	for rows.Next() {
		var ts int64
		var class int
		if err := rows.Scan(&ts, &class); err != nil {
			return domain.ClassSeries{}, "", err
		}
		out.Times = append(out.Times, time.UnixMilli(ts).UTC())
		out.Labels = append(out.Labels, class)
	}
	return out, schemeName, rows.Err()
}
