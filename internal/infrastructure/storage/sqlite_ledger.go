package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

// ledgerTimeFormat keeps the fractional seconds fixed-width. RFC3339Nano
// trims trailing zeros, which breaks the lexicographic ordering SQLite
// applies to TEXT columns; a ".1Z" suffix would sort after ".12Z".
const ledgerTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    title         TEXT,
    location_hint TEXT,
    local_path    TEXT,
    parent_id     TEXT,
    status        TEXT NOT NULL DEFAULT 'pending',
    score         REAL,
    summary       TEXT,
    added_at      TEXT NOT NULL,
    processed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, added_at);
`

// SQLiteLedger persists discovered documents into an embedded SQLite
// database. The loop is the only writer; a dashboard may read the same
// file concurrently, which WAL mode tolerates without locking it out.
type SQLiteLedger struct {
	db *sql.DB
}

var _ ports.Ledger = (*SQLiteLedger)(nil)

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Enqueue inserts a new pending record. A duplicate id is silently
// ignored and reported as inserted=false; this guard is what bounds
// recursive discovery.
func (l *SQLiteLedger) Enqueue(ctx context.Context, id, title, locationHint, parentID string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("enqueue: empty document id")
	}

	query, args, err := sq.Insert("documents").
		Columns("id", "title", "location_hint", "parent_id", "status", "added_at").
		Values(id, title, locationHint, nullable(parentID), domain.StatusPending, time.Now().UTC().Format(ledgerTimeFormat)).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build enqueue: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue %s rows: %w", id, err)
	}
	return inserted > 0, nil
}

// NextPending returns the oldest pending record (FIFO by added_at, with
// rowid as tie-break for same-instant inserts) or nil on an empty queue.
func (l *SQLiteLedger) NextPending(ctx context.Context) (*domain.DocumentRecord, error) {
	query, args, err := sq.Select("id", "title", "location_hint", "local_path", "parent_id", "status", "score", "summary", "added_at", "processed_at").
		From("documents").
		Where(sq.Eq{"status": domain.StatusPending}).
		OrderBy("added_at ASC", "rowid ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build next pending: %w", err)
	}

	record, err := scanRecord(l.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return record, nil
}

// MarkProcessing transitions a pending record to processing.
func (l *SQLiteLedger) MarkProcessing(ctx context.Context, id string) error {
	return l.transition(ctx, id, domain.StatusProcessing, sq.Eq{"status": domain.StatusPending}, nil)
}

// MarkDone finalizes a record with its evaluation outcome. This is the
// only transition allowed to write score and summary.
func (l *SQLiteLedger) MarkDone(ctx context.Context, id string, score float64, summary, localPath string) error {
	extra := map[string]interface{}{
		"score":      score,
		"summary":    summary,
		"local_path": localPath,
	}
	active := sq.Eq{"status": []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing}}
	return l.transition(ctx, id, domain.StatusDone, active, extra)
}

// MarkError records a per-document failure without touching score or summary.
func (l *SQLiteLedger) MarkError(ctx context.Context, id string) error {
	active := sq.Eq{"status": []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing}}
	return l.transition(ctx, id, domain.StatusError, active, nil)
}

// transition applies a guarded status update; the guard keeps the
// status machine monotone (done/error records never move again).
func (l *SQLiteLedger) transition(ctx context.Context, id string, to domain.DocumentStatus, guard sq.Eq, extra map[string]interface{}) error {
	builder := sq.Update("documents").
		Set("status", to).
		Set("processed_at", time.Now().UTC().Format(ledgerTimeFormat)).
		Where(sq.Eq{"id": id}).
		Where(guard)
	for column, value := range extra {
		builder = builder.Set(column, value)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build transition: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", id, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark %s %s rows: %w", id, to, err)
	}
	if affected == 0 {
		return fmt.Errorf("mark %s %s: no eligible record", id, to)
	}
	return nil
}

// Statistics counts records per status.
func (l *SQLiteLedger) Statistics(ctx context.Context) (map[domain.DocumentStatus]int, error) {
	query, args, err := sq.Select("status", "COUNT(*)").
		From("documents").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statistics: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var status domain.DocumentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statistics rows: %w", err)
	}
	return stats, nil
}

// Findings lists done records ordered by score descending, for report compilation.
func (l *SQLiteLedger) Findings(ctx context.Context) ([]domain.Finding, error) {
	query, args, err := sq.Select("title", "summary", "score", "location_hint").
		From("documents").
		Where(sq.Eq{"status": domain.StatusDone}).
		OrderBy("score DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build findings: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		var f domain.Finding
		var summary sql.NullString
		var score sql.NullFloat64
		var hint sql.NullString
		if err := rows.Scan(&f.Title, &summary, &score, &hint); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Summary = summary.String
		f.Score = score.Float64
		f.URL = hint.String
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("findings rows: %w", err)
	}
	return findings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*domain.DocumentRecord, error) {
	var (
		record      domain.DocumentRecord
		title       sql.NullString
		hint        sql.NullString
		localPath   sql.NullString
		parentID    sql.NullString
		score       sql.NullFloat64
		summary     sql.NullString
		addedAt     string
		processedAt sql.NullString
	)

	err := row.Scan(&record.ID, &title, &hint, &localPath, &parentID, &record.Status, &score, &summary, &addedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	record.Title = title.String
	record.LocationHint = hint.String
	record.LocalPath = localPath.String
	record.ParentID = parentID.String
	record.Summary = summary.String
	if score.Valid {
		value := score.Float64
		record.Score = &value
	}

	if record.AddedAt, err = time.Parse(time.RFC3339Nano, addedAt); err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}
	if processedAt.Valid {
		if record.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt.String); err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
	}
	return &record, nil
}

func nullable(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
