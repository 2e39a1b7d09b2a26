package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/reviewgate/internal/model"
)

// DBFileName is the SQLite file created inside the data directory.
const DBFileName = "reviewgate.db"

// Driver names accepted by OpenDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned for an unsupported database driver.
var ErrUnknownDriver = errors.New("unknown database driver")

// timeLayout is fixed-width so stored instants compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// CrawlDB stores finished session bundles.
// It implements the session sink and backs the history and purge commands.
type CrawlDB struct {
	db     *sql.DB
	driver string

	// dbPath is the SQLite file path, empty for PostgreSQL.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a SQLite CrawlDB inside dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, driver: DriverSQLite, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// OpenPostgres connects to PostgreSQL with a lib/pq DSN and creates the
// schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*CrawlDB, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	cdb := &CrawlDB{db: db, driver: DriverPostgres}
	if err := cdb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// OpenDriver opens a CrawlDB for driver. For SQLite, dsn is the data
// directory; for PostgreSQL it is the connection string.
func OpenDriver(ctx context.Context, driver, dsn string) (*CrawlDB, error) {
	switch driver {
	case "", DriverSQLite:
		return Open(dsn, DefaultOptions())
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Driver returns the database driver name.
func (cdb *CrawlDB) Driver() string {
	return cdb.driver
}

// Path returns the SQLite file path, or "" for PostgreSQL.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

const sessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	target TEXT NOT NULL,
	target_url TEXT,
	purpose TEXT NOT NULL,
	platform TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT,
	collection_time TEXT NOT NULL,
	retention_until TEXT NOT NULL,
	total_records INTEGER NOT NULL,
	pages_fetched INTEGER NOT NULL,
	requests_issued INTEGER NOT NULL,
	metadata_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_target ON sessions(target);
CREATE INDEX IF NOT EXISTS idx_sessions_retention ON sessions(retention_until);
`

// reviewsTable is formatted with the dialect's auto-increment key column.
const reviewsTable = `
CREATE TABLE IF NOT EXISTS reviews (
	id %s,
	session_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content TEXT NOT NULL,
	rating REAL NOT NULL,
	time_bucket TEXT NOT NULL,
	user_hash TEXT,
	tags TEXT,
	processed_at TEXT NOT NULL,
	UNIQUE(session_id, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);
`

// createTables creates the schema if it doesn't exist.
func (cdb *CrawlDB) createTables(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if cdb.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	for _, stmt := range splitStatements(sessionsTable + fmt.Sprintf(reviewsTable, idColumn)) {
		if _, err := cdb.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a schema script on semicolons.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (cdb *CrawlDB) rebind(query string) string {
	if cdb.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveBundle stores a bundle, replacing any earlier copy of the same session.
func (cdb *CrawlDB) SaveBundle(ctx context.Context, bundle *model.Bundle) (err error) {
	meta := bundle.Metadata
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := cdb.rebind(`
	INSERT INTO sessions (session_id, target, target_url, purpose, platform, status, reason,
		collection_time, retention_until, total_records, pages_fetched, requests_issued, metadata_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		target = excluded.target,
		target_url = excluded.target_url,
		purpose = excluded.purpose,
		platform = excluded.platform,
		status = excluded.status,
		reason = excluded.reason,
		collection_time = excluded.collection_time,
		retention_until = excluded.retention_until,
		total_records = excluded.total_records,
		pages_fetched = excluded.pages_fetched,
		requests_issued = excluded.requests_issued,
		metadata_json = excluded.metadata_json
	`)
	if _, err = tx.ExecContext(ctx, upsert,
		meta.SessionID,
		meta.Target,
		meta.TargetURL,
		string(meta.Purpose),
		string(meta.Platform),
		string(meta.Status),
		meta.Reason,
		formatTime(meta.CollectionTime),
		formatTime(meta.RetentionUntil),
		meta.TotalRecords,
		meta.PagesFetched,
		meta.RequestsIssued,
		string(metaJSON),
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err = tx.ExecContext(ctx, cdb.rebind(`DELETE FROM reviews WHERE session_id = ?`), meta.SessionID); err != nil {
		return fmt.Errorf("failed to clear reviews: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, cdb.rebind(`
	INSERT INTO reviews (session_id, content_hash, content, rating, time_bucket, user_hash, tags, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, content_hash) DO NOTHING
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare review insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range bundle.Records {
		tagsJSON, jerr := json.Marshal(r.Tags)
		if jerr != nil {
			err = fmt.Errorf("failed to serialize tags: %w", jerr)
			return err
		}
		if _, err = stmt.ExecContext(ctx,
			meta.SessionID,
			r.ContentHash,
			r.Content,
			r.Rating,
			string(r.TimeBucket),
			r.UserHash,
			string(tagsJSON),
			formatTime(r.ProcessedAt),
		); err != nil {
			return fmt.Errorf("failed to save review: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bundle: %w", err)
	}
	return nil
}

// SessionSummary is one row of session history.
type SessionSummary struct {
	SessionID      string
	Target         string
	TargetURL      string
	Purpose        model.Purpose
	Platform       model.Platform
	Status         model.SessionStatus
	Reason         string
	CollectionTime time.Time
	RetentionUntil time.Time
	TotalRecords   int
	PagesFetched   int
	RequestsIssued int
}

// ListSessions returns stored sessions, newest first. A non-empty target
// restricts the list to that target.
func (cdb *CrawlDB) ListSessions(ctx context.Context, target string) ([]SessionSummary, error) {
	query := `
	SELECT session_id, target, target_url, purpose, platform, status, reason,
		collection_time, retention_until, total_records, pages_fetched, requests_issued
	FROM sessions
	WHERE 1=1
	`
	args := make([]any, 0)
	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY collection_time DESC"

	rows, err := cdb.db.QueryContext(ctx, cdb.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var targetURL, reason sql.NullString
		var purpose, platform, status, collected, retention string

		if err := rows.Scan(&s.SessionID, &s.Target, &targetURL, &purpose, &platform, &status, &reason,
			&collected, &retention, &s.TotalRecords, &s.PagesFetched, &s.RequestsIssued); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.TargetURL = targetURL.String
		s.Reason = reason.String
		s.Purpose = model.Purpose(purpose)
		s.Platform = model.Platform(platform)
		s.Status = model.SessionStatus(status)
		s.CollectionTime = parseTimestamp(collected)
		s.RetentionUntil = parseTimestamp(retention)
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetBundle loads a stored bundle. It returns nil, nil when the session is
// unknown.
func (cdb *CrawlDB) GetBundle(ctx context.Context, sessionID string) (*model.Bundle, error) {
	var metaJSON string
	err := cdb.db.QueryRowContext(ctx,
		cdb.rebind(`SELECT metadata_json FROM sessions WHERE session_id = ?`), sessionID,
	).Scan(&metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	bundle := &model.Bundle{Records: []model.AnonymizedReview{}}
	if err := json.Unmarshal([]byte(metaJSON), &bundle.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	rows, err := cdb.db.QueryContext(ctx, cdb.rebind(`
	SELECT content_hash, content, rating, time_bucket, user_hash, tags, processed_at
	FROM reviews
	WHERE session_id = ?
	ORDER BY id
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.AnonymizedReview
		var bucket, processed string
		var userHash, tags sql.NullString

		if err := rows.Scan(&r.ContentHash, &r.Content, &r.Rating, &bucket, &userHash, &tags, &processed); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.TimeBucket = model.TimeBucket(bucket)
		r.UserHash = userHash.String
		r.ProcessedAt = parseTimestamp(processed)
		r.PrivacyProtected = true
		if tags.Valid && tags.String != "" && tags.String != "null" {
			if err := json.Unmarshal([]byte(tags.String), &r.Tags); err != nil {
				return nil, fmt.Errorf("failed to parse tags: %w", err)
			}
		}
		bundle.Records = append(bundle.Records, r)
	}

	return bundle, rows.Err()
}

// PurgeExpired deletes sessions whose retention date is before now, along
// with their reviews. It returns the number of sessions deleted.
func (cdb *CrawlDB) PurgeExpired(ctx context.Context, now time.Time) (n int64, err error) {
	cutoff := formatTime(now)

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, cdb.rebind(`
	DELETE FROM reviews WHERE session_id IN (
		SELECT session_id FROM sessions WHERE retention_until < ?
	)`), cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge reviews: %w", err)
	}

	result, err := tx.ExecContext(ctx, cdb.rebind(`DELETE FROM sessions WHERE retention_until < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if n, err = result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to count purged sessions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return n, nil
}

// formatTime renders t in UTC with a fixed width.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
