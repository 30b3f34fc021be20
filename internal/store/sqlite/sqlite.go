// Package sqlite provides the durable backing store for the facet object graph.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver with
// WAL enabled for concurrent readers. An in-memory mode (":memory:") is
// available for ephemeral and test stores.
//
// Entities and their many-to-many edges live in three tables: issues, tags
// and issue_tags. The edge table cascades on entity deletion; the entities
// themselves never cascade into each other, which is what gives tag deletion
// its nullify semantics.
//
// Cross-device change notification is modeled as a marker file next to the
// database: every committed write batch rewrites "<path>.changed" stamped
// with the writer's device id and a sequence number. Another process watching
// that file sees each batch as exactly one event.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/facetapp/facet/internal/types"
)

// MemoryPath opens an ephemeral store with no on-disk state and no change
// marker. Used for tests and previews.
const MemoryPath = ":memory:"

// DB wraps the embedded SQLite connection.
type DB struct {
	conn     *sql.DB
	path     string
	deviceID string
	memory   bool

	// Touched from whatever goroutine commits, read from others.
	seq     atomic.Uint64
	commits atomic.Uint64
}

// Open creates or opens the database at path. The deviceID stamps the change
// marker so a watcher can tell its own writes from remote ones.
//
// The caller MUST call Close() when done.
func Open(path, deviceID string) (*DB, error) {
	memory := path == MemoryPath

	connStr := path
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if memory {
		// A :memory: database exists per connection; pooling would
		// silently shard the data.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{
		conn:     conn,
		path:     path,
		deviceID: deviceID,
		memory:   memory,
	}

	if !memory {
		if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Path returns the database path given to Open.
func (db *DB) Path() string {
	return db.path
}

// DeviceID returns the writer id stamped onto change markers.
func (db *DB) DeviceID() string {
	return db.deviceID
}

// InMemory reports whether this is an ephemeral store.
func (db *DB) InMemory() bool {
	return db.memory
}

// MarkerPath returns the change marker location, or "" for in-memory stores.
func (db *DB) MarkerPath() string {
	if db.memory {
		return ""
	}
	return db.path + ".changed"
}

// Close closes the connection, checkpointing the WAL first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if !db.memory {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
//
// title, content and priority are deliberately nullable: the read boundary
// coerces NULL to "" / medium, so older rows written by other clients with
// missing fields load cleanly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		priority INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		reminder_enabled INTEGER NOT NULL DEFAULT 0,
		reminder_at TEXT
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT
	);

	CREATE TABLE IF NOT EXISTS issue_tags (
		issue_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		PRIMARY KEY (issue_id, tag_id),
		FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_issues_updated ON issues(updated_at);
	CREATE INDEX IF NOT EXISTS idx_issues_completed ON issues(completed);
	CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);
	CREATE INDEX IF NOT EXISTS idx_issue_tags_tag ON issue_tags(tag_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertIssue inserts or updates a single issue as its own write batch.
func (db *DB) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	return db.Apply(ctx, &Batch{UpsertIssues: []*types.Issue{issue}})
}

// UpsertTag inserts or updates a single tag as its own write batch.
func (db *DB) UpsertTag(ctx context.Context, tag *types.Tag) error {
	return db.Apply(ctx, &Batch{UpsertTags: []*types.Tag{tag}})
}

// AddEdge records the issue/tag relationship. Idempotent.
func (db *DB) AddEdge(ctx context.Context, issueID string, tagID uuid.UUID) error {
	query := `INSERT OR IGNORE INTO issue_tags (issue_id, tag_id) VALUES (?, ?)`
	if _, err := db.conn.ExecContext(ctx, query, issueID, tagID.String()); err != nil {
		return fmt.Errorf("failed to add edge %s--%s: %w", issueID, tagID, err)
	}
	return nil
}

// RemoveEdge removes the issue/tag relationship. Idempotent.
func (db *DB) RemoveEdge(ctx context.Context, issueID string, tagID uuid.UUID) error {
	query := `DELETE FROM issue_tags WHERE issue_id = ? AND tag_id = ?`
	if _, err := db.conn.ExecContext(ctx, query, issueID, tagID.String()); err != nil {
		return fmt.Errorf("failed to remove edge %s--%s: %w", issueID, tagID, err)
	}
	return nil
}

// DeleteIssue removes an issue. Edges cascade; tags survive. Idempotent.
func (db *DB) DeleteIssue(ctx context.Context, issueID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to delete issue %s: %w", issueID, err)
	}
	return nil
}

// DeleteTag removes a tag. Edges cascade; related issues survive. Idempotent.
func (db *DB) DeleteTag(ctx context.Context, tagID uuid.UUID) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, tagID.String()); err != nil {
		return fmt.Errorf("failed to delete tag %s: %w", tagID, err)
	}
	return nil
}

// DeleteAll removes every issue and tag in one transaction and returns the
// identifiers of the deleted rows.
func (db *DB) DeleteAll(ctx context.Context) (issueIDs []string, tagIDs []string, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	issueIDs, err = collectIDs(ctx, tx, `DELETE FROM issues RETURNING id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete issues: %w", err)
	}

	tagIDs, err = collectIDs(ctx, tx, `DELETE FROM tags RETURNING id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.commits.Add(1)
	if err := db.TouchMarker(); err != nil {
		return issueIDs, tagIDs, err
	}
	return issueIDs, tagIDs, nil
}

func collectIDs(ctx context.Context, tx *sql.Tx, query string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountIssues returns the number of issues, optionally restricted to closed
// ones. This is the count-only query mode: no rows are materialized.
func (db *DB) CountIssues(ctx context.Context, closedOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM issues"
	if closedOnly {
		query += " WHERE completed = 1"
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// CountTags returns the number of tags.
func (db *DB) CountTags(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tags: %w", err)
	}
	return count, nil
}

// Snapshot is a full read of the durable graph.
type Snapshot struct {
	Issues []*types.Issue
	Tags   []*types.Tag
	// Edges maps issue ID to the IDs of its tags.
	Edges map[string][]uuid.UUID
}

// LoadAll reads the entire graph. NULL titles, contents and priorities are
// coerced to their defaults here so callers never see missing values.
func (db *DB) LoadAll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Edges: make(map[string][]uuid.UUID)}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, content, completed, priority,
		       created_at, updated_at, reminder_enabled, reminder_at
		FROM issues
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			issue     types.Issue
			title     sql.NullString
			content   sql.NullString
			completed int
			priority  sql.NullInt64
			created   string
			updated   string
			remindOn  int
			remindAt  sql.NullString
		)
		if err := rows.Scan(&issue.ID, &title, &content, &completed, &priority,
			&created, &updated, &remindOn, &remindAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

		issue.Title = title.String
		issue.Content = content.String
		issue.Completed = completed != 0
		issue.Priority = types.PriorityMedium
		if priority.Valid && types.Priority(priority.Int64).Valid() {
			issue.Priority = types.Priority(priority.Int64)
		}
		issue.Created = parseTimeString(created)
		issue.Modified = parseTimeString(updated)
		issue.ReminderEnabled = remindOn != 0
		issue.Reminder = parseNullableTimeString(remindAt)

		snap.Issues = append(snap.Issues, &issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan issues: %w", err)
	}

	tagRows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var (
			tag  types.Tag
			id   string
			name sql.NullString
		)
		if err := tagRows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid tag id %q: %w", id, err)
		}
		tag.ID = parsed
		tag.Name = name.String
		snap.Tags = append(snap.Tags, &tag)
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tags: %w", err)
	}

	edgeRows, err := db.conn.QueryContext(ctx, `SELECT issue_id, tag_id FROM issue_tags`)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var issueID, tagID string
		if err := edgeRows.Scan(&issueID, &tagID); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		parsed, err := uuid.Parse(tagID)
		if err != nil {
			return nil, fmt.Errorf("invalid tag id %q in edge: %w", tagID, err)
		}
		snap.Edges[issueID] = append(snap.Edges[issueID], parsed)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan edges: %w", err)
	}

	return snap, nil
}

// TouchMarker announces a committed write batch to watchers. No-op for
// in-memory stores.
func (db *DB) TouchMarker() error {
	if db.memory {
		return nil
	}

	seq := db.seq.Add(1)
	line := fmt.Sprintf("%s %d %s\n", db.deviceID, seq, time.Now().Format(time.RFC3339Nano))
	if err := os.WriteFile(db.MarkerPath(), []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to write change marker: %w", err)
	}
	return nil
}

// ReadMarker parses a change marker file, returning the writing device's id
// and the batch sequence number it stamped.
func ReadMarker(path string) (deviceID string, seq uint64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read change marker: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("malformed change marker")
	}
	seq, err = strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed change marker sequence %q: %w", fields[1], err)
	}
	return fields[0], seq, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToNullString converts an optional time to a nullable TEXT value.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// parseNullableTimeString parses a nullable time from a TEXT column.
// Supports RFC3339Nano, RFC3339 and SQLite's native format.
func parseNullableTimeString(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// parseTimeString parses a required timestamp, returning the zero time if
// the value is unparseable.
func parseTimeString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
