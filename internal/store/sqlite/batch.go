package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/types"
)

// Batch is one coalesced set of pending mutations, committed atomically.
type Batch struct {
	UpsertTags   []*types.Tag
	UpsertIssues []*types.Issue

	// SetEdges replaces the full tag set for each listed issue.
	SetEdges map[string][]uuid.UUID

	DeleteIssues []string
	DeleteTags   []uuid.UUID
}

// Empty reports whether the batch contains no work.
func (b *Batch) Empty() bool {
	return len(b.UpsertTags) == 0 &&
		len(b.UpsertIssues) == 0 &&
		len(b.SetEdges) == 0 &&
		len(b.DeleteIssues) == 0 &&
		len(b.DeleteTags) == 0
}

// Apply commits a batch in a single transaction and announces it via the
// change marker. One Apply is one durable write.
func (db *DB) Apply(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Empty() {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range batch.UpsertTags {
		if err := upsertTagTx(ctx, tx, tag); err != nil {
			return err
		}
	}

	for _, issue := range batch.UpsertIssues {
		if err := upsertIssueTx(ctx, tx, issue); err != nil {
			return err
		}
	}

	for issueID, tagIDs := range batch.SetEdges {
		if _, err := tx.ExecContext(ctx, `DELETE FROM issue_tags WHERE issue_id = ?`, issueID); err != nil {
			return fmt.Errorf("failed to clear edges for %s: %w", issueID, err)
		}
		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO issue_tags (issue_id, tag_id) VALUES (?, ?)`,
				issueID, tagID.String()); err != nil {
				return fmt.Errorf("failed to add edge %s--%s: %w", issueID, tagID, err)
			}
		}
	}

	for _, issueID := range batch.DeleteIssues {
		if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, issueID); err != nil {
			return fmt.Errorf("failed to delete issue %s: %w", issueID, err)
		}
	}

	for _, tagID := range batch.DeleteTags {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, tagID.String()); err != nil {
			return fmt.Errorf("failed to delete tag %s: %w", tagID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.commits.Add(1)
	if err := db.TouchMarker(); err != nil {
		// The data is durable; only the announcement failed.
		return err
	}
	return nil
}

// Commits returns how many write batches have been committed on this
// connection. Used by tests to assert debounce coalescing.
func (db *DB) Commits() uint64 {
	return db.commits.Load()
}

func upsertIssueTx(ctx context.Context, tx *sql.Tx, issue *types.Issue) error {
	if issue.ID == "" {
		return fmt.Errorf("issue id is required")
	}

	_, err := tx.ExecContext(ctx, `
	INSERT INTO issues (
		id, title, content, completed, priority,
		created_at, updated_at, reminder_enabled, reminder_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		completed = excluded.completed,
		priority = excluded.priority,
		updated_at = excluded.updated_at,
		reminder_enabled = excluded.reminder_enabled,
		reminder_at = excluded.reminder_at
	`,
		issue.ID,
		issue.Title,
		issue.Content,
		boolToInt(issue.Completed),
		int(issue.Priority),
		issue.Created.Format(time.RFC3339Nano),
		issue.Modified.Format(time.RFC3339Nano),
		boolToInt(issue.ReminderEnabled),
		timeToNullString(issue.Reminder),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert issue %s: %w", issue.ID, err)
	}
	return nil
}

func upsertTagTx(ctx context.Context, tx *sql.Tx, tag *types.Tag) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO tags (id, name) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, tag.ID.String(), tag.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %s: %w", tag.ID, err)
	}
	return nil
}
