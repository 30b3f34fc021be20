package store

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/store/sqlite"
	"github.com/facetapp/facet/internal/types"
)

func remoteIssue(id, title string) *types.Issue {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return &types.Issue{ID: id, Title: title, Priority: types.PriorityMedium, Created: now, Modified: now}
}

// TestApplyRemote_CleanEntityReplaced tests that committed local state
// yields to the remote version
func TestApplyRemote_CleanEntityReplaced(t *testing.T) {
	s := testStore(t)

	issue := s.NewIssue(nil)
	// NewIssue commits, so the issue is clean now.

	remote := remoteIssue(issue.ID, "Edited elsewhere")
	s.ApplyRemote(&sqlite.Snapshot{Issues: []*types.Issue{remote}})

	got, ok := s.Issue(issue.ID)
	if !ok {
		t.Fatal("issue disappeared")
	}
	if got.Title != "Edited elsewhere" {
		t.Errorf("Title = %q, want the remote edit", got.Title)
	}
}

// TestApplyRemote_DirtyEntityWins tests the in-memory-wins conflict policy
func TestApplyRemote_DirtyEntityWins(t *testing.T) {
	s := testStore(t)

	issue := s.NewIssue(nil)
	issue.Title = "Local unsaved edit"
	if err := s.UpdateIssue(issue); err != nil {
		t.Fatalf("UpdateIssue() failed: %v", err)
	}
	// No Save: the edit is pending.

	remote := remoteIssue(issue.ID, "Remote edit")
	s.ApplyRemote(&sqlite.Snapshot{Issues: []*types.Issue{remote}})

	got, _ := s.Issue(issue.ID)
	if got.Title != "Local unsaved edit" {
		t.Errorf("Title = %q, want the dirty local edit to win", got.Title)
	}
}

// TestApplyRemote_RemovesAbsentEntities tests remote deletions
func TestApplyRemote_RemovesAbsentEntities(t *testing.T) {
	s := testStore(t)

	issue := s.NewIssue(nil)
	s.ApplyRemote(&sqlite.Snapshot{})

	if _, ok := s.Issue(issue.ID); ok {
		t.Error("clean issue absent from the remote snapshot should be removed")
	}
	if _, ok := s.SelectedIssue(); ok {
		t.Error("selection should clear when the selected issue is removed remotely")
	}
}

// TestApplyRemote_KeepsPendingCreations tests that uncommitted local
// creations survive a remote snapshot that predates them
func TestApplyRemote_KeepsPendingCreations(t *testing.T) {
	s := testStore(t)

	issue := s.NewIssue(nil)
	issue.Title = "still dirty"
	if err := s.UpdateIssue(issue); err != nil {
		t.Fatalf("UpdateIssue() failed: %v", err)
	}

	s.ApplyRemote(&sqlite.Snapshot{})

	if _, ok := s.Issue(issue.ID); !ok {
		t.Error("dirty local issue should survive an older remote snapshot")
	}
}

// TestApplyRemote_NotifiesOncePerBatch tests that each remote batch
// produces exactly one notification
func TestApplyRemote_NotifiesOncePerBatch(t *testing.T) {
	s := testStore(t)

	var calls atomic.Int64
	defer s.Subscribe(func() { calls.Add(1) })()

	snap := &sqlite.Snapshot{Issues: []*types.Issue{
		remoteIssue("r1", "one"),
		remoteIssue("r2", "two"),
		remoteIssue("r3", "three"),
	}}
	s.ApplyRemote(snap)

	if got := calls.Load(); got != 1 {
		t.Errorf("batch produced %d notifications, want exactly 1", got)
	}

	s.ApplyRemote(&sqlite.Snapshot{Issues: snap.Issues, Tags: []*types.Tag{{ID: uuid.New(), Name: "bug"}}})
	if got := calls.Load(); got != 2 {
		t.Errorf("two batches produced %d notifications, want 2", got)
	}
}

// TestApplyRemote_RebuildsEdges tests that remote relationship changes land
func TestApplyRemote_RebuildsEdges(t *testing.T) {
	s := testStore(t)

	tagID := uuid.New()
	snap := &sqlite.Snapshot{
		Issues: []*types.Issue{remoteIssue("r1", "tagged")},
		Tags:   []*types.Tag{{ID: tagID, Name: "bug"}},
		Edges:  map[string][]uuid.UUID{"r1": {tagID}},
	}
	s.ApplyRemote(snap)

	if !s.HasTag("r1", tagID) {
		t.Error("remote edge not applied")
	}

	// The next batch drops the edge.
	snap.Edges = map[string][]uuid.UUID{}
	s.ApplyRemote(snap)
	if s.HasTag("r1", tagID) {
		t.Error("removed remote edge still present")
	}
}
