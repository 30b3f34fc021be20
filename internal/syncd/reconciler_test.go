package syncd

import (
	"context"
	"log"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facetapp/facet/internal/store"
	"github.com/facetapp/facet/internal/store/sqlite"
	"github.com/facetapp/facet/internal/types"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

// testPair opens a durable store as device-a and a second writer handle on
// the same database as device-b
func testPair(t *testing.T) (*store.Store, *sqlite.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facet.db")

	db, err := sqlite.Open(path, "device-a")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	s, err := store.New(db, store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	writer, err := sqlite.Open(path, "device-b")
	if err != nil {
		t.Fatalf("Open() writer failed: %v", err)
	}
	t.Cleanup(func() { writer.Close() })

	return s, writer
}

func remoteIssue(id, title string) *types.Issue {
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	return &types.Issue{ID: id, Title: title, Priority: types.PriorityMedium, Created: now, Modified: now}
}

// TestNew_RejectsInMemoryStore tests that an ephemeral store cannot sync
func TestNew_RejectsInMemoryStore(t *testing.T) {
	s, err := store.NewInMemory(store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewInMemory() failed: %v", err)
	}
	defer s.Close()

	if _, err := New(s, quietLogger()); err == nil {
		t.Error("New() should reject a store without a change marker")
	}
}

// TestOnRemoteChange_MergesRemoteBatch tests a remote write landing with
// exactly one notification
func TestOnRemoteChange_MergesRemoteBatch(t *testing.T) {
	s, writer := testPair(t)

	r, err := New(s, quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var notifications atomic.Int64
	defer s.Subscribe(func() { notifications.Add(1) })()

	batch := &sqlite.Batch{UpsertIssues: []*types.Issue{
		remoteIssue("r1", "written elsewhere"),
		remoteIssue("r2", "also elsewhere"),
	}}
	if err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("writer Apply() failed: %v", err)
	}

	r.OnRemoteChange()

	if _, ok := s.Issue("r1"); !ok {
		t.Error("remote issue r1 not merged")
	}
	if _, ok := s.Issue("r2"); !ok {
		t.Error("remote issue r2 not merged")
	}
	if got := notifications.Load(); got != 1 {
		t.Errorf("remote batch produced %d notifications, want exactly 1", got)
	}
}

// TestOnRemoteChange_DuplicateEventsMergeOnce tests that re-reading the
// same marker stamp does not re-merge the batch
func TestOnRemoteChange_DuplicateEventsMergeOnce(t *testing.T) {
	s, writer := testPair(t)

	r, err := New(s, quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var notifications atomic.Int64
	defer s.Subscribe(func() { notifications.Add(1) })()

	batch := &sqlite.Batch{UpsertIssues: []*types.Issue{remoteIssue("r1", "written elsewhere")}}
	if err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("writer Apply() failed: %v", err)
	}

	// One marker write can arrive as several filesystem events.
	r.OnRemoteChange()
	r.OnRemoteChange()
	r.OnRemoteChange()

	if got := notifications.Load(); got != 1 {
		t.Errorf("duplicate events produced %d notifications, want exactly 1", got)
	}

	// A fresh batch advances the sequence and merges again.
	batch = &sqlite.Batch{UpsertIssues: []*types.Issue{remoteIssue("r2", "also elsewhere")}}
	if err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("writer Apply() failed: %v", err)
	}
	r.OnRemoteChange()

	if _, ok := s.Issue("r2"); !ok {
		t.Error("next batch not merged")
	}
	if got := notifications.Load(); got != 2 {
		t.Errorf("two distinct batches produced %d notifications, want 2", got)
	}
}

// TestOnRemoteChange_SkipsOwnWrites tests the device-id echo filter
func TestOnRemoteChange_SkipsOwnWrites(t *testing.T) {
	s, _ := testPair(t)

	r, err := New(s, quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// A local write stamps the marker with our own device id.
	s.NewIssue(nil)

	var notifications atomic.Int64
	defer s.Subscribe(func() { notifications.Add(1) })()

	r.OnRemoteChange()

	if got := notifications.Load(); got != 0 {
		t.Errorf("own write echoed back as %d notifications, want 0", got)
	}
}

// TestOnRemoteChange_LocalDirtyWins tests the merge policy across devices
func TestOnRemoteChange_LocalDirtyWins(t *testing.T) {
	s, writer := testPair(t)

	r, err := New(s, quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	issue := s.NewIssue(nil)
	issue.Title = "local unsaved edit"
	if err := s.UpdateIssue(issue); err != nil {
		t.Fatalf("UpdateIssue() failed: %v", err)
	}
	// No Save: the edit stays dirty.

	remote := remoteIssue(issue.ID, "remote edit")
	if err := writer.Apply(context.Background(), &sqlite.Batch{UpsertIssues: []*types.Issue{remote}}); err != nil {
		t.Fatalf("writer Apply() failed: %v", err)
	}

	r.OnRemoteChange()

	got, _ := s.Issue(issue.ID)
	if got.Title != "local unsaved edit" {
		t.Errorf("Title = %q, want the dirty local edit to win", got.Title)
	}
}

// TestRun_WatchesMarker tests the end-to-end watch loop
func TestRun_WatchesMarker(t *testing.T) {
	s, writer := testPair(t)

	r, err := New(s, quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	merged := make(chan struct{}, 8)
	defer s.Subscribe(func() { merged <- struct{}{} })()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the watcher a moment to install before the remote write.
	time.Sleep(100 * time.Millisecond)

	batch := &sqlite.Batch{UpsertIssues: []*types.Issue{remoteIssue("r1", "watched write")}}
	if err := writer.Apply(context.Background(), batch); err != nil {
		t.Fatalf("writer Apply() failed: %v", err)
	}

	select {
	case <-merged:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the remote batch to merge")
	}

	if _, ok := s.Issue("r1"); !ok {
		t.Error("watched issue not merged")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil after cancellation", err)
	}
}
