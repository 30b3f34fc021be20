package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/store/sqlite"
)

// Save cancels any pending debounced save and commits the dirty set now.
// A clean session is a no-op: durable storage is not touched and no
// timestamps move. Storage failures are logged and swallowed; the dirty set
// is kept so the next save retries, with in-memory state as the source of
// truth in the meantime.
func (s *Store) Save() {
	s.cancelQueuedSave()
	s.commitPending()
}

// collectBatch builds the pending write batch. Modified is bumped on the
// batched clones only; the live issues pick it up once the commit lands, so
// a failed commit leaves in-memory timestamps untouched. Caller holds s.mu.
func (s *Store) collectBatch() *sqlite.Batch {
	batch := &sqlite.Batch{}

	now := s.now()
	for issueID := range s.dirtyIssues {
		issue, ok := s.issues[issueID]
		if !ok {
			continue
		}
		clone := issue.Clone()
		clone.Modified = now
		batch.UpsertIssues = append(batch.UpsertIssues, clone)
	}
	for tagID := range s.dirtyTags {
		if tag, ok := s.tags[tagID]; ok {
			batch.UpsertTags = append(batch.UpsertTags, tag.Clone())
		}
	}
	for issueID := range s.dirtyEdges {
		if _, ok := s.issues[issueID]; !ok {
			continue
		}
		edges := make([]uuid.UUID, 0, len(s.issueTags[issueID]))
		for tagID := range s.issueTags[issueID] {
			edges = append(edges, tagID)
		}
		if batch.SetEdges == nil {
			batch.SetEdges = make(map[string][]uuid.UUID)
		}
		batch.SetEdges[issueID] = edges
	}
	for issueID := range s.deletedIssues {
		batch.DeleteIssues = append(batch.DeleteIssues, issueID)
	}
	for tagID := range s.deletedTags {
		batch.DeleteTags = append(batch.DeleteTags, tagID)
	}

	return batch
}

// QueueSave schedules a save after the configured debounce window.
func (s *Store) QueueSave() {
	s.QueueSaveAfter(s.debounce)
}

// QueueSaveAfter schedules a save after delay. Re-arming replaces any
// pending timer, so a burst of rapid edits coalesces into a single durable
// write. A timer cancelled before firing never writes.
func (s *Store) QueueSaveAfter(delay time.Duration) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}

	s.saveSeq++
	seq := s.saveSeq

	s.saveTimer = time.AfterFunc(delay, func() {
		s.saveMu.Lock()
		if s.saveSeq != seq {
			// A later QueueSave or a Save superseded this timer.
			s.saveMu.Unlock()
			return
		}
		s.saveTimer = nil
		s.saveSeq++
		s.saveMu.Unlock()

		s.commitPending()
	})
}

// cancelQueuedSave stops any pending debounced save.
func (s *Store) cancelQueuedSave() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.saveSeq++
}

// commitPending writes the dirty set if there is one.
func (s *Store) commitPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.collectBatch()
	if batch.Empty() {
		return
	}

	if err := s.db.Apply(context.Background(), batch); err != nil {
		s.logger.Printf("save: storage error (will retry on next save): %v", err)
		return
	}

	// Commit succeeded: the dirty set is durable now.
	for _, issue := range batch.UpsertIssues {
		if live, ok := s.issues[issue.ID]; ok {
			live.Modified = issue.Modified
		}
		delete(s.dirtyIssues, issue.ID)
	}
	for _, tag := range batch.UpsertTags {
		delete(s.dirtyTags, tag.ID)
	}
	for issueID := range batch.SetEdges {
		delete(s.dirtyEdges, issueID)
	}
	s.deletedIssues = make(map[string]struct{})
	s.deletedTags = make(map[uuid.UUID]struct{})
}
