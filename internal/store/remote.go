package store

import (
	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/store/sqlite"
)

// ApplyRemote merges a freshly loaded durable snapshot into the live graph.
// This is the read path from storage into memory: it never writes back.
//
// Conflict policy is "in-memory wins": any entity with uncommitted local
// edits (dirty or pending deletion) keeps its local state; everything else
// is replaced by the remote version. Entities present locally but absent
// from the snapshot are removed unless they are local creations still
// waiting to be committed.
//
// Observers are notified exactly once per call, so each remote batch
// produces its own notification.
func (s *Store) ApplyRemote(snap *sqlite.Snapshot) {
	s.mu.Lock()

	remoteIssues := make(map[string]struct{}, len(snap.Issues))
	for _, issue := range snap.Issues {
		remoteIssues[issue.ID] = struct{}{}

		if _, deleted := s.deletedIssues[issue.ID]; deleted {
			continue
		}
		if _, dirty := s.dirtyIssues[issue.ID]; dirty {
			continue
		}
		s.issues[issue.ID] = issue
		if _, ok := s.issueTags[issue.ID]; !ok {
			s.issueTags[issue.ID] = make(map[uuid.UUID]struct{})
		}
	}

	remoteTags := make(map[uuid.UUID]struct{}, len(snap.Tags))
	for _, tag := range snap.Tags {
		remoteTags[tag.ID] = struct{}{}

		if _, deleted := s.deletedTags[tag.ID]; deleted {
			continue
		}
		if _, dirty := s.dirtyTags[tag.ID]; dirty {
			continue
		}
		s.tags[tag.ID] = tag
		if _, ok := s.tagIssues[tag.ID]; !ok {
			s.tagIssues[tag.ID] = make(map[string]struct{})
		}
	}

	// Remove entities deleted remotely, unless they are uncommitted local
	// creations or edits.
	for issueID := range s.issues {
		if _, ok := remoteIssues[issueID]; ok {
			continue
		}
		if _, dirty := s.dirtyIssues[issueID]; dirty {
			continue
		}
		for tagID := range s.issueTags[issueID] {
			delete(s.tagIssues[tagID], issueID)
		}
		delete(s.issueTags, issueID)
		delete(s.issues, issueID)
		if s.selectedIssue == issueID {
			s.selectedIssue = ""
		}
	}
	for tagID := range s.tags {
		if _, ok := remoteTags[tagID]; ok {
			continue
		}
		if _, dirty := s.dirtyTags[tagID]; dirty {
			continue
		}
		for issueID := range s.tagIssues[tagID] {
			delete(s.issueTags[issueID], tagID)
		}
		delete(s.tagIssues, tagID)
		delete(s.tags, tagID)
	}

	// Rebuild edges for issues without pending local edge edits.
	for issueID := range s.issues {
		if _, dirty := s.dirtyEdges[issueID]; dirty {
			continue
		}
		for tagID := range s.issueTags[issueID] {
			delete(s.tagIssues[tagID], issueID)
		}
		s.issueTags[issueID] = make(map[uuid.UUID]struct{})
		for _, tagID := range snap.Edges[issueID] {
			if _, ok := s.tags[tagID]; !ok {
				continue
			}
			s.issueTags[issueID][tagID] = struct{}{}
			s.tagIssues[tagID][issueID] = struct{}{}
		}
	}

	s.mu.Unlock()
	s.notify()
}
