// Package store implements the in-memory object graph of issues and tags,
// backed by the durable sqlite layer.
//
// The graph is the single shared mutable resource: every mutation and every
// read goes through one mutex, so callers always observe a consistent graph.
// Mutations mark entities dirty; the persistence scheduler (save.go) commits
// the dirty set to durable storage, either immediately or after a debounce
// window. Remote changes arriving through the sync reconciler are merged in
// via ApplyRemote with in-memory-wins conflict semantics.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/store/sqlite"
	"github.com/facetapp/facet/internal/types"
)

// TagQuota is the free-tier cap on tag creation.
const TagQuota = 3

// ErrTagQuotaExceeded is returned by NewTag when the premium unlock is
// locked and the tag count has reached the free-tier cap.
var ErrTagQuotaExceeded = errors.New("tag quota exceeded: unlock the full version to create more tags")

// Entitlements reports whether premium mutations are unlocked.
// A nil Entitlements is treated as locked.
type Entitlements interface {
	Unlocked() bool
}

// Store owns the live object graph.
type Store struct {
	mu sync.Mutex

	db     *sqlite.DB
	logger *log.Logger

	issues map[string]*types.Issue
	tags   map[uuid.UUID]*types.Tag

	// Relationship edges, indexed both ways.
	issueTags map[string]map[uuid.UUID]struct{}
	tagIssues map[uuid.UUID]map[string]struct{}

	// Pending mutations not yet committed to durable storage.
	dirtyIssues   map[string]struct{}
	dirtyTags     map[uuid.UUID]struct{}
	dirtyEdges    map[string]struct{}
	deletedIssues map[string]struct{}
	deletedTags   map[uuid.UUID]struct{}

	entitlements Entitlements
	debounce     time.Duration

	// Selection state for the caller's UI. Filter equality is by ID, so
	// the selection survives field mutation of the bound tag.
	selectedFilter *types.Filter
	selectedIssue  string

	obsMu     sync.Mutex
	observers map[int]func()
	nextObs   int

	saveMu    sync.Mutex
	saveTimer *time.Timer
	saveSeq   uint64

	now func() time.Time
}

// DefaultDebounce is how long queued saves wait before committing.
const DefaultDebounce = 3 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithEntitlements wires the premium-unlock gate.
func WithEntitlements(e Entitlements) Option {
	return func(s *Store) { s.entitlements = e }
}

// WithLogger sets the store's logger. Defaults to stderr.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDebounce overrides the queued-save delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads the durable graph into memory and returns the live store.
// A load failure here is fatal to the caller: the process cannot run
// without its entity graph.
func New(db *sqlite.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:            db,
		issues:        make(map[string]*types.Issue),
		tags:          make(map[uuid.UUID]*types.Tag),
		issueTags:     make(map[string]map[uuid.UUID]struct{}),
		tagIssues:     make(map[uuid.UUID]map[string]struct{}),
		dirtyIssues:   make(map[string]struct{}),
		dirtyTags:     make(map[uuid.UUID]struct{}),
		dirtyEdges:    make(map[string]struct{}),
		deletedIssues: make(map[string]struct{}),
		deletedTags:   make(map[uuid.UUID]struct{}),
		observers:     make(map[int]func()),
		debounce:      DefaultDebounce,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	snap, err := db.LoadAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load object graph: %w", err)
	}
	s.install(snap)

	return s, nil
}

// NewInMemory creates an ephemeral store with a fresh :memory: database.
// Used by tests and previews.
func NewInMemory(opts ...Option) (*Store, error) {
	db, err := sqlite.Open(sqlite.MemoryPath, "ephemeral")
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the backing database for the reconciler and the CLI.
func (s *Store) DB() *sqlite.DB {
	return s.db
}

// Close flushes pending work and closes the backing database.
func (s *Store) Close() error {
	s.Save()
	return s.db.Close()
}

// install replaces the in-memory graph with a durable snapshot.
// Caller must hold no locks; used only during construction.
func (s *Store) install(snap *sqlite.Snapshot) {
	for _, issue := range snap.Issues {
		s.issues[issue.ID] = issue
		s.issueTags[issue.ID] = make(map[uuid.UUID]struct{})
	}
	for _, tag := range snap.Tags {
		s.tags[tag.ID] = tag
		s.tagIssues[tag.ID] = make(map[string]struct{})
	}
	for issueID, tagIDs := range snap.Edges {
		if _, ok := s.issues[issueID]; !ok {
			continue
		}
		for _, tagID := range tagIDs {
			if _, ok := s.tags[tagID]; !ok {
				continue
			}
			s.issueTags[issueID][tagID] = struct{}{}
			s.tagIssues[tagID][issueID] = struct{}{}
		}
	}
}

// Subscribe registers an observer called after every mutation and after
// every reconciled remote batch. The returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// notify invokes all observers. Never called with s.mu held.
func (s *Store) notify() {
	s.obsMu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// NewIssue creates an issue with default title, medium priority and the
// current creation date. If attach is non-nil the relationship is
// established immediately. The new issue becomes the selected issue and the
// creation is committed right away.
func (s *Store) NewIssue(attach *types.Tag) *types.Issue {
	s.mu.Lock()

	now := s.now()
	issue := &types.Issue{
		ID:       uuid.NewString(),
		Title:    types.DefaultIssueTitle,
		Priority: types.PriorityMedium,
		Created:  now,
		Modified: now,
	}

	s.issues[issue.ID] = issue
	s.issueTags[issue.ID] = make(map[uuid.UUID]struct{})
	s.dirtyIssues[issue.ID] = struct{}{}

	if attach != nil {
		if _, ok := s.tags[attach.ID]; ok {
			s.issueTags[issue.ID][attach.ID] = struct{}{}
			s.tagIssues[attach.ID][issue.ID] = struct{}{}
			s.dirtyEdges[issue.ID] = struct{}{}
		}
	}

	s.selectedIssue = issue.ID
	out := issue.Clone()
	s.mu.Unlock()

	s.notify()
	s.Save()
	return out
}

// NewTag creates a tag with a fresh identifier and the default name.
// Fails with ErrTagQuotaExceeded when the premium unlock is locked and the
// free-tier cap is reached; succeeds unconditionally when unlocked.
func (s *Store) NewTag() (*types.Tag, error) {
	s.mu.Lock()

	unlocked := s.entitlements != nil && s.entitlements.Unlocked()
	if !unlocked && len(s.tags) >= TagQuota {
		s.mu.Unlock()
		return nil, ErrTagQuotaExceeded
	}

	tag := &types.Tag{
		ID:   uuid.New(),
		Name: types.DefaultTagName,
	}
	s.tags[tag.ID] = tag
	s.tagIssues[tag.ID] = make(map[string]struct{})
	s.dirtyTags[tag.ID] = struct{}{}

	out := tag.Clone()
	s.mu.Unlock()

	s.notify()
	s.Save()
	return out, nil
}

// UpdateIssue applies edited fields to the stored issue and queues a
// debounced save. Modified is left alone here: the storage layer bumps it
// when the commit actually happens.
func (s *Store) UpdateIssue(issue *types.Issue) error {
	s.mu.Lock()

	current, ok := s.issues[issue.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown issue %s", issue.ID)
	}

	current.Title = issue.Title
	current.Content = issue.Content
	current.Completed = issue.Completed
	if issue.Priority.Valid() {
		current.Priority = issue.Priority
	}
	current.ReminderEnabled = issue.ReminderEnabled
	current.Reminder = nil
	if issue.Reminder != nil {
		r := *issue.Reminder
		current.Reminder = &r
	}
	s.dirtyIssues[issue.ID] = struct{}{}
	s.mu.Unlock()

	s.notify()
	s.QueueSave()
	return nil
}

// RenameTag changes a tag's name and queues a debounced save.
func (s *Store) RenameTag(tagID uuid.UUID, name string) error {
	s.mu.Lock()

	tag, ok := s.tags[tagID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tag %s", tagID)
	}
	tag.Name = name
	s.dirtyTags[tagID] = struct{}{}
	s.mu.Unlock()

	s.notify()
	s.QueueSave()
	return nil
}

// AddTagToIssue establishes the relationship. Idempotent.
func (s *Store) AddTagToIssue(issueID string, tagID uuid.UUID) error {
	s.mu.Lock()

	if _, ok := s.issues[issueID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown issue %s", issueID)
	}
	if _, ok := s.tags[tagID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tag %s", tagID)
	}

	s.issueTags[issueID][tagID] = struct{}{}
	s.tagIssues[tagID][issueID] = struct{}{}
	s.dirtyIssues[issueID] = struct{}{}
	s.dirtyEdges[issueID] = struct{}{}
	s.mu.Unlock()

	s.notify()
	s.QueueSave()
	return nil
}

// RemoveTagFromIssue removes the relationship. Idempotent.
func (s *Store) RemoveTagFromIssue(issueID string, tagID uuid.UUID) error {
	s.mu.Lock()

	if _, ok := s.issues[issueID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown issue %s", issueID)
	}

	delete(s.issueTags[issueID], tagID)
	if issues, ok := s.tagIssues[tagID]; ok {
		delete(issues, issueID)
	}
	s.dirtyIssues[issueID] = struct{}{}
	s.dirtyEdges[issueID] = struct{}{}
	s.mu.Unlock()

	s.notify()
	s.QueueSave()
	return nil
}

// DeleteIssue removes an issue and its relationship edges, then commits.
func (s *Store) DeleteIssue(issueID string) error {
	s.mu.Lock()

	if _, ok := s.issues[issueID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown issue %s", issueID)
	}

	for tagID := range s.issueTags[issueID] {
		delete(s.tagIssues[tagID], issueID)
	}
	delete(s.issueTags, issueID)
	delete(s.issues, issueID)
	delete(s.dirtyIssues, issueID)
	delete(s.dirtyEdges, issueID)
	s.deletedIssues[issueID] = struct{}{}

	if s.selectedIssue == issueID {
		s.selectedIssue = ""
	}
	s.mu.Unlock()

	s.notify()
	s.Save()
	return nil
}

// DeleteTag removes a tag and its relationship edges, then commits.
// Related issues are untouched: the edges are nullified, never cascaded.
func (s *Store) DeleteTag(tagID uuid.UUID) error {
	s.mu.Lock()

	if _, ok := s.tags[tagID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tag %s", tagID)
	}

	for issueID := range s.tagIssues[tagID] {
		delete(s.issueTags[issueID], tagID)
		s.dirtyEdges[issueID] = struct{}{}
	}
	delete(s.tagIssues, tagID)
	delete(s.tags, tagID)
	delete(s.dirtyTags, tagID)
	s.deletedTags[tagID] = struct{}{}
	s.mu.Unlock()

	s.notify()
	s.Save()
	return nil
}

// DeleteAll removes every tag and every issue via a durable batch delete.
// Afterwards both counts are zero, in memory and on disk. A storage failure
// is logged and swallowed; the in-memory graph is cleared either way and
// remains the source of truth.
func (s *Store) DeleteAll() {
	s.mu.Lock()

	if _, _, err := s.db.DeleteAll(context.Background()); err != nil {
		s.logger.Printf("delete all: storage error (keeping in-memory state): %v", err)
	}

	s.issues = make(map[string]*types.Issue)
	s.tags = make(map[uuid.UUID]*types.Tag)
	s.issueTags = make(map[string]map[uuid.UUID]struct{})
	s.tagIssues = make(map[uuid.UUID]map[string]struct{})
	s.dirtyIssues = make(map[string]struct{})
	s.dirtyTags = make(map[uuid.UUID]struct{})
	s.dirtyEdges = make(map[string]struct{})
	s.deletedIssues = make(map[string]struct{})
	s.deletedTags = make(map[uuid.UUID]struct{})
	s.selectedIssue = ""
	s.mu.Unlock()

	s.notify()
}

// MissingTags returns all tags not currently related to the issue,
// ascending-sorted by the default tag ordering.
func (s *Store) MissingTags(issueID string) []*types.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	related := s.issueTags[issueID]
	var missing []*types.Tag
	for id, tag := range s.tags {
		if _, ok := related[id]; !ok {
			missing = append(missing, tag.Clone())
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return types.LessTags(missing[i], missing[j])
	})
	return missing
}

// CountIssues counts issues matching pred. A nil pred counts everything.
func (s *Store) CountIssues(pred func(*types.Issue) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pred == nil {
		return len(s.issues)
	}
	count := 0
	for _, issue := range s.issues {
		if pred(issue) {
			count++
		}
	}
	return count
}

// CountTags returns the number of tags.
func (s *Store) CountTags() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

// Issues returns a snapshot of every issue. Unordered.
func (s *Store) Issues() []*types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		out = append(out, issue.Clone())
	}
	return out
}

// Issue returns a snapshot of one issue.
func (s *Store) Issue(issueID string) (*types.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[issueID]
	if !ok {
		return nil, false
	}
	return issue.Clone(), true
}

// Tags returns all tags, ascending-sorted.
func (s *Store) Tags() []*types.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Tag, 0, len(s.tags))
	for _, tag := range s.tags {
		out = append(out, tag.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return types.LessTags(out[i], out[j])
	})
	return out
}

// Tag returns a snapshot of one tag.
func (s *Store) Tag(tagID uuid.UUID) (*types.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.tags[tagID]
	if !ok {
		return nil, false
	}
	return tag.Clone(), true
}

// TagsFor returns the issue's tags, ascending-sorted.
func (s *Store) TagsFor(issueID string) []*types.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Tag
	for tagID := range s.issueTags[issueID] {
		if tag, ok := s.tags[tagID]; ok {
			out = append(out, tag.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return types.LessTags(out[i], out[j])
	})
	return out
}

// HasTag reports whether the issue carries the tag.
func (s *Store) HasTag(issueID string, tagID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.issueTags[issueID][tagID]
	return ok
}

// ActiveIssues returns the tag's incomplete issues.
func (s *Store) ActiveIssues(tagID uuid.UUID) []*types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Issue
	for issueID := range s.tagIssues[tagID] {
		if issue, ok := s.issues[issueID]; ok && !issue.Completed {
			out = append(out, issue.Clone())
		}
	}
	return out
}

// SelectFilter records the caller's filter selection.
func (s *Store) SelectFilter(f *types.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedFilter = f
}

// SelectedFilter returns the current filter selection, defaulting to All.
func (s *Store) SelectedFilter() types.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedFilter == nil {
		return types.AllFilter()
	}
	return *s.selectedFilter
}

// SelectedIssue returns the currently selected issue, if any.
func (s *Store) SelectedIssue() (*types.Issue, bool) {
	s.mu.Lock()
	id := s.selectedIssue
	s.mu.Unlock()
	if id == "" {
		return nil, false
	}
	return s.Issue(id)
}

// CreateSampleData populates five tags with ten issues each and commits.
// Used by tests and the debug reset affordance.
func (s *Store) CreateSampleData() {
	s.mu.Lock()
	now := s.now()

	for i := 1; i <= 5; i++ {
		tag := &types.Tag{ID: uuid.New(), Name: fmt.Sprintf("Tag %d", i)}
		s.tags[tag.ID] = tag
		s.tagIssues[tag.ID] = make(map[string]struct{})
		s.dirtyTags[tag.ID] = struct{}{}

		for j := 1; j <= 10; j++ {
			issue := &types.Issue{
				ID:        uuid.NewString(),
				Title:     fmt.Sprintf("Issue %d-%d", i, j),
				Content:   "Description goes here",
				Created:   now,
				Modified:  now,
				Completed: rand.Intn(2) == 0,
				Priority:  types.Priority(rand.Intn(3)),
			}
			s.issues[issue.ID] = issue
			s.issueTags[issue.ID] = map[uuid.UUID]struct{}{tag.ID: {}}
			s.tagIssues[tag.ID][issue.ID] = struct{}{}
			s.dirtyIssues[issue.ID] = struct{}{}
			s.dirtyEdges[issue.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	s.notify()
	s.Save()
}
