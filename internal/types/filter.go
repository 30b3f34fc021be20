package types

import (
	"time"

	"github.com/google/uuid"
)

// Filter is a named query descriptor selecting a scope of issues, either by
// bound tag or by a minimum modification date. It is never persisted.
type Filter struct {
	ID          uuid.UUID
	Name        string
	Icon        string
	MinModified time.Time // zero value means "no threshold"
	Tag         *Tag
}

// Equal compares filters by ID only. Two filters whose bound tag was renamed
// out from under them still compare equal, which is what keeps selection
// state stable across tag edits.
func (f Filter) Equal(other Filter) bool {
	return f.ID == other.ID
}

// RecentWindow is how far back the Recent filter reaches.
const RecentWindow = 7 * 24 * time.Hour

// Canonical filters. Their IDs are fixed for the lifetime of the process so
// that selection state can round-trip through them.
var (
	allFilterID    = uuid.New()
	recentFilterID = uuid.New()
)

// AllFilter matches every issue.
func AllFilter() Filter {
	return Filter{ID: allFilterID, Name: "All Issues", Icon: "tray"}
}

// RecentFilter matches issues modified within the last seven days.
func RecentFilter() Filter {
	return Filter{
		ID:          recentFilterID,
		Name:        "Recent Issues",
		Icon:        "clock",
		MinModified: time.Now().Add(-RecentWindow),
	}
}

// FilterForTag derives the 1:1 filter for a live tag. The filter's ID is the
// tag's ID, so re-deriving after a rename yields an equal filter.
func FilterForTag(tag *Tag) Filter {
	return Filter{ID: tag.ID, Name: tag.Name, Icon: "tag", Tag: tag}
}

// SortField selects the timestamp a query sorts by.
type SortField string

const (
	SortCreated  SortField = "created"
	SortModified SortField = "modified"
)

// StatusFilter narrows a query to open or closed issues.
type StatusFilter string

const (
	StatusAll    StatusFilter = "all"
	StatusOpen   StatusFilter = "open"
	StatusClosed StatusFilter = "closed"
)

// AnyPriority disables the priority filter.
const AnyPriority = -1

// SearchState is the caller-held filter/search session consumed by the query
// engine. The zero value filters nothing and sorts oldest first by creation
// date; NewSearchState is the newest-first default a UI starts from.
type SearchState struct {
	// Text is matched case-insensitively against title and content. A
	// leading '#' turns it into a tag-token trigger instead (see
	// Engine.SuggestedTokens).
	Text string

	// Tokens are tag IDs an issue must carry all of.
	Tokens []uuid.UUID

	// FilterEnabled gates Priority and Status below.
	FilterEnabled bool
	Priority      int // AnyPriority, or an exact Priority value
	Status        StatusFilter

	SortField   SortField
	NewestFirst bool

	// RankByMatch reorders free-text results by where the match occurs in
	// the title. Off by default.
	RankByMatch bool
}

// NewSearchState returns the default session state.
func NewSearchState() SearchState {
	return SearchState{
		Priority:    AnyPriority,
		Status:      StatusAll,
		SortField:   SortCreated,
		NewestFirst: true,
	}
}
