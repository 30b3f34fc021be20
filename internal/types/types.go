// Package types defines the core data structures for the facet issue tracker.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency of an issue.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityMedium Priority = 1
	PriorityHigh   Priority = 2
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the defined priority levels.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// Default display names for freshly created entities.
const (
	DefaultIssueTitle = "New issue"
	DefaultTagName    = "New tag"
)

// Issue represents a trackable work item.
//
// Title, Content and Priority are always well-defined values: the storage
// layer may hold NULLs, but they are coerced to "" / PriorityMedium at the
// read boundary, so nothing past this struct ever sees a missing value.
type Issue struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`

	Completed bool     `json:"completed"`
	Priority  Priority `json:"priority"`

	Created  time.Time `json:"created_at"`
	Modified time.Time `json:"updated_at"` // bumped by the storage layer on every commit that touched this issue

	ReminderEnabled bool       `json:"reminder_enabled,omitempty"`
	Reminder        *time.Time `json:"reminder,omitempty"`
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	if i.Reminder != nil {
		r := *i.Reminder
		c.Reminder = &r
	}
	return &c
}

// Tag is a user-defined label attached to issues (many-to-many).
type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Clone returns a copy of the tag.
func (t *Tag) Clone() *Tag {
	c := *t
	return &c
}

// LessIssues is the default total ordering for issues: case-insensitive
// title, ties broken by creation date ascending.
func LessIssues(a, b *Issue) bool {
	left := strings.ToLower(a.Title)
	right := strings.ToLower(b.Title)
	if left == right {
		return a.Created.Before(b.Created)
	}
	return left < right
}

// LessTags is the default total ordering for tags: case-insensitive name,
// ties broken by the canonical UUID string ascending.
func LessTags(a, b *Tag) bool {
	left := strings.ToLower(a.Name)
	right := strings.ToLower(b.Name)
	if left == right {
		return a.ID.String() < b.ID.String()
	}
	return left < right
}
