package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestLessIssues_TitleCaseInsensitive tests that issue ordering ignores
// title case
func TestLessIssues_TitleCaseInsensitive(t *testing.T) {
	now := time.Now()
	a := &Issue{Title: "apple", Created: now}
	b := &Issue{Title: "Banana", Created: now}

	if !LessIssues(a, b) {
		t.Error("LessIssues(apple, Banana) = false, want true")
	}
	if LessIssues(b, a) {
		t.Error("LessIssues(Banana, apple) = true, want false")
	}
}

// TestLessIssues_TieBreakByCreation tests that equal titles fall back to
// creation date
func TestLessIssues_TieBreakByCreation(t *testing.T) {
	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	a := &Issue{Title: "Same", Created: earlier}
	b := &Issue{Title: "same", Created: later}

	if !LessIssues(a, b) {
		t.Error("earlier issue should sort first on equal titles")
	}
	if LessIssues(b, a) {
		t.Error("later issue should not sort first on equal titles")
	}
}

// TestLessTags_NameThenID tests tag ordering by name with UUID tie-break
func TestLessTags_NameThenID(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	tests := []struct {
		name string
		a, b *Tag
		want bool
	}{
		{"by name", &Tag{ID: idB, Name: "alpha"}, &Tag{ID: idA, Name: "beta"}, true},
		{"by name reversed", &Tag{ID: idA, Name: "beta"}, &Tag{ID: idB, Name: "alpha"}, false},
		{"tie by id", &Tag{ID: idA, Name: "same"}, &Tag{ID: idB, Name: "same"}, true},
		{"tie by id reversed", &Tag{ID: idB, Name: "same"}, &Tag{ID: idA, Name: "same"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LessTags(tt.a, tt.b); got != tt.want {
				t.Errorf("LessTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilterEqual_IDOnly tests that filter identity ignores every field
// but the id
func TestFilterEqual_IDOnly(t *testing.T) {
	id := uuid.New()
	a := Filter{ID: id, Name: "One", Icon: "star"}
	b := Filter{ID: id, Name: "Completely different", MinModified: time.Now()}

	if !a.Equal(b) {
		t.Error("filters with the same id should be equal")
	}
	if a.Equal(Filter{ID: uuid.New(), Name: "One", Icon: "star"}) {
		t.Error("filters with different ids should not be equal")
	}
}

// TestBuiltinFilters_StableIDs tests that the built-in filters keep their
// identity across calls
func TestBuiltinFilters_StableIDs(t *testing.T) {
	if !AllFilter().Equal(AllFilter()) {
		t.Error("AllFilter identity should be stable")
	}
	if !RecentFilter().Equal(RecentFilter()) {
		t.Error("RecentFilter identity should be stable")
	}
	if AllFilter().Equal(RecentFilter()) {
		t.Error("AllFilter and RecentFilter should differ")
	}
}

// TestFilterForTag_SharesTagID tests that a tag filter adopts the tag's id
func TestFilterForTag_SharesTagID(t *testing.T) {
	tag := &Tag{ID: uuid.New(), Name: "bug"}
	f := FilterForTag(tag)

	if f.ID != tag.ID {
		t.Errorf("filter id = %s, want %s", f.ID, tag.ID)
	}
	if f.Tag == nil || f.Tag.ID != tag.ID {
		t.Error("filter should carry the tag")
	}
}

// TestPriority_Valid tests the priority range check
func TestPriority_Valid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if !p.Valid() {
			t.Errorf("Priority(%d).Valid() = false, want true", p)
		}
	}
	for _, p := range []Priority{-1, 3, 100} {
		if p.Valid() {
			t.Errorf("Priority(%d).Valid() = true, want false", p)
		}
	}
}

// TestIssueClone_Independent tests that clones do not share reminder
// pointers
func TestIssueClone_Independent(t *testing.T) {
	reminder := time.Now()
	orig := &Issue{ID: "a", Title: "original", ReminderEnabled: true, Reminder: &reminder}

	clone := orig.Clone()
	clone.Title = "changed"
	*clone.Reminder = clone.Reminder.Add(time.Hour)

	if orig.Title != "original" {
		t.Error("clone shares title with original")
	}
	if !orig.Reminder.Equal(reminder) {
		t.Error("clone shares reminder pointer with original")
	}
}

// TestNewSearchState_Defaults tests the default session state
func TestNewSearchState_Defaults(t *testing.T) {
	s := NewSearchState()

	if s.Priority != AnyPriority {
		t.Errorf("Priority = %d, want AnyPriority", s.Priority)
	}
	if s.Status != StatusAll {
		t.Errorf("Status = %q, want %q", s.Status, StatusAll)
	}
	if s.SortField != SortCreated {
		t.Errorf("SortField = %q, want %q", s.SortField, SortCreated)
	}
	if !s.NewestFirst {
		t.Error("NewestFirst = false, want true")
	}
	if s.RankByMatch {
		t.Error("RankByMatch = true, want false")
	}
}
