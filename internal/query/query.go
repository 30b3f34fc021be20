// Package query builds and executes filtered, sorted views over the live
// object graph. Queries are total functions: they always return a fresh
// snapshot, never an error, and nothing here is cached.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/facetapp/facet/internal/store"
	"github.com/facetapp/facet/internal/types"
)

// TokenTrigger is the character that switches free text into tag-token
// suggestion mode.
const TokenTrigger = "#"

// Predicate decides whether an issue belongs in a result set.
type Predicate func(*types.Issue) bool

// And is the conjunction of preds. An empty conjunction matches everything.
func And(preds ...Predicate) Predicate {
	return func(issue *types.Issue) bool {
		for _, p := range preds {
			if !p(issue) {
				return false
			}
		}
		return true
	}
}

// Or is the disjunction of preds. An empty disjunction matches nothing.
func Or(preds ...Predicate) Predicate {
	return func(issue *types.Issue) bool {
		for _, p := range preds {
			if p(issue) {
				return true
			}
		}
		return false
	}
}

// Engine answers filter/search queries against a store.
type Engine struct {
	store *store.Store
}

// New returns an engine reading from s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// IssuesForFilter returns the issues matching the filter scope and the
// search session, sorted per the session's sort settings. The direction
// flag inverts the primary sort key only; ties always break by the default
// issue ordering.
func (e *Engine) IssuesForFilter(filter types.Filter, search types.SearchState) []*types.Issue {
	pred := e.buildPredicate(filter, search)

	var matches []*types.Issue
	for _, issue := range e.store.Issues() {
		if pred(issue) {
			matches = append(matches, issue)
		}
	}

	keyTime := func(i *types.Issue) int64 {
		if search.SortField == types.SortModified {
			return i.Modified.UnixNano()
		}
		return i.Created.UnixNano()
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		av, bv := keyTime(a), keyTime(b)
		if av == bv {
			return types.LessIssues(a, b)
		}
		if search.NewestFirst {
			return av > bv
		}
		return av < bv
	})

	if search.RankByMatch {
		rankByMatchPosition(matches, strings.TrimSpace(search.Text))
	}

	return matches
}

// buildPredicate assembles the conjunction of the session's predicates.
func (e *Engine) buildPredicate(filter types.Filter, search types.SearchState) Predicate {
	var preds []Predicate

	// Scope: either the filter's bound tag, or its modification threshold.
	if filter.Tag != nil {
		tagID := filter.Tag.ID
		preds = append(preds, func(i *types.Issue) bool {
			return e.store.HasTag(i.ID, tagID)
		})
	} else if !filter.MinModified.IsZero() {
		min := filter.MinModified
		preds = append(preds, func(i *types.Issue) bool {
			return i.Modified.After(min)
		})
	}

	if text := strings.ToLower(strings.TrimSpace(search.Text)); text != "" {
		preds = append(preds, Or(
			func(i *types.Issue) bool { return strings.Contains(strings.ToLower(i.Title), text) },
			func(i *types.Issue) bool { return strings.Contains(strings.ToLower(i.Content), text) },
		))
	}

	// Every selected token must be carried.
	for _, tagID := range search.Tokens {
		id := tagID
		preds = append(preds, func(i *types.Issue) bool {
			return e.store.HasTag(i.ID, id)
		})
	}

	if search.FilterEnabled {
		if search.Priority >= 0 {
			want := types.Priority(search.Priority)
			preds = append(preds, func(i *types.Issue) bool {
				return i.Priority == want
			})
		}
		if search.Status != types.StatusAll {
			wantClosed := search.Status == types.StatusClosed
			preds = append(preds, func(i *types.Issue) bool {
				return i.Completed == wantClosed
			})
		}
	}

	return And(preds...)
}

// rankByMatchPosition reorders matches so that issues whose title contains
// the search text earlier come first. Issues without a title match sink to
// the end, keeping their relative order.
func rankByMatchPosition(matches []*types.Issue, text string) {
	if text == "" {
		return
	}
	lowered := strings.ToLower(text)

	pos := func(i *types.Issue) int {
		idx := strings.Index(strings.ToLower(i.Title), lowered)
		if idx < 0 {
			return int(^uint(0) >> 1) // no match sorts last
		}
		return idx
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return pos(matches[i]) < pos(matches[j])
	})
}

// SuggestedTokens returns the tags whose names contain the text after the
// '#' trigger, ascending-sorted. Without the trigger it returns nothing.
func (e *Engine) SuggestedTokens(text string) []*types.Tag {
	if !strings.HasPrefix(text, TokenTrigger) {
		return nil
	}

	needle := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(text, TokenTrigger)))

	var out []*types.Tag
	for _, tag := range e.store.Tags() {
		if needle == "" || strings.Contains(strings.ToLower(tag.Name), needle) {
			out = append(out, tag)
		}
	}
	return out // store.Tags() is already ascending-sorted
}

// TokenIDs resolves suggested tokens to their IDs, a convenience for
// building SearchState.Tokens.
func TokenIDs(tags []*types.Tag) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// ParseText splits raw search input into free text and tag tokens. Words
// starting with the token trigger resolve to tags through SuggestedTokens,
// preferring an exact name match over a substring one; the remaining words
// become the free-text needle. An unknown or ambiguous token word is an
// error.
func (e *Engine) ParseText(input string) (string, []uuid.UUID, error) {
	var plain []string
	var tags []*types.Tag

	for _, word := range strings.Fields(input) {
		if !strings.HasPrefix(word, TokenTrigger) {
			plain = append(plain, word)
			continue
		}
		tag, err := e.resolveToken(word)
		if err != nil {
			return "", nil, err
		}
		tags = append(tags, tag)
	}

	return strings.Join(plain, " "), TokenIDs(tags), nil
}

// resolveToken maps one '#'-word to a single tag.
func (e *Engine) resolveToken(word string) (*types.Tag, error) {
	name := strings.TrimPrefix(word, TokenTrigger)
	suggestions := e.SuggestedTokens(word)

	for _, tag := range suggestions {
		if strings.EqualFold(tag.Name, name) {
			return tag, nil
		}
	}
	switch len(suggestions) {
	case 0:
		return nil, fmt.Errorf("no tag matching %q", word)
	case 1:
		return suggestions[0], nil
	}
	return nil, fmt.Errorf("tag token %q is ambiguous", word)
}
