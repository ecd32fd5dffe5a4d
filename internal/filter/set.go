// Package filter implements the predicates rules are gated on.
//
// Three filter kinds share the Filter interface: condition filters (OR of AND
// groups of field comparisons), CUE constraint filters, and programmatic
// FilterFunc values. A Set maps filter ids to filters and is what the rule
// matcher consults.
package filter

import (
	"fmt"
	"sort"

	"github.com/solatis/metasync/internal/types"
)

// Filter is a predicate over a document view.
type Filter interface {
	Match(view map[string]any) (bool, error)
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(view map[string]any) (bool, error)

// Match calls f(view).
func (f FilterFunc) Match(view map[string]any) (bool, error) {
	return f(view)
}

// Set is an id -> Filter registry.
// Populate it before publishing; after that it is read-only and safe for
// concurrent EvaluateFilter calls.
type Set struct {
	filters map[string]Filter
}

// NewSet returns an empty filter set.
func NewSet() *Set {
	return &Set{filters: make(map[string]Filter)}
}

// Register adds a filter under id. Duplicate ids are rejected.
func (s *Set) Register(id string, f Filter) error {
	if id == "" {
		return fmt.Errorf("filter id cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("filter %q cannot be nil", id)
	}
	if _, exists := s.filters[id]; exists {
		return fmt.Errorf("duplicate filter id %q", id)
	}
	s.filters[id] = f
	return nil
}

// Has reports whether id is registered.
func (s *Set) Has(id string) bool {
	_, ok := s.filters[id]
	return ok
}

// IDs returns the registered ids in sorted order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.filters))
	for id := range s.filters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered filters.
func (s *Set) Len() int {
	return len(s.filters)
}

// EvaluateFilter evaluates the filter registered under id against subject.
// Unknown ids fail with ErrUnknownFilter.
func (s *Set) EvaluateFilter(id string, subject types.Subject) (bool, error) {
	f, ok := s.filters[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", types.ErrUnknownFilter, id)
	}
	matched, err := f.Match(subject.View())
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", id, err)
	}
	return matched, nil
}
