package rules

import "github.com/solatis/metasync/internal/types"

// FilterEvaluator evaluates named filters against a subject.
// Implementations must fail with types.ErrUnknownFilter (wrapped) for ids
// they do not know, so the matcher can tell a configuration error from a
// filter that evaluated to false.
type FilterEvaluator interface {
	EvaluateFilter(id string, subject types.Subject) (bool, error)
}
