package rules

import (
	"fmt"

	"github.com/solatis/metasync/internal/types"
)

// MissingMapping is the warning produced for a mapping id a rule references
// but the registry does not hold. It is not an error: the id is skipped and
// the remaining mappings proceed.
type MissingMapping struct {
	ID string
}

func (m MissingMapping) String() string {
	return fmt.Sprintf("missing mapping descriptor %q", m.ID)
}

// MappingLookup finds mapping descriptors by id. *Registry implements it.
type MappingLookup interface {
	Mapping(id string) (types.MappingDescriptor, bool)
}

// Resolve looks up each id once, in input order. Unknown ids produce one
// MissingMapping each and are skipped.
func Resolve(ids []string, lookup MappingLookup) ([]types.MappingDescriptor, []MissingMapping) {
	var (
		resolved []types.MappingDescriptor
		missing  []MissingMapping
	)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		m, ok := lookup.Mapping(id)
		if !ok {
			missing = append(missing, MissingMapping{ID: id})
			continue
		}
		resolved = append(resolved, m)
	}
	return resolved, missing
}
