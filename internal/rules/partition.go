package rules

import "github.com/solatis/metasync/internal/types"

// DeferredMarker tags work items handed to the deferred lane.
const DeferredMarker = "binary-metadata/async"

// Partition holds the mapping ids of matched rules split by lane.
// Ids are unique within a lane and keep first-seen order. An id contributed
// by both a sync and an async rule appears in both lanes.
type Partition struct {
	Sync  []string
	Async []string
}

// Empty reports whether no mapping applies in either lane.
func (p Partition) Empty() bool {
	return len(p.Sync) == 0 && len(p.Async) == 0
}

// DeferredWork is the hand-off for the async lane.
type DeferredWork struct {
	Marker     string
	MappingIDs []string
}

// Deferred builds the deferred hand-off for the async lane.
// The second result is false when the async lane is empty.
func (p Partition) Deferred() (DeferredWork, bool) {
	if len(p.Async) == 0 {
		return DeferredWork{}, false
	}
	return DeferredWork{
		Marker:     DeferredMarker,
		MappingIDs: append([]string(nil), p.Async...),
	}, true
}

// PartitionRules unions the mapping ids of matched rules per lane.
func PartitionRules(matched []types.RuleDescriptor) Partition {
	var p Partition
	seenSync := make(map[string]struct{})
	seenAsync := make(map[string]struct{})

	for _, rule := range matched {
		lane, seen := &p.Sync, seenSync
		if rule.Async {
			lane, seen = &p.Async, seenAsync
		}
		for _, id := range rule.MappingIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			*lane = append(*lane, id)
		}
	}
	return p
}
