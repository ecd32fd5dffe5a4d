// Package rules decides, for a document mutation, which metadata mappings
// apply, in which lane they run and in which direction data flows.
//
// The package performs no I/O and does not log. Pipeline:
//
//	Match -> PartitionRules -> Resolve (per lane) -> Reconcile (per mapping)
//
// Engine bundles the first three steps against the current registry
// snapshot as Plan.
package rules

import "github.com/solatis/metasync/internal/types"

// Plan is the result of matching one subject against a registry snapshot.
type Plan struct {
	Generation    uint64
	Digest        string
	Matched       []types.RuleDescriptor
	Partition     Partition
	SyncMappings  []types.MappingDescriptor
	AsyncMappings []types.MappingDescriptor
	Missing       []MissingMapping
}

// Empty reports whether no mapping applies.
func (p *Plan) Empty() bool {
	return p.Partition.Empty()
}

// Engine runs the rule pipeline against the snapshot published in a Holder.
// Safe for concurrent use.
type Engine struct {
	registry *Holder
}

// NewEngine creates an engine reading snapshots from registry.
func NewEngine(registry *Holder) *Engine {
	return &Engine{registry: registry}
}

// Registry returns the current snapshot.
func (e *Engine) Registry() *Registry {
	return e.registry.Load()
}

// Plan matches subject against the current snapshot, partitions the matched
// rules and resolves both lanes. Each lane reports its own missing ids; an
// id missing from both lanes is reported twice.
func (e *Engine) Plan(subject types.Subject) (*Plan, error) {
	return PlanWith(e.registry.Load(), subject)
}

// PlanWith runs the pipeline against an explicit snapshot.
func PlanWith(reg *Registry, subject types.Subject) (*Plan, error) {
	matched, err := Match(reg.rules, subject, reg.Filters())
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Generation: reg.Generation(),
		Digest:     reg.Digest(),
		Matched:    matched,
		Partition:  PartitionRules(matched),
	}

	var missing []MissingMapping
	plan.SyncMappings, missing = Resolve(plan.Partition.Sync, reg)
	plan.Missing = append(plan.Missing, missing...)
	plan.AsyncMappings, missing = Resolve(plan.Partition.Async, reg)
	plan.Missing = append(plan.Missing, missing...)

	return plan, nil
}

// Reconcile delegates to the package-level Reconcile.
func (e *Engine) Reconcile(mapping types.MappingDescriptor, record Record) (Outcome, error) {
	return Reconcile(mapping, record)
}
