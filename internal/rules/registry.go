// internal/rules/registry.go
package rules

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/solatis/metasync/internal/types"
	"github.com/zeebo/blake3"
)

/*
 * Descriptor registry snapshots.
 *
 * A Registry is built once from rule and mapping descriptors and never
 * mutated. Reloading configuration builds a new Registry and publishes it
 * through a Holder; a match that already loaded the old snapshot finishes
 * against it.
 *
 * Every snapshot carries:
 *   - Generation: assigned by the Holder on publish, monotonic per Holder
 *   - Digest: blake3 over the core-deterministic CBOR encoding of the
 *     descriptors, so two loads of the same files compare equal
 */

// Registry is an immutable snapshot of rule and mapping descriptors.
type Registry struct {
	generation uint64
	digest     string
	rules      []types.RuleDescriptor
	ruleIndex  map[string]int
	mappings   map[string]types.MappingDescriptor
	mappingIDs []string // sorted
	filters    FilterEvaluator
}

// NewRegistry validates descriptors and builds a snapshot.
// Rules keep declaration order; that order drives conflict resolution
// between mappings writing the same property.
func NewRegistry(rules []types.RuleDescriptor, mappings []types.MappingDescriptor) (*Registry, error) {
	r := &Registry{
		rules:     make([]types.RuleDescriptor, 0, len(rules)),
		ruleIndex: make(map[string]int, len(rules)),
		mappings:  make(map[string]types.MappingDescriptor, len(mappings)),
	}

	for _, rule := range rules {
		if _, exists := r.ruleIndex[rule.ID]; exists {
			return nil, fmt.Errorf("%w: %q", types.ErrDuplicateRule, rule.ID)
		}
		r.ruleIndex[rule.ID] = len(r.rules)
		r.rules = append(r.rules, cloneRule(rule))
	}

	for _, m := range mappings {
		if _, exists := r.mappings[m.ID]; exists {
			return nil, fmt.Errorf("%w: %q", types.ErrDuplicateMapping, m.ID)
		}
		if err := validateBindings(m); err != nil {
			return nil, err
		}
		r.mappings[m.ID] = cloneMapping(m)
		r.mappingIDs = append(r.mappingIDs, m.ID)
	}
	sort.Strings(r.mappingIDs)

	digest, err := r.computeDigest()
	if err != nil {
		return nil, err
	}
	r.digest = digest

	return r, nil
}

// validateBindings enforces the one-to-one tag name <-> property path
// correspondence of a mapping.
func validateBindings(m types.MappingDescriptor) error {
	if len(m.Metadata) > types.MaxMetadataDescriptors {
		return fmt.Errorf("mapping %q binds %d tags, limit is %d",
			m.ID, len(m.Metadata), types.MaxMetadataDescriptors)
	}
	names := make(map[string]struct{}, len(m.Metadata))
	paths := make(map[string]struct{}, len(m.Metadata))
	for _, md := range m.Metadata {
		if _, dup := names[md.Name]; dup {
			return fmt.Errorf("%w: mapping %q tag %q", types.ErrDuplicateTagName, m.ID, md.Name)
		}
		if _, dup := paths[md.PropertyPath]; dup {
			return fmt.Errorf("%w: mapping %q property %q", types.ErrDuplicatePropertyPath, m.ID, md.PropertyPath)
		}
		names[md.Name] = struct{}{}
		paths[md.PropertyPath] = struct{}{}
	}
	return nil
}

// digestInput is the canonical form hashed into Digest.
type digestInput struct {
	Rules    []types.RuleDescriptor    `cbor:"rules"`
	Mappings []types.MappingDescriptor `cbor:"mappings"`
}

func (r *Registry) computeDigest() (string, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return "", fmt.Errorf("cbor encoder: %w", err)
	}
	data, err := em.Marshal(digestInput{Rules: r.rules, Mappings: r.Mappings()})
	if err != nil {
		return "", fmt.Errorf("encode registry: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WithFilters returns a copy of the snapshot that evaluates rule filters
// with ev. Filters are not part of Digest.
func (r *Registry) WithFilters(ev FilterEvaluator) *Registry {
	snap := *r
	snap.filters = ev
	return &snap
}

// Filters returns the snapshot's filter evaluator. A snapshot built without
// one rejects every filter id with types.ErrUnknownFilter.
func (r *Registry) Filters() FilterEvaluator {
	if r.filters == nil {
		return noFilters{}
	}
	return r.filters
}

type noFilters struct{}

func (noFilters) EvaluateFilter(id string, _ types.Subject) (bool, error) {
	return false, fmt.Errorf("%w: %q", types.ErrUnknownFilter, id)
}

// Generation returns the publish generation (0 until published by a Holder).
func (r *Registry) Generation() uint64 { return r.generation }

// Digest returns the hex blake3 content digest of the descriptors.
func (r *Registry) Digest() string { return r.digest }

// Rules returns the rule descriptors in declaration order.
func (r *Registry) Rules() []types.RuleDescriptor {
	out := make([]types.RuleDescriptor, len(r.rules))
	copy(out, r.rules)
	return out
}

// Rule looks up a rule descriptor by id.
func (r *Registry) Rule(id string) (types.RuleDescriptor, bool) {
	i, ok := r.ruleIndex[id]
	if !ok {
		return types.RuleDescriptor{}, false
	}
	return r.rules[i], true
}

// Mapping looks up a mapping descriptor by id.
func (r *Registry) Mapping(id string) (types.MappingDescriptor, bool) {
	m, ok := r.mappings[id]
	return m, ok
}

// Mappings returns all mapping descriptors sorted by id.
func (r *Registry) Mappings() []types.MappingDescriptor {
	out := make([]types.MappingDescriptor, 0, len(r.mappingIDs))
	for _, id := range r.mappingIDs {
		out = append(out, r.mappings[id])
	}
	return out
}

func cloneRule(rule types.RuleDescriptor) types.RuleDescriptor {
	rule.FilterIDs = append([]string(nil), rule.FilterIDs...)
	rule.MappingIDs = append([]string(nil), rule.MappingIDs...)
	return rule
}

func cloneMapping(m types.MappingDescriptor) types.MappingDescriptor {
	m.Metadata = append([]types.MetadataDescriptor(nil), m.Metadata...)
	return m
}

// Holder publishes registry snapshots.
// Load is lock-free; Publish serializes so the visible generation never
// goes backwards.
type Holder struct {
	mu         sync.Mutex
	current    atomic.Pointer[Registry]
	generation uint64
}

// NewHolder returns a holder publishing initial as generation 1.
func NewHolder(initial *Registry) *Holder {
	h := &Holder{}
	h.Publish(initial)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Publish stamps next with the following generation and swaps it in.
// Returns the published snapshot. next itself is left untouched.
func (h *Holder) Publish(next *Registry) *Registry {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generation++
	snap := *next
	snap.generation = h.generation
	h.current.Store(&snap)
	return &snap
}
