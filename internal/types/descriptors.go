// internal/types/descriptors.go
package types

/*
 * Descriptor types for metadata synchronization.
 *
 * Rule and mapping descriptors are created once at configuration load and
 * never mutated afterwards. A reload builds new descriptors and a new
 * registry snapshot; nothing here is shared mutable state.
 *
 * Key types:
 *   - RuleDescriptor: gate (enabled + filters) activating mappings, sync or async
 *   - MappingDescriptor: blob locator, processor options and tag bindings
 *   - MetadataDescriptor: one tag key <-> property path binding
 *   - Subject: read-only view used by filters
 */

// RuleDescriptor activates zero or more mappings when all its filters pass.
type RuleDescriptor struct {
	ID         string   `yaml:"id" json:"id" cbor:"id"`
	Enabled    bool     `yaml:"enabled" json:"enabled" cbor:"enabled"`
	FilterIDs  []string `yaml:"filters" json:"filters" cbor:"filters"`
	Async      bool     `yaml:"async" json:"async" cbor:"async"`
	MappingIDs []string `yaml:"mappings" json:"mappings" cbor:"mappings"`
}

// MetadataDescriptor binds a tag key to a record property path.
type MetadataDescriptor struct {
	Name         string `yaml:"name" json:"name" cbor:"name"`
	PropertyPath string `yaml:"property" json:"property" cbor:"property"`
}

// MappingDescriptor declares how one blob property maps onto record properties.
// Empty ProcessorID selects the default processor.
type MappingDescriptor struct {
	ID           string               `yaml:"id" json:"id" cbor:"id"`
	BlobPath     string               `yaml:"blob" json:"blob" cbor:"blob"`
	ProcessorID  string               `yaml:"processor" json:"processor,omitempty" cbor:"processor"`
	IgnorePrefix bool                 `yaml:"ignorePrefix" json:"ignorePrefix" cbor:"ignorePrefix"`
	Metadata     []MetadataDescriptor `yaml:"metadata" json:"metadata" cbor:"metadata"`
}

// TagNames returns the bound tag keys in declaration order.
func (m *MappingDescriptor) TagNames() []string {
	names := make([]string, 0, len(m.Metadata))
	for _, md := range m.Metadata {
		names = append(names, md.Name)
	}
	return names
}

// PropertyByTag returns the tag key -> property path correspondence.
func (m *MappingDescriptor) PropertyByTag() map[string]string {
	byTag := make(map[string]string, len(m.Metadata))
	for _, md := range m.Metadata {
		byTag[md.Name] = md.PropertyPath
	}
	return byTag
}

// Subject is the read-only document view filters are evaluated against.
// View returns a JSON-compatible tree: maps, slices, strings, float64, bool.
type Subject interface {
	View() map[string]any
}
