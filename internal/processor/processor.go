// Package processor reads and writes embedded binary metadata through
// external tools.
//
// Processors are registered by id in a Registry. Callers pass an optional
// processor id; the empty id selects the registry default ("exifTool"), an
// unknown explicit id fails with types.ErrProcessorNotFound.
package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/solatis/metasync/internal/types"
)

// DefaultID is the id of the exiftool processor registered by default.
const DefaultID = "exifTool"

// Processor extracts and writes tags of a blob.
type Processor interface {
	// Read returns the blob's tags. An empty tagKeys returns every tag.
	// With ignorePrefix false, keys carry their group prefix ("EXIF:Model").
	Read(ctx context.Context, blob *types.Blob, tagKeys []string, ignorePrefix bool) (map[string]any, error)

	// Write sets tags in the blob and replaces blob.Data with the result.
	// A nil value clears the tag. Returns true when the content changed.
	Write(ctx context.Context, blob *types.Blob, values map[string]any, ignorePrefix bool) (bool, error)
}

// Registry maps processor ids to processors.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
	defaultID  string
}

// NewRegistry creates an empty registry whose default is defaultID
// (DefaultID when empty).
func NewRegistry(defaultID string) *Registry {
	if defaultID == "" {
		defaultID = DefaultID
	}
	return &Registry{processors: make(map[string]Processor), defaultID: defaultID}
}

// Register adds p under id. Duplicate ids are rejected.
func (r *Registry) Register(id string, p Processor) error {
	if id == "" || p == nil {
		return fmt.Errorf("processor id and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[id]; exists {
		return fmt.Errorf("duplicate processor id %q", id)
	}
	r.processors[id] = p
	return nil
}

// Get returns the processor for id; the empty id selects the default.
func (r *Registry) Get(id string) (Processor, error) {
	if id == "" {
		id = r.defaultID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrProcessorNotFound, id)
	}
	return p, nil
}

// DefaultID returns the id used for empty processor ids.
func (r *Registry) DefaultID() string { return r.defaultID }

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.processors))
	for id := range r.processors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Read reads tags with the processor selected by id.
func (r *Registry) Read(ctx context.Context, id string, blob *types.Blob, tagKeys []string, ignorePrefix bool) (map[string]any, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return p.Read(ctx, blob, tagKeys, ignorePrefix)
}

// Write writes tags with the processor selected by id.
func (r *Registry) Write(ctx context.Context, id string, blob *types.Blob, values map[string]any, ignorePrefix bool) (bool, error) {
	p, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return p.Write(ctx, blob, values, ignorePrefix)
}
