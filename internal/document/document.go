// Package document provides the record model the engine reconciles against
// and its SQL-backed store.
//
// A Document tracks a persisted baseline of its properties and blobs. A path
// is dirty when its current value differs from the baseline: setting a
// property back to its persisted value clears the flag, and a blob is dirty
// when its content digest, filename or mime type changes, or when it is
// attached or removed. Saving through the Store resets the baseline.
package document

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/solatis/metasync/internal/types"
)

// blobState is the part of a blob the baseline remembers.
type blobState struct {
	filename string
	mimeType string
	digest   string
}

// Document is a typed record with properties and attached blobs.
// Not safe for concurrent mutation.
type Document struct {
	id      types.DocumentID
	docType string
	facets  []string

	props map[string]any
	blobs map[string]*types.Blob

	baseProps map[string]any
	baseBlobs map[string]blobState
}

// New creates an unsaved document. Every property and blob set before the
// first save is dirty.
func New(docType string, facets ...string) *Document {
	return &Document{
		docType:   docType,
		facets:    append([]string(nil), facets...),
		props:     make(map[string]any),
		blobs:     make(map[string]*types.Blob),
		baseProps: make(map[string]any),
		baseBlobs: make(map[string]blobState),
	}
}

// ID returns the store identity, empty until the document is created.
func (d *Document) ID() types.DocumentID { return d.id }

// Type returns the document type.
func (d *Document) Type() string { return d.docType }

// Facets returns a copy of the document facets.
func (d *Document) Facets() []string { return append([]string(nil), d.facets...) }

// HasFacet reports whether the document carries facet.
func (d *Document) HasFacet(facet string) bool {
	for _, f := range d.facets {
		if f == facet {
			return true
		}
	}
	return false
}

// Exists reports whether the document has a stable identity in the store.
func (d *Document) Exists() bool { return d.id != "" }

// Property returns the current value at path. A blob path yields the blob's
// view entry.
func (d *Document) Property(path string) (any, error) {
	if v, ok := d.props[path]; ok {
		return v, nil
	}
	if b, ok := d.blobs[path]; ok {
		return blobView(b), nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrPropertyNotFound, path)
}

// Properties returns a copy of the scalar properties.
func (d *Document) Properties() types.Properties {
	out := make(types.Properties, len(d.props))
	for k, v := range d.props {
		out[k] = v
	}
	return out
}

// SetProperty sets path to value. The value is normalized to its JSON form
// (numbers become float64) so it compares equal to what the store returns.
func (d *Document) SetProperty(path string, value any) error {
	if _, ok := d.blobs[path]; ok {
		return fmt.Errorf("property %s holds a blob", path)
	}
	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("property %s: %w", path, err)
	}
	d.props[path] = normalized
	return nil
}

// RemoveProperty unsets path.
func (d *Document) RemoveProperty(path string) {
	delete(d.props, path)
}

// Binary returns the blob at path.
func (d *Document) Binary(path string) (*types.Blob, error) {
	if b, ok := d.blobs[path]; ok {
		return b, nil
	}
	if _, ok := d.props[path]; ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotABlob, path)
	}
	return nil, fmt.Errorf("%w: %s", types.ErrPropertyNotFound, path)
}

// SetBinary attaches blob at path, replacing any previous blob. A nil blob
// detaches it.
func (d *Document) SetBinary(path string, blob *types.Blob) error {
	if _, ok := d.props[path]; ok {
		return fmt.Errorf("property %s is not a blob property", path)
	}
	if blob == nil {
		delete(d.blobs, path)
		return nil
	}
	d.blobs[path] = blob.Clone()
	return nil
}

// BinaryPaths returns the paths holding blobs, sorted.
func (d *Document) BinaryPaths() []string {
	paths := make([]string, 0, len(d.blobs))
	for p := range d.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IsDirty reports whether path differs from the persisted baseline.
func (d *Document) IsDirty(path string) bool {
	if b, ok := d.blobs[path]; ok {
		base, persisted := d.baseBlobs[path]
		return !persisted || base != stateOf(b)
	}
	if _, persisted := d.baseBlobs[path]; persisted {
		return true // detached
	}

	cur, set := d.props[path]
	base, persisted := d.baseProps[path]
	if set != persisted {
		return true
	}
	return set && !reflect.DeepEqual(cur, base)
}

// DirtyPaths returns every dirty property and blob path, sorted.
func (d *Document) DirtyPaths() []string {
	seen := make(map[string]struct{})
	for p := range d.props {
		seen[p] = struct{}{}
	}
	for p := range d.baseProps {
		seen[p] = struct{}{}
	}
	for p := range d.blobs {
		seen[p] = struct{}{}
	}
	for p := range d.baseBlobs {
		seen[p] = struct{}{}
	}

	var dirty []string
	for p := range seen {
		if d.IsDirty(p) {
			dirty = append(dirty, p)
		}
	}
	sort.Strings(dirty)
	return dirty
}

// View returns the filter view of the document:
//
//	{"id", "type", "facets", "properties": {path: value | blob entry}}
//
// The tree holds only maps, slices, strings, float64, bool and nil.
func (d *Document) View() map[string]any {
	props := make(map[string]any, len(d.props)+len(d.blobs))
	for k, v := range d.props {
		props[k] = v
	}
	for k, b := range d.blobs {
		props[k] = blobView(b)
	}

	facets := make([]any, 0, len(d.facets))
	for _, f := range d.facets {
		facets = append(facets, f)
	}

	return map[string]any{
		"id":         string(d.id),
		"type":       d.docType,
		"facets":     facets,
		"properties": props,
	}
}

// markPersisted records id and resets the baseline to the current state.
func (d *Document) markPersisted(id types.DocumentID) {
	d.id = id
	d.baseProps = make(map[string]any, len(d.props))
	for k, v := range d.props {
		d.baseProps[k] = v
	}
	d.baseBlobs = make(map[string]blobState, len(d.blobs))
	for k, b := range d.blobs {
		d.baseBlobs[k] = stateOf(b)
	}
}

func stateOf(b *types.Blob) blobState {
	return blobState{filename: b.Filename, mimeType: b.MimeType, digest: Digest(b.Data)}
}

func blobView(b *types.Blob) map[string]any {
	return map[string]any{
		"filename": b.Filename,
		"mimeType": b.MimeType,
		"length":   float64(b.Length()),
		"digest":   Digest(b.Data),
	}
}

func normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
