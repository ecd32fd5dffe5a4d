// Package types provides domain models shared across metasync components.
//
// Zero-dependency design: types.go, descriptors.go and errors.go use only the
// standard library so the engine and its collaborators can share them without
// pulling in storage or transport deps. ID utilities in ids.go import uuid but
// are isolated in their own file.
package types

import "bytes"

// DocumentID identifies a stored document (UUIDv7).
// Empty DocumentID means the document has not been created yet.
type DocumentID string

// WorkID identifies a deferred work item (UUIDv7).
type WorkID string

// Properties is the decoded property map of a document.
// Keys are property paths such as "dc:title"; values are JSON-compatible.
type Properties map[string]any

// Blob is the binary payload attached to a document property.
// Data is the full content; tag extraction tools operate on it as a file.
type Blob struct {
	Filename string
	MimeType string
	Data     []byte
}

// Length returns the content length in bytes (0 for a nil blob).
func (b *Blob) Length() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Clone returns a deep copy so callers can mutate Data without aliasing.
func (b *Blob) Clone() *Blob {
	if b == nil {
		return nil
	}
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &Blob{Filename: b.Filename, MimeType: b.MimeType, Data: data}
}

// Equal reports whether two blobs carry the same name, type and content.
func (b *Blob) Equal(other *Blob) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.Filename == other.Filename &&
		b.MimeType == other.MimeType &&
		bytes.Equal(b.Data, other.Data)
}

// Direction is the propagation direction chosen for one mapping evaluation.
type Direction int

const (
	// NoOp means nothing needs to be synchronized.
	NoOp Direction = iota
	// PropagateToBinary writes record properties into the binary payload.
	PropagateToBinary
	// PropagateToRecord extracts binary tags into record properties.
	PropagateToRecord
	// Conflict is reserved; the decision table resolves every dirty
	// combination in favour of the record, so it is never produced.
	Conflict
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	switch d {
	case NoOp:
		return "noop"
	case PropagateToBinary:
		return "to_binary"
	case PropagateToRecord:
		return "to_record"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Resource limits for descriptors and filter evaluation.
const (
	// MaxPathDepth prevents stack overflow during recursive view resolution.
	MaxPathDepth = 16

	// MaxNestedWildcards limits wildcard expansion in filter paths.
	MaxNestedWildcards = 2

	// MaxInOperatorValues bounds IN operator lists in filter conditions.
	MaxInOperatorValues = 64

	// MaxMetadataDescriptors bounds the tag bindings of one mapping.
	// exiftool receives one argument per bound tag.
	MaxMetadataDescriptors = 256
)
