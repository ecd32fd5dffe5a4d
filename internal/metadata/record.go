package metadata

import "github.com/solatis/metasync/internal/document"

// frozenRecord reads values from a live document but answers IsDirty from a
// fixed set of paths. Mappings applied one after another then all see the
// dirty state of the triggering mutation, not each other's write-backs.
type frozenRecord struct {
	*document.Document
	dirty map[string]bool
}

func freeze(doc *document.Document, dirtyPaths []string) *frozenRecord {
	dirty := make(map[string]bool, len(dirtyPaths))
	for _, path := range dirtyPaths {
		dirty[path] = true
	}
	return &frozenRecord{Document: doc, dirty: dirty}
}

func (r *frozenRecord) IsDirty(path string) bool {
	return r.dirty[path]
}
