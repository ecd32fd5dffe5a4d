// internal/filter/cue.go
package filter

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

/*
 * CUE constraint filters.
 *
 * The filter source is a CUE value; the document view is encoded into the
 * same context and unified with it. The filter passes when the unified value
 * validates as concrete: a conflicting value fails unification, and a
 * constrained field that is absent from the view stays non-concrete.
 *
 *   type: "Picture"
 *   properties: "file:content": mimeType: =~"^image/"
 *
 * cue.Context is not safe for concurrent use, so evaluation is serialized
 * per filter.
 */

// CUEFilter matches views against a compiled CUE constraint.
type CUEFilter struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// CompileCUE compiles a CUE constraint source.
func CompileCUE(src string) (*CUEFilter, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(src)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile cue filter: %w", err)
	}
	return &CUEFilter{ctx: ctx, schema: schema}, nil
}

// Match reports whether the view satisfies the constraint.
func (f *CUEFilter) Match(view map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.ctx.Encode(view)
	if err := doc.Err(); err != nil {
		return false, fmt.Errorf("encode view for cue filter: %w", err)
	}
	unified := f.schema.Unify(doc)
	return unified.Validate(cue.Concrete(true)) == nil, nil
}
