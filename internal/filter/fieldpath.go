// internal/filter/fieldpath.go
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Field path resolution over document views.
 *
 * A view is the decoded JSON-compatible tree returned by Subject.View():
 * map[string]any, []any and scalars. Paths are parsed once at compile time
 * and resolved per evaluation without re-decoding.
 *
 * Path syntax:
 *   type                      object key
 *   properties.dc:title       nested keys (':' is part of the key)
 *   facets[0]                 array index
 *   facets[*]  / properties.* wildcard over array elements / object values
 *
 * Wildcard semantics: first match wins (ANY). Object wildcards iterate keys
 * in sorted order so evaluation is deterministic.
 */

// PathSegment represents one component of a field path.
type PathSegment struct {
	Key      string // object key (mutually exclusive with Index/Wildcard)
	Index    int    // array index (mutually exclusive with Key/Wildcard)
	IsIndex  bool   // disambiguates Index=0 from unset
	Wildcard bool   // true = wildcard segment
}

// String renders the segment in path syntax.
func (s PathSegment) String() string {
	switch {
	case s.Wildcard:
		return "[*]"
	case s.IsIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	default:
		return s.Key
	}
}

// FormatPath renders a parsed path back to its textual form.
func FormatPath(path []PathSegment) string {
	var b strings.Builder
	for i, seg := range path {
		if i > 0 && !seg.IsIndex && !seg.Wildcard {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// ParsePath parses the textual path syntax into segments.
// Returns ErrInvalidPath for empty segments or malformed brackets.
func ParsePath(s string) ([]PathSegment, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty path", types.ErrInvalidPath)
	}

	var path []PathSegment
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", types.ErrInvalidPath, s)
		}
		if part == "*" {
			path = append(path, PathSegment{Wildcard: true})
			continue
		}

		key := part
		var brackets string
		if idx := strings.IndexByte(part, '['); idx >= 0 {
			key, brackets = part[:idx], part[idx:]
		}
		if key != "" {
			path = append(path, PathSegment{Key: key})
		}

		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if brackets[0] != '[' || end < 0 {
				return nil, fmt.Errorf("%w: malformed index in %q", types.ErrInvalidPath, s)
			}
			inner := brackets[1:end]
			brackets = brackets[end+1:]
			if inner == "*" {
				path = append(path, PathSegment{Wildcard: true})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", types.ErrInvalidPath, inner, s)
			}
			path = append(path, PathSegment{Index: n, IsIndex: true})
		}
	}

	if err := checkPathLimits(path); err != nil {
		return nil, err
	}
	return path, nil
}

// checkPathLimits enforces MaxPathDepth and MaxNestedWildcards.
func checkPathLimits(path []PathSegment) error {
	if len(path) > types.MaxPathDepth {
		return types.ErrPathTooDeep
	}
	wildcards := 0
	for _, seg := range path {
		if seg.Wildcard {
			wildcards++
		}
	}
	if wildcards > types.MaxNestedWildcards {
		return types.ErrTooManyWildcards
	}
	return nil
}

// ResolveResult contains the resolved value and the actual path taken.
type ResolveResult struct {
	Value        any           // resolved value (nil if not found)
	ResolvedPath []PathSegment // path with wildcards replaced by actual keys/indices
	Found        bool          // true if path resolved to a value
}

// Resolve traverses view following path segments.
// Returns ErrPathTooDeep / ErrTooManyWildcards for paths over the limits and
// ErrFieldNotFound if the path does not exist in view.
func Resolve(path []PathSegment, view any) (ResolveResult, error) {
	if err := checkPathLimits(path); err != nil {
		return ResolveResult{}, err
	}
	return resolveRecursive(path, view, nil)
}

// resolveRecursive walks nested maps and slices. Wildcards return the first
// element for which the remaining path resolves.
func resolveRecursive(path []PathSegment, current any, resolvedSoFar []PathSegment) (ResolveResult, error) {
	if len(path) == 0 {
		return ResolveResult{
			Value:        current,
			ResolvedPath: resolvedSoFar,
			Found:        true,
		}, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				resolved := appendSegment(resolvedSoFar, PathSegment{Key: key})
				result, err := resolveRecursive(remaining, v[key], resolved)
				if err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if seg.IsIndex {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		val, ok := v[seg.Key]
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, val, appendSegment(resolvedSoFar, seg))

	case []any:
		if seg.Wildcard {
			for i, elem := range v {
				resolved := appendSegment(resolvedSoFar, PathSegment{Index: i, IsIndex: true})
				result, err := resolveRecursive(remaining, elem, resolved)
				if err == nil && result.Found {
					return result, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if !seg.IsIndex || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v[seg.Index], appendSegment(resolvedSoFar, seg))

	default:
		// nil or scalar with path remaining
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

// appendSegment copies before appending so wildcard siblings never share
// a backing array.
func appendSegment(path []PathSegment, seg PathSegment) []PathSegment {
	out := make([]PathSegment, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}
