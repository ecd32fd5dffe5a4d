// internal/rules/reconcile.go
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Dirty-state reconciliation.
 *
 * Decides, for one mapping and one record, which side of the blob/record
 * pair is the source of truth:
 *
 *   blobDirty  mappingDirty  direction
 *   true       true          PropagateToBinary
 *   true       false         PropagateToRecord
 *   false      true          PropagateToBinary
 *   false      false         NoOp
 *
 * Record edits always win. An absent blob, or a mapping that binds no tags,
 * is a NoOp. The reconciler only computes the outcome; reading and writing
 * tags belongs to the caller.
 */

// Record is the record context a reconciliation borrows.
// Property and Binary fail with types.ErrPropertyNotFound for unset paths.
type Record interface {
	types.Subject
	Property(path string) (any, error)
	IsDirty(path string) bool
	Binary(path string) (*types.Blob, error)
	Exists() bool
}

// Outcome is the result of reconciling one mapping.
type Outcome struct {
	Direction    types.Direction
	Mapping      types.MappingDescriptor
	BlobDirty    bool
	MappingDirty bool

	// Values is the PropagateToBinary payload: tag name -> current
	// property value. Unset properties carry nil.
	Values map[string]any

	// TagKeys is the PropagateToRecord request: the bound tag names only.
	TagKeys []string

	// Persist reports whether the record must be saved after a
	// PropagateToRecord write-back. Records not yet created are saved by
	// their creator.
	Persist bool
}

// Reconcile computes the propagation direction and payload for mapping.
func Reconcile(mapping types.MappingDescriptor, record Record) (Outcome, error) {
	out := Outcome{Direction: types.NoOp, Mapping: mapping}

	blob, err := record.Binary(mapping.BlobPath)
	switch {
	case errors.Is(err, types.ErrPropertyNotFound):
		return out, nil
	case err != nil:
		return out, fmt.Errorf("mapping %q: %w", mapping.ID, err)
	case blob == nil || len(mapping.Metadata) == 0:
		return out, nil
	}

	out.BlobDirty = record.IsDirty(mapping.BlobPath)
	for _, md := range mapping.Metadata {
		if record.IsDirty(md.PropertyPath) {
			out.MappingDirty = true
			break
		}
	}

	switch {
	case out.MappingDirty:
		out.Direction = types.PropagateToBinary
		out.Values = make(map[string]any, len(mapping.Metadata))
		for _, md := range mapping.Metadata {
			value, err := record.Property(md.PropertyPath)
			if err != nil && !errors.Is(err, types.ErrPropertyNotFound) {
				return Outcome{Direction: types.NoOp, Mapping: mapping},
					fmt.Errorf("mapping %q: read %s: %w", mapping.ID, md.PropertyPath, err)
			}
			out.Values[md.Name] = value
		}
	case out.BlobDirty:
		out.Direction = types.PropagateToRecord
		out.TagKeys = mapping.TagNames()
		out.Persist = record.Exists()
	}

	return out, nil
}

// Assignments maps tags returned by a reader onto property paths.
// Tags the mapping does not bind and nil values are dropped. Values are
// written in their string form.
func (o Outcome) Assignments(extracted map[string]any) map[string]string {
	byTag := o.Mapping.PropertyByTag()
	out := make(map[string]string, len(extracted))
	for tag, value := range extracted {
		path, ok := byTag[tag]
		if !ok || value == nil {
			continue
		}
		out[path] = StringForm(value)
	}
	return out
}

// StringForm renders an extracted tag value as a property string.
// Integral floats drop the fraction, lists are joined with ", ".
func StringForm(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, StringForm(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+StringForm(v[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
