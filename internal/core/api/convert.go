package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

/*
 * Wire shapes (google.protobuf.Struct, shown as JSON):
 *
 *   document:  {"id"?, "type", "facets"?: [..], "properties"?: {path: value},
 *               "blobs"?: {path: blob | null}}
 *   blob:      {"filename", "mimeType", "data": base64}
 *   outcome:   {"mapping", "direction", "blobDirty", "mappingDirty"}
 *
 * A document with an id is an update of the stored document: listed
 * properties are set (null removes them), listed blobs attached (null
 * detaches them). Without an id a new document is built.
 */

type fields map[string]any

func (f fields) str(key string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgument, key)
	}
	return s, nil
}

func (f fields) required(key string) (string, error) {
	s, err := f.str(key)
	if err == nil && s == "" {
		err = fmt.Errorf("%w: %s is required", ErrInvalidArgument, key)
	}
	return s, err
}

func (f fields) boolean(key string) (bool, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArgument, key)
	}
	return b, nil
}

func (f fields) object(key string) (fields, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidArgument, key)
	}
	return m, nil
}

func (f fields) strings(key string) ([]string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidArgument, key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must hold strings", ErrInvalidArgument, key)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeBlob(f fields) (*types.Blob, error) {
	filename, err := f.required("filename")
	if err != nil {
		return nil, err
	}
	mimeType, err := f.str("mimeType")
	if err != nil {
		return nil, err
	}
	encoded, err := f.str("data")
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: blob data: %v", ErrInvalidArgument, err)
	}
	return &types.Blob{Filename: filename, MimeType: mimeType, Data: data}, nil
}

func encodeBlob(b *types.Blob) map[string]any {
	return map[string]any{
		"filename": b.Filename,
		"mimeType": b.MimeType,
		"length":   float64(b.Length()),
		"digest":   document.Digest(b.Data),
		"data":     base64.StdEncoding.EncodeToString(b.Data),
	}
}

// applyChanges sets the properties and blobs listed in f on doc.
func applyChanges(doc *document.Document, f fields) error {
	props, err := f.object("properties")
	if err != nil {
		return err
	}
	for path, value := range props {
		if value == nil {
			doc.RemoveProperty(path)
			continue
		}
		if err := doc.SetProperty(path, value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	blobs, err := f.object("blobs")
	if err != nil {
		return err
	}
	for path, raw := range blobs {
		if raw == nil {
			if err := doc.SetBinary(path, nil); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
			}
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: blob %s must be an object", ErrInvalidArgument, path)
		}
		blob, err := decodeBlob(entry)
		if err != nil {
			return fmt.Errorf("blob %s: %w", path, err)
		}
		if err := doc.SetBinary(path, blob); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	return nil
}

func outcomeView(out rules.Outcome) map[string]any {
	return map[string]any{
		"mapping":      out.Mapping.ID,
		"direction":    out.Direction.String(),
		"blobDirty":    out.BlobDirty,
		"mappingDirty": out.MappingDirty,
	}
}

func outcomesView(outs []rules.Outcome) []any {
	list := make([]any, 0, len(outs))
	for _, out := range outs {
		list = append(list, outcomeView(out))
	}
	return list
}

func planView(plan *rules.Plan) map[string]any {
	matched := make([]any, 0, len(plan.Matched))
	for _, r := range plan.Matched {
		matched = append(matched, r.ID)
	}
	missing := make([]any, 0, len(plan.Missing))
	for _, m := range plan.Missing {
		missing = append(missing, m.ID)
	}
	return map[string]any{
		"generation": float64(plan.Generation),
		"digest":     plan.Digest,
		"matched":    matched,
		"sync":       stringList(plan.Partition.Sync),
		"async":      stringList(plan.Partition.Async),
		"missing":    missing,
	}
}

func stringList(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

// maxExactInt is the largest integer a Struct number carries exactly.
const maxExactInt = 1 << 53

// wireValue makes an extracted tag value encodable as a Struct value.
// Integers beyond float64 precision and other unparsable numbers travel
// as their decimal string.
func wireValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if n, err := x.Int64(); err == nil && n <= maxExactInt && n >= -maxExactInt {
				return float64(n)
			}
			return x.String()
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = wireValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = wireValue(item)
		}
		return out
	default:
		return v
	}
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return out, nil
}
