// internal/filter/coercion.go
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Type coercion for condition evaluation.
 *
 * Four field types (NUMERIC, TEXT, BOOLEAN, ANY) with strict and lenient modes.
 *
 * Null values and coercion failures trigger different policies: nil defers to
 * on_missing, a failed coercion (e.g. "abc" as numeric) to on_coercion_fail.
 *
 * Type modes:
 *   - NUMERIC: strict - strings parsed as float64, booleans rejected
 *   - TEXT: lenient - every scalar rendered as string
 *   - BOOLEAN: strict - boolean only
 *   - ANY: lenient - original value preserved
 */

// FieldType selects the coercion applied before comparison.
type FieldType int

const (
	FieldTypeAny FieldType = iota
	FieldTypeNumeric
	FieldTypeText
	FieldTypeBoolean
)

// ParseFieldType maps a descriptor type name to FieldType.
// Empty name means ANY.
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToLower(name) {
	case "", "any":
		return FieldTypeAny, nil
	case "numeric", "number":
		return FieldTypeNumeric, nil
	case "text", "string":
		return FieldTypeText, nil
	case "boolean", "bool":
		return FieldTypeBoolean, nil
	default:
		return FieldTypeAny, fmt.Errorf("unknown field type %q", name)
	}
}

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // coerced value (valid only if !IsNull)
	IsNull bool // true if input was nil
}

// Coerce converts value to the expected field type.
// Returns CoercionResult with IsNull=true for nil input and
// ErrCoercionFailed for impossible coercions.
func Coerce(value any, fieldType FieldType) (CoercionResult, error) {
	if value == nil {
		return CoercionResult{IsNull: true}, nil
	}

	switch fieldType {
	case FieldTypeNumeric:
		return coerceNumeric(value)
	case FieldTypeText:
		return coerceText(value)
	case FieldTypeBoolean:
		return coerceBoolean(value)
	case FieldTypeAny:
		return CoercionResult{Value: value}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceNumeric accepts Go numeric kinds and numeric strings.
// Whitespace-only strings and booleans fail.
func coerceNumeric(value any) (CoercionResult, error) {
	if f, ok := toFloat64(value); ok {
		return CoercionResult{Value: f}, nil
	}
	s, ok := value.(string)
	if !ok {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	return CoercionResult{Value: f}, nil
}

// coerceText renders scalars as strings. Maps and slices fail: comparing
// a structure against text is a descriptor mistake, not a match.
func coerceText(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case string:
		return CoercionResult{Value: v}, nil
	case bool:
		return CoercionResult{Value: strconv.FormatBool(v)}, nil
	case map[string]any, []any:
		return CoercionResult{}, types.ErrCoercionFailed
	}
	if f, ok := toFloat64(value); ok {
		return CoercionResult{Value: strconv.FormatFloat(f, 'f', -1, 64)}, nil
	}
	return CoercionResult{Value: fmt.Sprintf("%v", value)}, nil
}

// coerceBoolean accepts booleans only (avoids "true" vs 1 ambiguity).
func coerceBoolean(value any) (CoercionResult, error) {
	if v, ok := value.(bool); ok {
		return CoercionResult{Value: v}, nil
	}
	return CoercionResult{}, types.ErrCoercionFailed
}
