// internal/filter/operators.go
package filter

import (
	"fmt"
	"strings"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Values are coerced via Coerce() before reaching Compare().
 *
 * Operators:
 *   - exists/is_null: presence checks
 *   - eq/neq: equality with numeric tolerance across int/float kinds
 *   - lt/lte/gt/gte: numeric comparison only
 *   - prefix/suffix/contains: string matching
 *   - in: membership with equality semantics
 */

// Operator is a condition comparison operator.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpPrefix
	OpSuffix
	OpContains
	OpIn
	OpExists
	OpIsNull
)

var operatorNames = map[string]Operator{
	"eq":       OpEq,
	"neq":      OpNeq,
	"lt":       OpLt,
	"lte":      OpLte,
	"gt":       OpGt,
	"gte":      OpGte,
	"prefix":   OpPrefix,
	"suffix":   OpSuffix,
	"contains": OpContains,
	"in":       OpIn,
	"exists":   OpExists,
	"is_null":  OpIsNull,
}

// ParseOperator maps a descriptor operator name to Operator.
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorNames[strings.ToLower(name)]
	if !ok {
		return OpUnspecified, fmt.Errorf("%w: %q", types.ErrInvalidOperator, name)
	}
	return op, nil
}

// Compare applies the operator to compare value against target.
func Compare(op Operator, value, target any) bool {
	switch op {
	case OpExists:
		return value != nil
	case OpIsNull:
		return value == nil
	case OpEq:
		return compareEqual(value, target)
	case OpNeq:
		return !compareEqual(value, target)
	case OpLt:
		c, ok := compareNumeric(value, target)
		return ok && c < 0
	case OpLte:
		c, ok := compareNumeric(value, target)
		return ok && c <= 0
	case OpGt:
		c, ok := compareNumeric(value, target)
		return ok && c > 0
	case OpGte:
		c, ok := compareNumeric(value, target)
		return ok && c >= 0
	case OpPrefix:
		return compareStrings(value, target, strings.HasPrefix)
	case OpSuffix:
		return compareStrings(value, target, strings.HasSuffix)
	case OpContains:
		return compareStrings(value, target, strings.Contains)
	case OpIn:
		return compareIn(value, target)
	default:
		return false
	}
}

// compareEqual performs equality with numeric kind tolerance.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return false
}

// compareNumeric performs three-way comparison. ok is false for
// incomparable values so ordering operators never match them.
func compareNumeric(a, b any) (int, bool) {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts Go numeric kinds found in decoded views and YAML.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareStrings(value, target any, fn func(s, sub string) bool) bool {
	vs, ok1 := value.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	return fn(vs, ts)
}

func compareIn(value, set any) bool {
	arr, ok := set.([]any)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}
