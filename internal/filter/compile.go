// internal/filter/compile.go
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Condition filter compilation.
 *
 * Compiles an Expression (OR of AND groups, as written in descriptor files)
 * into a ConditionFilter with parsed paths, coerced comparison values and
 * cost-ordered conditions.
 *
 * Compilation workflow:
 *   1. Parse field path, operator, field type and policies
 *   2. Enforce resource limits (path depth, wildcards, IN values)
 *   3. Coerce comparison values to the condition's field type
 *   4. Order conditions by ascending cost (stable sort for determinism)
 *
 * Errors surface at descriptor load time instead of on the first document
 * that happens to reach the condition.
 */

// Condition is a single comparison as written in a descriptor file.
type Condition struct {
	Field          string `yaml:"field" json:"field"`
	Op             string `yaml:"op" json:"op"`
	Type           string `yaml:"type" json:"type,omitempty"`
	Value          any    `yaml:"value" json:"value,omitempty"`
	Values         []any  `yaml:"values" json:"values,omitempty"`
	OnMissing      string `yaml:"on_missing" json:"on_missing,omitempty"`
	OnCoercionFail string `yaml:"on_coercion_fail" json:"on_coercion_fail,omitempty"`
}

// Group is an AND group: every condition must match.
type Group struct {
	All []Condition `yaml:"all" json:"all"`
}

// Expression is an OR of AND groups.
type Expression struct {
	Any []Group `yaml:"any" json:"any"`
}

// OnMissingField is the policy for null or absent fields.
type OnMissingField int

const (
	OnMissingSkip OnMissingField = iota
	OnMissingMatch
)

// OnCoercionPolicy is the policy when type coercion fails.
type OnCoercionPolicy int

const (
	OnCoercionSkip OnCoercionPolicy = iota
	OnCoercionMatch
	OnCoercionError
)

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	Path       []PathSegment
	Operator   Operator
	FieldType  FieldType
	Value      any   // coerced comparison value (nil for exists/is_null)
	Values     []any // coerced values for IN
	OnMissing  OnMissingField
	OnCoercion OnCoercionPolicy
	Cost       int
}

// CompiledGroup is a pre-processed AND group.
type CompiledGroup struct {
	Conditions []CompiledCondition // ordered by ascending cost
}

// ConditionFilter is a compiled Expression.
type ConditionFilter struct {
	Groups []CompiledGroup
	Cost   int
}

// Compile validates and pre-processes an expression.
func Compile(expr Expression) (*ConditionFilter, error) {
	if len(expr.Any) == 0 {
		return nil, types.ErrEmptyExpression
	}

	compiled := &ConditionFilter{Groups: make([]CompiledGroup, 0, len(expr.Any))}
	for gi, group := range expr.Any {
		if len(group.All) == 0 {
			return nil, fmt.Errorf("group %d: %w", gi, types.ErrEmptyExpression)
		}
		cg := CompiledGroup{Conditions: make([]CompiledCondition, 0, len(group.All))}
		for ci, cond := range group.All {
			cc, err := compileCondition(cond)
			if err != nil {
				return nil, fmt.Errorf("group %d condition %d (%s): %w", gi, ci, cond.Field, err)
			}
			cg.Conditions = append(cg.Conditions, cc)
			compiled.Cost += cc.Cost
		}

		// Stable sort: equal-cost conditions keep declaration order
		sort.SliceStable(cg.Conditions, func(i, j int) bool {
			return cg.Conditions[i].Cost < cg.Conditions[j].Cost
		})
		compiled.Groups = append(compiled.Groups, cg)
	}

	return compiled, nil
}

func compileCondition(cond Condition) (CompiledCondition, error) {
	path, err := ParsePath(cond.Field)
	if err != nil {
		return CompiledCondition{}, err
	}
	op, err := ParseOperator(cond.Op)
	if err != nil {
		return CompiledCondition{}, err
	}
	ft, err := ParseFieldType(cond.Type)
	if err != nil {
		return CompiledCondition{}, err
	}
	onMissing, err := parseOnMissing(cond.OnMissing)
	if err != nil {
		return CompiledCondition{}, err
	}
	onCoercion, err := parseOnCoercion(cond.OnCoercionFail)
	if err != nil {
		return CompiledCondition{}, err
	}

	cc := CompiledCondition{
		Path:       path,
		Operator:   op,
		FieldType:  ft,
		OnMissing:  onMissing,
		OnCoercion: onCoercion,
		Cost:       ConditionCost(path, op, ft),
	}

	switch op {
	case OpExists, OpIsNull:
		return cc, nil
	case OpIn:
		if len(cond.Values) > types.MaxInOperatorValues {
			return CompiledCondition{}, types.ErrTooManyInValues
		}
		cc.Values = make([]any, 0, len(cond.Values))
		for _, v := range cond.Values {
			coerced, err := Coerce(v, ft)
			if err != nil || coerced.IsNull {
				return CompiledCondition{}, fmt.Errorf("IN value %v: %w", v, types.ErrCoercionFailed)
			}
			cc.Values = append(cc.Values, coerced.Value)
		}
		return cc, nil
	default:
		coerced, err := Coerce(cond.Value, ft)
		if err != nil || coerced.IsNull {
			return CompiledCondition{}, fmt.Errorf("value %v: %w", cond.Value, types.ErrCoercionFailed)
		}
		cc.Value = coerced.Value
		return cc, nil
	}
}

func parseOnMissing(name string) (OnMissingField, error) {
	switch strings.ToLower(name) {
	case "", "skip":
		return OnMissingSkip, nil
	case "match":
		return OnMissingMatch, nil
	default:
		return OnMissingSkip, fmt.Errorf("unknown on_missing policy %q", name)
	}
}

func parseOnCoercion(name string) (OnCoercionPolicy, error) {
	switch strings.ToLower(name) {
	case "", "skip":
		return OnCoercionSkip, nil
	case "match":
		return OnCoercionMatch, nil
	case "error":
		return OnCoercionError, nil
	default:
		return OnCoercionSkip, fmt.Errorf("unknown on_coercion_fail policy %q", name)
	}
}
