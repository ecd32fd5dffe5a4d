// internal/filter/evaluate.go
package filter

import (
	"errors"
	"fmt"

	"github.com/solatis/metasync/internal/types"
)

/*
 * Condition filter evaluation.
 *
 * DNF semantics: the filter matches when any group matches; a group matches
 * when all of its conditions match.
 *
 * Evaluation flow:
 *   1. OR groups (short-circuit on first match)
 *   2. AND conditions (short-circuit on first non-match, cost-ordered)
 *   3. Per condition: resolve path -> coerce -> compare
 *   4. Missing/null fields defer to on_missing, coercion failures to
 *      on_coercion_fail
 */

// Match evaluates the filter against a document view.
func (f *ConditionFilter) Match(view map[string]any) (bool, error) {
	for _, group := range f.Groups {
		matched, err := evaluateGroup(group, view)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func evaluateGroup(group CompiledGroup, view map[string]any) (bool, error) {
	for _, cond := range group.Conditions {
		matched, err := evaluateCondition(cond, view)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(cond CompiledCondition, view map[string]any) (bool, error) {
	resolved, err := Resolve(cond.Path, view)
	if err != nil {
		if errors.Is(err, types.ErrFieldNotFound) {
			return missingResult(cond), nil
		}
		return false, err
	}

	switch cond.Operator {
	case OpExists:
		return resolved.Value != nil, nil
	case OpIsNull:
		return resolved.Value == nil, nil
	}

	coerced, err := Coerce(resolved.Value, cond.FieldType)
	if err != nil {
		switch cond.OnCoercion {
		case OnCoercionMatch:
			return true, nil
		case OnCoercionError:
			return false, fmt.Errorf("%s: %w", FormatPath(resolved.ResolvedPath), err)
		default:
			return false, nil
		}
	}
	if coerced.IsNull {
		return cond.OnMissing == OnMissingMatch, nil
	}

	target := cond.Value
	if cond.Operator == OpIn {
		target = cond.Values
	}
	return Compare(cond.Operator, coerced.Value, target), nil
}

// missingResult applies on_missing to an absent field. exists/is_null
// answer the presence question themselves.
func missingResult(cond CompiledCondition) bool {
	switch cond.Operator {
	case OpExists:
		return false
	case OpIsNull:
		return true
	}
	return cond.OnMissing == OnMissingMatch
}
