// internal/filter/cost.go
package filter

/*
 * Cost model for condition ordering.
 *
 * cost = lookup_cost + (operator_cost * type_multiplier * 8^wildcards)
 *
 * Conditions inside an AND group are evaluated cheapest first so the
 * short-circuit on the first non-match skips the expensive ones.
 */

const (
	// Operator base costs
	CostExists = 1
	CostEq     = 5
	CostLt     = 7
	CostIn     = 8
	CostPrefix = 10

	// Field lookup cost per key segment
	CostLookupPerSegment = 128

	// Field type multipliers
	MultiplierBool   = 1
	MultiplierFloat  = 4
	MultiplierString = 48
	MultiplierAny    = 128
)

// ConditionCost computes the evaluation cost of a single condition.
func ConditionCost(path []PathSegment, op Operator, fieldType FieldType) int {
	lookupCost := 0
	wildcardCount := 0
	for _, seg := range path {
		if seg.Key != "" {
			lookupCost += CostLookupPerSegment
		}
		if seg.Wildcard {
			wildcardCount++
		}
	}

	execMult := 1
	for i := 0; i < wildcardCount; i++ {
		execMult *= 8
	}

	return lookupCost + operatorCost(op)*typeMultiplier(fieldType)*execMult
}

func operatorCost(op Operator) int {
	switch op {
	case OpExists, OpIsNull:
		return CostExists
	case OpEq, OpNeq:
		return CostEq
	case OpLt, OpLte, OpGt, OpGte:
		return CostLt
	case OpIn:
		return CostIn
	case OpPrefix, OpSuffix, OpContains:
		return CostPrefix
	default:
		return CostEq
	}
}

func typeMultiplier(ft FieldType) int {
	switch ft {
	case FieldTypeNumeric:
		return MultiplierFloat
	case FieldTypeBoolean:
		return MultiplierBool
	case FieldTypeText:
		return MultiplierString
	default:
		return MultiplierAny
	}
}
