package rules

import "github.com/solatis/metasync/internal/types"

// Match returns the enabled rules whose filters all pass for subject.
//
// Filters are evaluated in declaration order and evaluation stops at the
// first false. A rule without filters matches unconditionally. Evaluator
// errors, including unknown filter ids, abort matching and are returned as
// is. The result keeps the input order.
func Match(rules []types.RuleDescriptor, subject types.Subject, evaluator FilterEvaluator) ([]types.RuleDescriptor, error) {
	var matched []types.RuleDescriptor
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		ok, err := ruleAccepts(rule, subject, evaluator)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func ruleAccepts(rule types.RuleDescriptor, subject types.Subject, evaluator FilterEvaluator) (bool, error) {
	for _, id := range rule.FilterIDs {
		ok, err := evaluator.EvaluateFilter(id, subject)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
