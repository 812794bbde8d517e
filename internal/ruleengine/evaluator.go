package ruleengine

// Evaluator is the interface that all rule strategies must implement.
// It encapsulates the specific logic to determine if a candidate matches a rule.
type Evaluator interface {
	// Eval checks if the candidate satisfies the rule's conditions.
	//
	// Parameters:
	// - ruleData: The pre-processed rule configuration produced by the compiler.
	//   We use 'any' to decouple the evaluation logic from the storage format (JSON/YAML).
	// - c: The candidate under evaluation.
	//
	// Returns:
	// - bool: True if the rule matches.
	// - error: Non-nil if the ruleData type is invalid or the check cannot run.
	Eval(ruleData any, c Candidate) (bool, error)
}

// boundPredicate binds a strategy to its compiled parameters so it satisfies Predicate.
type boundPredicate struct {
	evaluator Evaluator
	data      any
}

func (p boundPredicate) Match(c Candidate) (bool, error) {
	return p.evaluator.Eval(p.data, c)
}

// anyLink reports whether match holds for at least one link in the candidate.
func anyLink(c Candidate, match func(l Link) bool) bool {
	for _, l := range c.Links() {
		if match(l) {
			return true
		}
	}
	return false
}
