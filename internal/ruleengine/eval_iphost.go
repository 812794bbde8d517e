package ruleengine

// IPHostEvaluator matches candidates whose links point at a raw IP address
// instead of a domain name.
type IPHostEvaluator struct{}

// Eval ignores ruleData; the strategy has no parameters.
func (e *IPHostEvaluator) Eval(_ any, c Candidate) (bool, error) {
	return anyLink(c, func(l Link) bool {
		return isIPHost(l.Host())
	}), nil
}
