package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InsecureTransportEvaluator matches sensitive-looking links that are not served over HTTPS.
type InsecureTransportEvaluator struct{}

// insecureTransportRuleData defines the compiled schema of an INSECURE_TRANSPORT rule.
type insecureTransportRuleData struct {
	Hints []string `json:"hints"`
}

func compileInsecureTransport(raw json.RawMessage) (any, error) {
	data := insecureTransportRuleData{Hints: []string{"bank", "login", "paypal"}}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	data.Hints = lowerAll(data.Hints)
	if len(data.Hints) == 0 {
		return nil, fmt.Errorf("hints must not be empty")
	}
	return data, nil
}

// Eval matches when a hint occurs in the host or path and the scheme is not https.
func (e *InsecureTransportEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(insecureTransportRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected insecureTransportRuleData, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		if l.Scheme() == "https" {
			return false
		}
		path := strings.ToLower(l.URL.EscapedPath())
		return containsAny(l.Host(), data.Hints) || containsAny(path, data.Hints)
	}), nil
}
