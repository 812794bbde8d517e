package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BlocklistEvaluator matches links to known-bad hosts or any of their subdomains.
type BlocklistEvaluator struct{}

// blocklistRuleData defines the JSON schema of a BLOCKLIST rule.
type blocklistRuleData struct {
	Hosts []string `json:"hosts"`
}

func compileBlocklist(raw json.RawMessage) (any, error) {
	var data blocklistRuleData
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}

	// Set for O(1) lookups per host suffix.
	hosts := make(map[string]struct{}, len(data.Hosts))
	for _, h := range lowerAll(data.Hosts) {
		hosts[toASCII(strings.TrimSuffix(h, "."))] = struct{}{}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("hosts must not be empty")
	}
	return hosts, nil
}

// Eval walks each host from the full name up to its TLD: a.b.evil.com, b.evil.com, evil.com, com.
func (e *BlocklistEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	hosts, ok := ruleData.(map[string]struct{})
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected map[string]struct{}, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		host := toASCII(l.Host())
		for host != "" {
			if _, found := hosts[host]; found {
				return true
			}
			i := strings.IndexByte(host, '.')
			if i < 0 {
				return false
			}
			host = host[i+1:]
		}
		return false
	}), nil
}
