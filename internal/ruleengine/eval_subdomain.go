package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SubdomainEvaluator matches hosts with excessive subdomains, or with
// brand-like words in the subdomain part while the registered domain
// belongs to someone else (e.g. paypal.secure-login.example.com).
type SubdomainEvaluator struct{}

// subdomainRuleData defines the compiled schema of a SUBDOMAINS rule.
type subdomainRuleData struct {
	MaxSubdomains      int      `json:"max_subdomains"`
	ImpersonationHints []string `json:"impersonation_hints"`
	BrandHints         []string `json:"brand_hints"`
}

func compileSubdomains(raw json.RawMessage) (any, error) {
	data := subdomainRuleData{
		MaxSubdomains:      3,
		ImpersonationHints: []string{"paypal", "bank", "secure", "login"},
		BrandHints:         []string{"paypal", "bank"},
	}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	if data.MaxSubdomains < 0 {
		return nil, fmt.Errorf("max_subdomains must be >= 0, got %d", data.MaxSubdomains)
	}
	data.ImpersonationHints = lowerAll(data.ImpersonationHints)
	data.BrandHints = lowerAll(data.BrandHints)
	return data, nil
}

// Eval checks every link host. IP hosts are left to IP_HOST.
func (e *SubdomainEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(subdomainRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected subdomainRuleData, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		host := l.Host()
		if isIPHost(host) || !strings.Contains(host, ".") {
			return false
		}

		sub := subdomainPart(host)
		if sub == "" {
			return false
		}

		if len(strings.Split(sub, ".")) > data.MaxSubdomains {
			return true
		}

		registered := registeredDomain(host)
		return containsAny(sub, data.ImpersonationHints) && !containsAny(registered, data.BrandHints)
	}), nil
}
