package ruleengine

import "encoding/json"

// DefaultDefinitions returns the built-in rule sets for both kinds, URL rules first.
func DefaultDefinitions() []Definition {
	return append(DefaultURLDefinitions(), DefaultEmailDefinitions()...)
}

// DefaultURLDefinitions are the classic URL heuristics plus lookalike and homograph detection.
func DefaultURLDefinitions() []Definition {
	return []Definition{
		{
			Name:        "contains_ip_address",
			Description: "URL contains an IP address instead of a domain name.",
			Kind:        KindURL,
			Type:        RuleTypeIPHost,
			Weight:      0.25,
		},
		{
			Name:        "url_length",
			Description: "URL or domain length is unusually long.",
			Kind:        KindURL,
			Type:        RuleTypeURLLength,
			Weight:      0.15,
			Value:       params(`{"max_url_length": 100, "max_host_length": 50}`),
		},
		{
			Name:        "suspicious_subdomains",
			Description: "URL has excessive or impersonating subdomains.",
			Kind:        KindURL,
			Type:        RuleTypeSubdomains,
			Weight:      0.2,
			Value:       params(`{"max_subdomains": 3, "impersonation_hints": ["paypal", "bank", "secure", "login"], "brand_hints": ["paypal", "bank"]}`),
		},
		{
			Name:        "use_of_https",
			Description: "Sensitive-looking site does not use HTTPS.",
			Kind:        KindURL,
			Type:        RuleTypeInsecureTransport,
			Weight:      0.2,
			Value:       params(`{"hints": ["bank", "login", "paypal"]}`),
		},
		{
			Name:        "special_characters",
			Description: "High ratio of special characters in path or query.",
			Kind:        KindURL,
			Type:        RuleTypeSpecialChars,
			Weight:      0.1,
			Value:       params(`{"characters": "@-_?=&%", "max_ratio": 0.3}`),
		},
		{
			Name:        "suspicious_keywords",
			Description: "URL contains common phishing keywords (e.g., 'login', 'verify').",
			Kind:        KindURL,
			Type:        RuleTypeKeywords,
			Weight:      0.1,
			Value:       params(`{"keywords": ["login", "verify", "secure", "update", "account", "confirm"], "scope": "path"}`),
		},
		{
			Name:        "lookalike_domain",
			Description: "Domain imitates a well-known brand.",
			Kind:        KindURL,
			Type:        RuleTypeLookalike,
			Weight:      0.2,
		},
		{
			Name:        "homograph_host",
			Description: "Host uses internationalized characters that can disguise another domain.",
			Kind:        KindURL,
			Type:        RuleTypeHomograph,
			Weight:      0.15,
		},
	}
}

// DefaultEmailDefinitions inspect the message text and every link in the body.
func DefaultEmailDefinitions() []Definition {
	return []Definition{
		{
			Name:        "urgent_wording",
			Description: "Message pressures the reader to act urgently.",
			Kind:        KindEmail,
			Type:        RuleTypeKeywords,
			Weight:      0.3,
			Value: params(`{"keywords": ["urgent", "immediately", "act now", "within 24 hours", "final notice",
				"account suspended", "account will be closed", "unusual activity"], "scope": "text"}`),
		},
		{
			Name:        "credential_request",
			Description: "Message asks the reader to log in or hand over credentials.",
			Kind:        KindEmail,
			Type:        RuleTypePattern,
			Weight:      0.2,
			Value:       params(`{"pattern": "\\b(log ?in|sign ?in|password|passcode|verify your (account|identity)|social security|card number)\\b", "scope": "text"}`),
		},
		{
			Name:        "mismatched_link_text",
			Description: "A link's visible text shows a different domain than it points to.",
			Kind:        KindEmail,
			Type:        RuleTypeLinkMismatch,
			Weight:      0.3,
		},
		{
			Name:        "link_to_ip_address",
			Description: "Message links to an IP address instead of a domain name.",
			Kind:        KindEmail,
			Type:        RuleTypeIPHost,
			Weight:      0.2,
		},
		{
			Name:        "lookalike_link_domain",
			Description: "Message links to a domain imitating a well-known brand.",
			Kind:        KindEmail,
			Type:        RuleTypeLookalike,
			Weight:      0.2,
		},
		{
			Name:        "insecure_sensitive_link",
			Description: "Message links to a sensitive-looking page without HTTPS.",
			Kind:        KindEmail,
			Type:        RuleTypeInsecureTransport,
			Weight:      0.1,
			Value:       params(`{"hints": ["bank", "login", "paypal", "account", "verify"]}`),
		},
	}
}

// DefaultRuleSets compiles the built-in definitions per kind.
// It panics if the built-in library is invalid, which only a code change can cause.
func DefaultRuleSets() map[Kind]*RuleSet {
	out := make(map[Kind]*RuleSet, len(Kinds))
	for kind, defs := range Partition(DefaultDefinitions()) {
		rs, err := BuildDefinitions(defs)
		if err != nil {
			panic(err)
		}
		out[kind] = rs
	}
	return out
}

func params(s string) json.RawMessage {
	return json.RawMessage(s)
}
