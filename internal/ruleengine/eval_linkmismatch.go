package ruleengine

import (
	"net/url"
	"regexp"
	"strings"
)

// displayedDomainRegex finds a domain shown in link text, with or without a scheme.
var displayedDomainRegex = regexp.MustCompile(`(?i)(?:https?://)?((?:[\p{L}\p{N}-]+\.)+\p{L}{2,})`)

// LinkMismatchEvaluator matches links whose visible text shows one domain
// while the href points at another, e.g. <a href="http://evil.example">www.paypal.com</a>.
type LinkMismatchEvaluator struct{}

// Eval ignores ruleData; the strategy has no parameters.
// URL candidates carry no link text and never match.
func (e *LinkMismatchEvaluator) Eval(_ any, c Candidate) (bool, error) {
	return anyLink(c, func(l Link) bool {
		shown := displayedDomain(l.Text)
		if shown == "" {
			return false
		}
		return registeredDomain(shown) != registeredDomain(l.Host())
	}), nil
}

// displayedDomain returns the lowercase host shown in text, or "" if none.
func displayedDomain(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if u, err := url.Parse(text); err == nil && u.Hostname() != "" && (u.Scheme == "http" || u.Scheme == "https") {
		return strings.ToLower(u.Hostname())
	}
	m := displayedDomainRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}
