package ruleengine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Scopes select which part of a candidate a text strategy inspects.
const (
	ScopeURL  = "url"  // every full link
	ScopeHost = "host" // link hosts only
	ScopePath = "path" // link path and query
	ScopeText = "text" // visible text (the URL itself for URL candidates)
)

func validScope(scope string) bool {
	switch scope {
	case ScopeURL, ScopeHost, ScopePath, ScopeText:
		return true
	}
	return false
}

// scopeValues returns the lowercase strings a text strategy should search.
func scopeValues(c Candidate, scope string) []string {
	if scope == ScopeText {
		return []string{strings.ToLower(c.Text())}
	}

	links := c.Links()
	out := make([]string, 0, len(links))
	for _, l := range links {
		switch scope {
		case ScopeHost:
			out = append(out, l.Host())
		case ScopePath:
			out = append(out, strings.ToLower(l.PathAndQuery()))
		default:
			out = append(out, strings.ToLower(l.Raw))
		}
	}
	return out
}

// KeywordEvaluator matches when any keyword occurs in the selected scope.
type KeywordEvaluator struct{}

// keywordRuleData defines the compiled schema of a KEYWORDS rule.
type keywordRuleData struct {
	Keywords []string `json:"keywords"`
	Scope    string   `json:"scope"`
}

func compileKeywords(raw json.RawMessage) (any, error) {
	data := keywordRuleData{Scope: ScopeURL}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	data.Keywords = lowerAll(data.Keywords)
	if len(data.Keywords) == 0 {
		return nil, fmt.Errorf("keywords must not be empty")
	}
	data.Scope = strings.ToLower(data.Scope)
	if !validScope(data.Scope) {
		return nil, fmt.Errorf("unknown scope %q", data.Scope)
	}
	return data, nil
}

// Eval performs a case-insensitive substring search.
func (e *KeywordEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(keywordRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected keywordRuleData, got %T", ruleData)
	}

	for _, v := range scopeValues(c, data.Scope) {
		if containsAny(v, data.Keywords) {
			return true, nil
		}
	}
	return false, nil
}

// PatternEvaluator matches a regular expression against the selected scope.
type PatternEvaluator struct{}

// patternRuleData defines the JSON schema of a PATTERN rule.
type patternRuleData struct {
	Pattern string `json:"pattern"`
	Scope   string `json:"scope"`
}

func compilePattern(raw json.RawMessage) (any, error) {
	data := patternRuleData{Scope: ScopeURL}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.Pattern) == "" {
		return nil, fmt.Errorf("pattern must not be empty")
	}
	data.Scope = strings.ToLower(data.Scope)
	if !validScope(data.Scope) {
		return nil, fmt.Errorf("unknown scope %q", data.Scope)
	}

	// Scope values are lowercased, so patterns are always case-insensitive.
	re, err := regexp.Compile("(?i)" + data.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return compiledPattern{re: re, scope: data.Scope}, nil
}

type compiledPattern struct {
	re    *regexp.Regexp
	scope string
}

// Eval reports whether the pattern matches any value in scope.
func (e *PatternEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(compiledPattern)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected compiledPattern, got %T", ruleData)
	}

	for _, v := range scopeValues(c, data.scope) {
		if data.re.MatchString(v) {
			return true, nil
		}
	}
	return false, nil
}
