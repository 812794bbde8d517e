package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SpecialCharsEvaluator matches links whose path and query are dominated by
// characters typical of obfuscated or parameter-stuffed phishing URLs.
type SpecialCharsEvaluator struct{}

// specialCharsRuleData defines the compiled schema of a SPECIAL_CHARS rule.
type specialCharsRuleData struct {
	Characters string  `json:"characters"`
	MaxRatio   float64 `json:"max_ratio"`
}

func compileSpecialChars(raw json.RawMessage) (any, error) {
	data := specialCharsRuleData{Characters: "@-_?=&%", MaxRatio: 0.3}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	if data.Characters == "" {
		return nil, fmt.Errorf("characters must not be empty")
	}
	if data.MaxRatio < 0 || data.MaxRatio > 1 {
		return nil, fmt.Errorf("max_ratio must be between 0 and 1, got %v", data.MaxRatio)
	}
	return data, nil
}

// Eval matches when the share of special characters in path+query exceeds MaxRatio.
func (e *SpecialCharsEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(specialCharsRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected specialCharsRuleData, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		target := l.PathAndQuery()
		if target == "" {
			return false
		}

		specials := 0
		for _, r := range target {
			if strings.ContainsRune(data.Characters, r) {
				specials++
			}
		}
		return float64(specials)/float64(utf8.RuneCountInString(target)) > data.MaxRatio
	}), nil
}
