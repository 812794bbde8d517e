package ruleengine

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// URLLengthEvaluator matches unusually long URLs or host names.
type URLLengthEvaluator struct{}

// urlLengthRuleData defines the compiled schema of a URL_LENGTH rule.
type urlLengthRuleData struct {
	MaxURLLength  int `json:"max_url_length"`
	MaxHostLength int `json:"max_host_length"`
}

func compileURLLength(raw json.RawMessage) (any, error) {
	data := urlLengthRuleData{MaxURLLength: 100, MaxHostLength: 50}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	if data.MaxURLLength < 1 || data.MaxHostLength < 1 {
		return nil, fmt.Errorf("max_url_length and max_host_length must be positive, got %d and %d", data.MaxURLLength, data.MaxHostLength)
	}
	return data, nil
}

// Eval matches when any link exceeds either limit (measured in characters).
func (e *URLLengthEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	data, ok := ruleData.(urlLengthRuleData)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected urlLengthRuleData, got %T", ruleData)
	}

	return anyLink(c, func(l Link) bool {
		return utf8.RuneCountInString(l.Raw) > data.MaxURLLength ||
			utf8.RuneCountInString(l.Host()) > data.MaxHostLength
	}), nil
}
