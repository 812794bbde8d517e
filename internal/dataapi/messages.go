package dataapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

// verdictMessage is the JSON shape carried inside the Analyze response Struct.
type verdictMessage struct {
	Input          string           `json:"url_or_input"`
	Type           string           `json:"type"`
	IsPhishing     bool             `json:"is_phishing"`
	Score          float64          `json:"score"`
	RulesTriggered []outcomeMessage `json:"rules_triggered"`
	RuleSetVersion string           `json:"rule_set_version"`
}

type outcomeMessage struct {
	RuleName    string `json:"rule_name"`
	Matched     bool   `json:"matched"`
	Description string `json:"description"`
}

// RuleSetInfo is the GetRuleSet response.
type RuleSetInfo struct {
	Type        string     `json:"type"`
	Version     string     `json:"version"`
	TotalWeight float64    `json:"total_weight"`
	Threshold   float64    `json:"threshold"`
	Rules       []RuleInfo `json:"rules"`
}

// RuleInfo describes one compiled rule.
type RuleInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"rule_type"`
	Weight      float64 `json:"weight"`
}

func newVerdictMessage(v *ruleengine.Verdict) verdictMessage {
	outcomes := make([]outcomeMessage, len(v.RulesTriggered))
	for i, o := range v.RulesTriggered {
		outcomes[i] = outcomeMessage{RuleName: o.RuleName, Matched: o.Matched, Description: o.Description}
	}
	return verdictMessage{
		Input:          v.Input,
		Type:           string(v.Kind),
		IsPhishing:     v.IsPhishing,
		Score:          v.Score,
		RulesTriggered: outcomes,
		RuleSetVersion: v.RuleSetVersion,
	}
}

func (m verdictMessage) verdict() *ruleengine.Verdict {
	outcomes := make([]ruleengine.RuleOutcome, len(m.RulesTriggered))
	for i, o := range m.RulesTriggered {
		outcomes[i] = ruleengine.RuleOutcome{RuleName: o.RuleName, Matched: o.Matched, Description: o.Description}
	}
	return &ruleengine.Verdict{
		Input:          m.Input,
		Kind:           ruleengine.Kind(m.Type),
		IsPhishing:     m.IsPhishing,
		Score:          m.Score,
		RulesTriggered: outcomes,
		RuleSetVersion: m.RuleSetVersion,
	}
}

func newRuleSetInfo(kind ruleengine.Kind, rs *ruleengine.RuleSet, threshold float64) RuleSetInfo {
	rules := rs.Rules()
	infos := make([]RuleInfo, len(rules))
	for i, r := range rules {
		infos[i] = RuleInfo{Name: r.Name, Description: r.Description, Type: r.Type, Weight: r.Weight}
	}
	return RuleSetInfo{
		Type:        string(kind),
		Version:     rs.Version(),
		TotalWeight: rs.TotalWeight(),
		Threshold:   threshold,
		Rules:       infos,
	}
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode struct: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// stringField returns a string field of s, or "" when missing or not a string.
func stringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}
