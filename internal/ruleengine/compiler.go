package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Rule types (strategies) understood by the compiler.
const (
	RuleTypeIPHost            = "IP_HOST"
	RuleTypeURLLength         = "URL_LENGTH"
	RuleTypeSubdomains        = "SUBDOMAINS"
	RuleTypeInsecureTransport = "INSECURE_TRANSPORT"
	RuleTypeSpecialChars      = "SPECIAL_CHARS"
	RuleTypeKeywords          = "KEYWORDS"
	RuleTypePattern           = "PATTERN"
	RuleTypeLookalike         = "LOOKALIKE"
	RuleTypeHomograph         = "HOMOGRAPH"
	RuleTypeLinkMismatch      = "LINK_MISMATCH"
	RuleTypeBlocklist         = "BLOCKLIST"
	RuleTypeExpression        = "EXPRESSION"
)

// Definition is the declarative form of a Rule, as stored in rule packs,
// the database and API payloads.
type Definition struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Kind        Kind    `json:"kind" yaml:"kind"`
	Type        string  `json:"type" yaml:"type"`
	Weight      float64 `json:"weight" yaml:"weight"`

	// Value contains the strategy parameters. Its structure depends on Type.
	// Examples:
	// - KEYWORDS:  {"keywords": ["login", "verify"], "scope": "path"}
	// - LOOKALIKE: {"brands": ["paypal.com"], "max_distance": 2}
	Value json.RawMessage `json:"value,omitempty" yaml:"-"`
}

// strategy pairs an Evaluator with the function that compiles its parameters.
type strategy struct {
	evaluator Evaluator
	compile   func(raw json.RawMessage) (any, error)
}

var strategies = map[string]strategy{
	RuleTypeIPHost:            {&IPHostEvaluator{}, compileNoParams},
	RuleTypeURLLength:         {&URLLengthEvaluator{}, compileURLLength},
	RuleTypeSubdomains:        {&SubdomainEvaluator{}, compileSubdomains},
	RuleTypeInsecureTransport: {&InsecureTransportEvaluator{}, compileInsecureTransport},
	RuleTypeSpecialChars:      {&SpecialCharsEvaluator{}, compileSpecialChars},
	RuleTypeKeywords:          {&KeywordEvaluator{}, compileKeywords},
	RuleTypePattern:           {&PatternEvaluator{}, compilePattern},
	RuleTypeLookalike:         {&LookalikeEvaluator{}, compileLookalike},
	RuleTypeHomograph:         {&HomographEvaluator{}, compileNoParams},
	RuleTypeLinkMismatch:      {&LinkMismatchEvaluator{}, compileNoParams},
	RuleTypeBlocklist:         {&BlocklistEvaluator{}, compileBlocklist},
	RuleTypeExpression:        {&ExpressionEvaluator{}, compileExpression},
}

// RuleTypes returns the supported strategy names, sorted.
func RuleTypes() []string {
	types := make([]string, 0, len(strategies))
	for t := range strategies {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// CompileDefinition turns a single Definition into a Rule.
// It does not check name uniqueness; that is Build's job.
func CompileDefinition(d Definition) (Rule, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Rule{}, fmt.Errorf("name is required")
	}
	if !d.Kind.Valid() {
		return Rule{}, fmt.Errorf("kind must be %q or %q, got %q", KindURL, KindEmail, d.Kind)
	}

	s, ok := strategies[strings.ToUpper(d.Type)]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownRuleType, d.Type)
	}

	data, err := s.compile(d.Value)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid %s rule data: %w", strings.ToUpper(d.Type), err)
	}

	return Rule{
		Name:        d.Name,
		Description: d.Description,
		Weight:      d.Weight,
		Type:        strings.ToUpper(d.Type),
		Predicate:   boundPredicate{evaluator: s.evaluator, data: data},
		params:      canonicalParams(d.Value),
	}, nil
}

// Compile turns Definitions into Rules, preserving order.
// Failures are reported as *InvalidRuleError carrying the definition's position.
func Compile(defs []Definition) ([]Rule, error) {
	rules := make([]Rule, 0, len(defs))
	for i, d := range defs {
		r, err := CompileDefinition(d)
		if err != nil {
			return nil, &InvalidRuleError{Name: d.Name, Index: i, Err: err}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// BuildDefinitions compiles the definitions and builds a RuleSet from them.
func BuildDefinitions(defs []Definition) (*RuleSet, error) {
	rules, err := Compile(defs)
	if err != nil {
		return nil, err
	}
	return Build(rules)
}

// Partition groups definitions by kind, preserving their relative order.
// Definitions with an unknown kind are grouped under that kind and rejected later by Compile.
func Partition(defs []Definition) map[Kind][]Definition {
	out := make(map[Kind][]Definition, len(Kinds))
	for _, d := range defs {
		out[d.Kind] = append(out[d.Kind], d)
	}
	return out
}

// decodeParams strictly decodes raw into dst. Empty input leaves dst untouched.
func decodeParams(raw json.RawMessage, dst any) error {
	if isEmptyParams(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func isEmptyParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// canonicalParams re-encodes JSON with sorted keys and no whitespace, so
// formatting and key order do not change the RuleSet version.
func canonicalParams(raw json.RawMessage) json.RawMessage {
	if isEmptyParams(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// compileNoParams accepts empty parameters only.
func compileNoParams(raw json.RawMessage) (any, error) {
	var data struct{}
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	return nil, nil
}

// lowerAll lowercases and trims every entry, dropping empty ones.
func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// containsAny reports whether s contains any of the (lowercase) needles.
func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
