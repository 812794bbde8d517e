package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// rulePack is the on-disk layout of a rule pack file.
//
//	rules:
//	  - name: suspicious_keywords
//	    kind: url
//	    type: KEYWORDS
//	    weight: 0.1
//	    value:
//	      keywords: [login, verify]
//	      scope: path
type rulePack struct {
	Rules []Definition `json:"rules" yaml:"rules"`
}

// LoadDefinitions reads a YAML or JSON rule pack. The format is chosen by file
// extension; anything other than .json is parsed as YAML.
func LoadDefinitions(path string) ([]Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules pack: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSONDefinitions(b)
	}
	return ParseYAMLDefinitions(b)
}

// ParseJSONDefinitions accepts either {"rules": [...]} or a bare array of definitions.
func ParseJSONDefinitions(b []byte) ([]Definition, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var defs []Definition
		if err := json.Unmarshal(trimmed, &defs); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return defs, nil
	}

	var pack rulePack
	if err := json.Unmarshal(trimmed, &pack); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return pack.Rules, nil
}

// ParseYAMLDefinitions parses a YAML rule pack with a top-level "rules" key.
func ParseYAMLDefinitions(b []byte) ([]Definition, error) {
	var pack rulePack
	if err := yaml.Unmarshal(b, &pack); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return pack.Rules, nil
}

// UnmarshalYAML decodes a definition whose "value" may be any YAML mapping,
// re-encoding it as JSON so strategies only ever see JSON parameters.
func (d *Definition) UnmarshalYAML(node *yaml.Node) error {
	type plain Definition // drops methods, avoids recursion
	var aux struct {
		plain `yaml:",inline"`
		Value yaml.Node `yaml:"value"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}

	*d = Definition(aux.plain)
	if aux.Value.Kind == 0 {
		return nil
	}

	var value any
	if err := aux.Value.Decode(&value); err != nil {
		return fmt.Errorf("rule %q: decode value: %w", d.Name, err)
	}
	if value == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rule %q: value is not JSON-compatible: %w", d.Name, err)
	}
	d.Value = raw
	return nil
}

// MarshalYAML renders Value as a YAML mapping instead of raw JSON bytes.
func (d Definition) MarshalYAML() (any, error) {
	type plain Definition
	out := struct {
		plain `yaml:",inline"`
		Value any `yaml:"value,omitempty"`
	}{plain: plain(d)}

	if !isEmptyParams(d.Value) {
		if err := json.Unmarshal(d.Value, &out.Value); err != nil {
			return nil, fmt.Errorf("rule %q: invalid value: %w", d.Name, err)
		}
	}
	return out, nil
}
