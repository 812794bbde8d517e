package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// expressionCostLimit bounds the work of a single expression evaluation.
const expressionCostLimit = 1000000

// celEnv declares the variables available to EXPRESSION rules:
//
//	kind    string        "url" or "email"
//	input   string        raw candidate input
//	text    string        visible text (HTML stripped for emails)
//	urls    list(string)  every link found in the candidate
//	hosts   list(string)  lowercase hosts of those links
//	schemes list(string)  lowercase schemes of those links
//	paths   list(string)  path and query of those links
var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("input", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("urls", cel.ListType(cel.StringType)),
		cel.Variable("hosts", cel.ListType(cel.StringType)),
		cel.Variable("schemes", cel.ListType(cel.StringType)),
		cel.Variable("paths", cel.ListType(cel.StringType)),
	)
})

// ExpressionEvaluator evaluates a boolean CEL expression over the candidate.
// Example: `hosts.exists(h, h.endsWith(".zip")) && text.contains("invoice")`
type ExpressionEvaluator struct{}

// expressionRuleData defines the JSON schema of an EXPRESSION rule.
type expressionRuleData struct {
	Expression string `json:"expression"`
}

func compileExpression(raw json.RawMessage) (any, error) {
	var data expressionRuleData
	if err := decodeParams(raw, &data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.Expression) == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}

	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(data.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prg, nil
}

// Eval runs the compiled program. Runtime errors (e.g. cost limit exceeded) are returned
// to the engine, which records them as a non-match.
func (e *ExpressionEvaluator) Eval(ruleData any, c Candidate) (bool, error) {
	prg, ok := ruleData.(cel.Program)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected cel.Program, got %T", ruleData)
	}

	out, _, err := prg.Eval(activation(c))
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	matched, _ := out.Value().(bool)
	return matched, nil
}

func activation(c Candidate) map[string]any {
	links := c.Links()
	urls := make([]string, 0, len(links))
	hosts := make([]string, 0, len(links))
	schemes := make([]string, 0, len(links))
	paths := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.Raw)
		hosts = append(hosts, l.Host())
		schemes = append(schemes, l.Scheme())
		paths = append(paths, l.PathAndQuery())
	}

	return map[string]any{
		"kind":    string(c.Kind),
		"input":   c.Input,
		"text":    c.Text(),
		"urls":    urls,
		"hosts":   hosts,
		"schemes": schemes,
		"paths":   paths,
	}
}
