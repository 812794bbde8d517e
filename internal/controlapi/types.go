// Package controlapi implements the PhishGuard REST API.
// It handles HTTP routing, request decoding, validation, and response formatting.
package controlapi

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rafaeljc/phishguard/internal/cache"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
)

// Machine-readable error codes.
const (
	CodeInvalidJSON       = "ERR_INVALID_JSON"
	CodeInvalidInput      = "ERR_INVALID_INPUT"
	CodeInvalidQueryParam = "ERR_INVALID_QUERY_PARAM"
	CodeInvalidRule       = "ERR_INVALID_RULE"
	CodeNotFound          = "ERR_NOT_FOUND"
	CodeConflict          = "ERR_CONFLICT"
	CodeUnauthorized      = "ERR_UNAUTHORIZED"
	CodeUnavailable       = "ERR_UNAVAILABLE"
	CodeInternal          = "ERR_INTERNAL"
)

// ruleNameRegex keeps rule names URL-safe, since they appear in paths.
var ruleNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// -----------------------------------------------------------------------------
// Analysis
// -----------------------------------------------------------------------------

// AnalyzeRequest is the payload of POST /api/v1/analyze.
type AnalyzeRequest struct {
	// Input is the URL or email text under evaluation.
	Input string `json:"input"`

	// Type is "url" or "email". Defaults to "url" when omitted.
	Type string `json:"type,omitempty"`
}

// Sanitize normalizes the candidate type. Input is evaluated verbatim.
func (r *AnalyzeRequest) Sanitize() {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = string(ruleengine.KindURL)
	}
}

// LegacyAnalyzeRequest is the payload of POST /api/analyze, kept for older front-ends.
type LegacyAnalyzeRequest struct {
	URL string `json:"url"`
}

// AnalyzeResponse is the verdict returned to API clients.
type AnalyzeResponse struct {
	Input          string        `json:"url_or_input"`
	Type           string        `json:"type"`
	IsPhishing     bool          `json:"is_phishing"`
	Score          float64       `json:"score"`
	RulesTriggered []RuleOutcome `json:"rules_triggered"`
}

// RuleOutcome reports one rule's result.
type RuleOutcome struct {
	RuleName    string `json:"rule_name"`
	Matched     bool   `json:"matched"`
	Description string `json:"description"`
}

// NewAnalyzeResponse maps a verdict to the API contract. The score is rounded to 4 decimals.
func NewAnalyzeResponse(v *ruleengine.Verdict) AnalyzeResponse {
	outcomes := make([]RuleOutcome, len(v.RulesTriggered))
	for i, o := range v.RulesTriggered {
		outcomes[i] = RuleOutcome{RuleName: o.RuleName, Matched: o.Matched, Description: o.Description}
	}
	return AnalyzeResponse{
		Input:          v.Input,
		Type:           string(v.Kind),
		IsPhishing:     v.IsPhishing,
		Score:          roundScore(v.Score),
		RulesTriggered: outcomes,
	}
}

// LegacyAnalyzeResponse adds the "url" key older front-ends read the input from.
type LegacyAnalyzeResponse struct {
	URL string `json:"url"`
	AnalyzeResponse
}

// NewLegacyAnalyzeResponse maps a verdict for POST /api/analyze.
func NewLegacyAnalyzeResponse(v *ruleengine.Verdict) LegacyAnalyzeResponse {
	return LegacyAnalyzeResponse{URL: v.Input, AnalyzeResponse: NewAnalyzeResponse(v)}
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

// HistoryResponse wraps the most recent verdicts, newest first.
type HistoryResponse struct {
	Data    []cache.HistoryEntry `json:"data"`
	Backend string               `json:"backend"`
}

// RuleSetResponse describes the active snapshot of one kind.
type RuleSetResponse struct {
	Type          string        `json:"type"`
	Version       string        `json:"version"`
	TotalWeight   float64       `json:"total_weight"`
	Threshold     float64       `json:"threshold"`
	Normalization float64       `json:"normalization"`
	Rules         []RuleSummary `json:"rules"`
}

// RuleSummary is a compiled rule as seen by API clients.
type RuleSummary struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"rule_type,omitempty"`
	Weight      float64 `json:"weight"`
}

// NewRuleSetResponse maps a snapshot and its scoring parameters.
func NewRuleSetResponse(kind ruleengine.Kind, rs *ruleengine.RuleSet, scoring ruleengine.Scoring) RuleSetResponse {
	rules := rs.Rules()
	summaries := make([]RuleSummary, len(rules))
	for i, r := range rules {
		summaries[i] = RuleSummary{Name: r.Name, Description: r.Description, Type: r.Type, Weight: r.Weight}
	}
	return RuleSetResponse{
		Type:          string(kind),
		Version:       rs.Version(),
		TotalWeight:   rs.TotalWeight(),
		Threshold:     scoring.Threshold,
		Normalization: scoring.Normalization,
		Rules:         summaries,
	}
}

// -----------------------------------------------------------------------------
// Rule management
// -----------------------------------------------------------------------------

// Rule represents the rule resource as stored in the database.
type Rule struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Weight      float64         `json:"weight"`
	Value       json.RawMessage `json:"value,omitempty"`
	Enabled     bool            `json:"enabled"`
	Position    int             `json:"position"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func mapRecordToResponse(r *store.RuleRecord) Rule {
	return Rule{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		Weight:      r.Weight,
		Value:       r.Value,
		Enabled:     r.Enabled,
		Position:    r.Position,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// validateRuleName enforces the format and length rules for the natural key.
func validateRuleName(name string) *ErrorResponse {
	if name == "" {
		return invalidInput("name", "Name is required")
	}
	if len(name) < 3 || len(name) > 100 {
		return invalidInput("name", "Name must be between 3 and 100 characters")
	}
	if !ruleNameRegex.MatchString(name) {
		return invalidInput("name", "Name must only contain lowercase letters, numbers, underscores and hyphens")
	}
	return nil
}

func validateKind(kind string) *ErrorResponse {
	if !ruleengine.Kind(kind).Valid() {
		return invalidInput("kind", `Kind must be "url" or "email"`)
	}
	return nil
}

// CreateRuleRequest defines the payload for creating a rule.
type CreateRuleRequest struct {
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Weight      float64         `json:"weight"`
	Value       json.RawMessage `json:"value,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`

	// Position defaults to the end of the kind's rule list.
	Position *int `json:"position,omitempty"`
}

// Sanitize trims whitespace and normalizes case.
func (r *CreateRuleRequest) Sanitize() {
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	r.Description = strings.TrimSpace(r.Description)
	r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
}

// Validate checks the natural key and compiles the definition.
func (r *CreateRuleRequest) Validate() *ErrorResponse {
	if err := validateKind(r.Kind); err != nil {
		return err
	}
	if err := validateRuleName(r.Name); err != nil {
		return err
	}
	if r.Position != nil && *r.Position < 0 {
		return invalidInput("position", "Position must be zero or greater")
	}
	return compileCheck(r.Definition())
}

// Definition returns the declarative form of the request.
func (r *CreateRuleRequest) Definition() ruleengine.Definition {
	return ruleengine.Definition{
		Name:        r.Name,
		Description: r.Description,
		Kind:        ruleengine.Kind(r.Kind),
		Type:        r.Type,
		Weight:      r.Weight,
		Value:       r.Value,
	}
}

// Record converts the request into a store record.
func (r *CreateRuleRequest) Record() *store.RuleRecord {
	rec := store.RecordFromDefinition(r.Definition())
	if r.Enabled != nil {
		rec.Enabled = *r.Enabled
	}
	if r.Position != nil {
		rec.Position = *r.Position
	}
	return rec
}

// UpdateRuleRequest defines the payload for partial updates (PATCH).
// Pointers distinguish a missing field from an explicit zero value.
type UpdateRuleRequest struct {
	Description *string          `json:"description,omitempty"`
	Type        *string          `json:"type,omitempty"`
	Weight      *float64         `json:"weight,omitempty"`
	Value       *json.RawMessage `json:"value,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
	Position    *int             `json:"position,omitempty"`

	// Version enables optimistic locking; 0 means "whatever is current".
	Version int64 `json:"version,omitempty"`
}

// IsEmpty reports whether the request changes nothing.
func (r *UpdateRuleRequest) IsEmpty() bool {
	return r.Description == nil && r.Type == nil && r.Weight == nil &&
		r.Value == nil && r.Enabled == nil && r.Position == nil
}

// Apply merges the request into rec and validates the result by compiling it.
func (r *UpdateRuleRequest) Apply(rec *store.RuleRecord) *ErrorResponse {
	if r.Description != nil {
		rec.Description = strings.TrimSpace(*r.Description)
	}
	if r.Type != nil {
		rec.Type = strings.ToUpper(strings.TrimSpace(*r.Type))
	}
	if r.Weight != nil {
		rec.Weight = *r.Weight
	}
	if r.Value != nil {
		rec.Value = *r.Value
	}
	if r.Enabled != nil {
		rec.Enabled = *r.Enabled
	}
	if r.Position != nil {
		if *r.Position < 0 {
			return invalidInput("position", "Position must be zero or greater")
		}
		rec.Position = *r.Position
	}
	if r.Version != 0 {
		rec.Version = r.Version
	}
	return compileCheck(rec.Definition())
}

// compileCheck runs the definition through the rule compiler, exactly as the syncer will.
func compileCheck(d ruleengine.Definition) *ErrorResponse {
	if _, err := ruleengine.BuildDefinitions([]ruleengine.Definition{d}); err != nil {
		return &ErrorResponse{
			Error:   "Rule definition is invalid: " + err.Error(),
			Code:    CodeInvalidRule,
			Details: []ErrorDetail{{Field: "rule", Issue: err.Error()}},
		}
	}
	return nil
}

// ValidateRuleResponse is the result of a dry-run compile.
type ValidateRuleResponse struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type"`
}

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Error is a human-readable description of the error.
	Error string `json:"error"`

	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func invalidInput(field, msg string) *ErrorResponse {
	return &ErrorResponse{
		Error:   msg,
		Code:    CodeInvalidInput,
		Details: []ErrorDetail{{Field: field, Issue: msg}},
	}
}
