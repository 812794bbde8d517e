package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

var (
	dangerColor = lipgloss.Color("#FF6B6B")
	safeColor   = lipgloss.Color("#4ECDC4")
	subtleColor = lipgloss.Color("#666666")

	phishingStyle = lipgloss.NewStyle().Bold(true).Foreground(dangerColor)
	safeStyle     = lipgloss.NewStyle().Bold(true).Foreground(safeColor)
	matchedStyle  = lipgloss.NewStyle().Foreground(dangerColor)
	subtleStyle   = lipgloss.NewStyle().Foreground(subtleColor)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	errorStyle    = lipgloss.NewStyle().Foreground(dangerColor)
)

// verdictView is the JSON shape of a verdict; it matches the HTTP API response
// plus the rule set version.
type verdictView struct {
	Input          string                   `json:"url_or_input"`
	Type           ruleengine.Kind          `json:"type"`
	IsPhishing     bool                     `json:"is_phishing"`
	Score          float64                  `json:"score"`
	RulesTriggered []ruleengine.RuleOutcome `json:"rules_triggered"`
	RuleSetVersion string                   `json:"rule_set_version,omitempty"`
}

func renderVerdict(w io.Writer, format string, v *ruleengine.Verdict) error {
	if format == outputJSON {
		return writeJSON(w, verdictView{
			Input:          v.Input,
			Type:           v.Kind,
			IsPhishing:     v.IsPhishing,
			Score:          v.Score,
			RulesTriggered: v.RulesTriggered,
			RuleSetVersion: v.RuleSetVersion,
		})
	}

	label := safeStyle.Render("LEGITIMATE")
	if v.IsPhishing {
		label = phishingStyle.Render("PHISHING")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  score %.4f  (%s)\n", label, v.Score, v.Kind)
	fmt.Fprintf(&b, "%s\n\n", subtleStyle.Render(truncate(v.Input, 100)))

	for _, o := range v.RulesTriggered {
		marker, name := "  ", subtleStyle.Render(o.RuleName)
		if o.Matched {
			marker, name = matchedStyle.Render("✗ "), matchedStyle.Render(o.RuleName)
		}
		fmt.Fprintf(&b, "%s%s  %s\n", marker, name, subtleStyle.Render(o.Description))
	}
	fmt.Fprintf(&b, "\n%d of %d rules matched\n", len(v.Matched()), len(v.RulesTriggered))

	_, err := io.WriteString(w, b.String())
	return err
}

// ruleView is one row of the rules listing.
type ruleView struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"rule_type,omitempty"`
	Weight      float64 `json:"weight"`
}

// ruleSetView describes one rule set.
type ruleSetView struct {
	Type        ruleengine.Kind `json:"type"`
	Version     string          `json:"version"`
	TotalWeight float64         `json:"total_weight"`
	Rules       []ruleView      `json:"rules"`
}

func renderRuleSets(w io.Writer, format string, sets []ruleSetView) error {
	if format == outputJSON {
		return writeJSON(w, sets)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, set := range sets {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s rules  %s\n",
			strings.ToUpper(string(set.Type)),
			subtleStyle.Render(fmt.Sprintf("version %s, total weight %.2f", set.Version, set.TotalWeight)))
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			headerStyle.Render("NAME"),
			headerStyle.Render("TYPE"),
			headerStyle.Render("WEIGHT"),
			headerStyle.Render("DESCRIPTION"))
		for _, r := range set.Rules {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", r.Name, r.Type, r.Weight, r.Description)
		}
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
