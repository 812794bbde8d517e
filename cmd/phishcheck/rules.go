package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

func (c *cli) rulesCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the active rules",
		Long:  `List the rules of the built-in library, or of the pack given with --rules.`,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}

			kinds := ruleengine.Kinds
			if kind != "" {
				k := ruleengine.Kind(kind)
				if !k.Valid() {
					return fmt.Errorf("unknown kind %q (use: url, email)", kind)
				}
				kinds = []ruleengine.Kind{k}
			}

			sets, err := loadRuleSets(opts.RulesFile)
			if err != nil {
				return err
			}

			views := make([]ruleSetView, 0, len(kinds))
			for _, k := range kinds {
				rs, ok := sets[k]
				if !ok {
					rs = ruleengine.Empty()
				}
				views = append(views, newRuleSetView(k, rs))
			}
			return renderRuleSets(c.out, opts.Output, views)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list rules of this kind (url, email)")
	return cmd
}

func newRuleSetView(kind ruleengine.Kind, rs *ruleengine.RuleSet) ruleSetView {
	rules := rs.Rules()
	view := ruleSetView{
		Type:        kind,
		Version:     rs.Version(),
		TotalWeight: rs.TotalWeight(),
		Rules:       make([]ruleView, 0, len(rules)),
	}
	for _, r := range rules {
		view.Rules = append(view.Rules, ruleView{
			Name:        r.Name,
			Description: r.Description,
			Type:        r.Type,
			Weight:      r.Weight,
		})
	}
	return view
}
