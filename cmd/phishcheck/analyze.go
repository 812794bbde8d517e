package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/phishguard/internal/analyzer"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// options are the evaluation settings shared by every command.
type options struct {
	RulesFile string
	Scoring   ruleengine.Scoring
	Output    string
}

func (c *cli) options() (options, error) {
	opts := options{
		RulesFile: c.v.GetString("rules"),
		Scoring: ruleengine.Scoring{
			Threshold:     c.v.GetFloat64("threshold"),
			Normalization: c.v.GetFloat64("normalization"),
		},
		Output: c.v.GetString("output"),
	}

	if err := opts.Scoring.Validate(); err != nil {
		return options{}, err
	}
	if opts.Output != outputText && opts.Output != outputJSON {
		return options{}, fmt.Errorf("unknown output format %q (use: text, json)", opts.Output)
	}
	return opts, nil
}

func (c *cli) urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>",
		Short: "Analyze a URL",
		Long: `Analyze an absolute http(s) URL against the URL rules.

Example:
  phishcheck url "http://paypal.com.secure.account.login.evil.xyz/login"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.analyzeLocal(cmd.Context(), ruleengine.KindURL, args[0])
		},
	}
}

func (c *cli) emailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "email [file|-]",
		Short: "Analyze an email body",
		Long: `Analyze an email body (plain text or HTML) against the email rules.

The body is read from the given file, or from standard input when the
argument is "-" or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			body, err := c.readInput(path)
			if err != nil {
				return err
			}
			return c.analyzeLocal(cmd.Context(), ruleengine.KindEmail, body)
		},
	}
}

// readInput returns the content of path, or of standard input for "-".
func (c *cli) readInput(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(c.in)
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

func (c *cli) analyzeLocal(ctx context.Context, kind ruleengine.Kind, input string) error {
	opts, err := c.options()
	if err != nil {
		return err
	}

	svc, err := newLocalAnalyzer(opts)
	if err != nil {
		return err
	}

	verdict, err := svc.Analyze(ctx, kind, input)
	if err != nil {
		return err
	}
	return finish(c.out, opts.Output, verdict)
}

// finish renders the verdict and turns a phishing verdict into errPhishing.
func finish(w io.Writer, format string, v *ruleengine.Verdict) error {
	if err := renderVerdict(w, format, v); err != nil {
		return err
	}
	if v.IsPhishing {
		return errPhishing
	}
	return nil
}

func newLocalAnalyzer(opts options) (*analyzer.Service, error) {
	sets, err := loadRuleSets(opts.RulesFile)
	if err != nil {
		return nil, err
	}

	registry := ruleengine.NewRegistry()
	for kind, rs := range sets {
		if _, err := registry.Store(kind, rs); err != nil {
			return nil, err
		}
	}

	engine, err := analyzer.NewEngine(slog.Default(), opts.Scoring)
	if err != nil {
		return nil, err
	}
	return analyzer.New(engine, registry), nil
}

// loadRuleSets builds the rule sets from a pack file, or returns the built-in library.
func loadRuleSets(path string) (map[ruleengine.Kind]*ruleengine.RuleSet, error) {
	if path == "" {
		return ruleengine.DefaultRuleSets(), nil
	}

	defs, err := ruleengine.LoadDefinitions(path)
	if err != nil {
		return nil, err
	}

	sets := make(map[ruleengine.Kind]*ruleengine.RuleSet, len(ruleengine.Kinds))
	for kind, group := range ruleengine.Partition(defs) {
		rs, err := ruleengine.BuildDefinitions(group)
		if err != nil {
			return nil, fmt.Errorf("invalid %s rules in %s: %w", kind, path, err)
		}
		sets[kind] = rs
	}
	slog.Debug("loaded rule pack", slog.String("path", path), slog.Int("rules", len(defs)))
	return sets, nil
}
