package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
)

// RulesCheckResult is the outcome of checking one rule file.
type RulesCheckResult struct {
	File  string         `json:"file"`
	Valid bool           `json:"valid"`
	Rules *model.RuleSet `json:"rules,omitempty"`
	Error string         `json:"error,omitempty"`
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with rule set files",
	}
	cmd.AddCommand(newRulesCheckCommand(rootOpts))
	return cmd
}

func newRulesCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate CUE rule files",
		Long: `Validate rule set files against the built-in schema.

A rule file declares the game and its bounds:

  rules: {
    kind:       "clash"   // "duel" or "clash"
    threshold:  3         // score that ends the session, 0 for none
    max_rounds: 9         // rounds that end the session, 0 for none
  }

Exit codes:
  0 - All files valid
  1 - One or more files invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesCheck(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runRulesCheck(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	results := make([]RulesCheckResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		formatter.VerboseLog("checking %s", file)
		set, err := rules.Load(file)
		if err != nil {
			invalid++
			results = append(results, RulesCheckResult{File: file, Error: err.Error()})
			continue
		}
		results = append(results, RulesCheckResult{File: file, Valid: true, Rules: &set})
	}

	if opts.Format == "json" {
		if invalid > 0 {
			if err := formatter.Error(ErrCodeRules, fmt.Sprintf("%d invalid rule file(s)", invalid), results); err != nil {
				return err
			}
		} else if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(w, "✓ %s: %s\n", r.File, describeRules(*r.Rules))
			} else {
				fmt.Fprintf(w, "✗ %s\n  %s\n", r.File, r.Error)
			}
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid rule file(s)", invalid))
	}
	return nil
}
