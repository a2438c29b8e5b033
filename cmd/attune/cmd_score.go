package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"attune/internal/profile"
	"attune/internal/score"
)

var scoreProfile string

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score existing text against a profile without calling the oracle",
	Long: `Evaluates a reply that already exists, printing the per-dimension
breakdown. Pass "-" or no argument to read the text from stdin.

The exit code is 0 only when the overall score meets the threshold,
so score doubles as a style gate in scripts.`,
	Example: `  attune score --profile aurora reply.txt
  cat reply.txt | attune score --profile sage --threshold 0.7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScoreFile,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreProfile, "profile", "p", "", "Profile id to score against (required)")
	scoreCmd.Flags().Float64Var(&threshold, "threshold", 0, "Pass threshold override")
	_ = scoreCmd.MarkFlagRequired("profile")
}

func runScoreFile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var raw []byte
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}

	store, err := profile.NewCatalogStore(cfg.Store.ProfileDir, logger)
	if err != nil {
		return err
	}
	compiled, err := store.Get(cmd.Context(), scoreProfile)
	if err != nil {
		return err
	}

	b := score.Evaluate(string(raw), compiled.Target())

	if jsonOut {
		if err := printJSON(cmd, b); err != nil {
			return err
		}
	} else {
		printBreakdown(cmd, b)
	}
	if b.Overall < cfg.Run.Threshold {
		return fmt.Errorf("score %.2f below threshold %.2f", b.Overall, cfg.Run.Threshold)
	}
	return nil
}

func printBreakdown(cmd *cobra.Command, b score.Breakdown) {
	w := cmd.OutOrStdout()
	for _, d := range score.Dimensions {
		fmt.Fprintf(w, "%-10s %.2f\n", d, b.Of(d))
	}
	fmt.Fprintf(w, "overall    %.2f  weakest: %s\n", b.Overall, b.Weakest)
	for _, warn := range b.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if verbose {
		for _, ev := range b.Evidence {
			fmt.Fprintf(w, "evidence: %s\n", ev)
		}
	}
}
