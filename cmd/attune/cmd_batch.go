package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"attune/internal/converge"
)

var batchConcurrent int

var batchCmd = &cobra.Command{
	Use:   "batch [pairs.yaml]",
	Short: "Converge many (profile, scenario) pairs concurrently",
	Long: `Reads a YAML list of pairs and runs them all under a concurrency
bound, reporting results in file order. Pass "-" to read the list
from stdin.

The file format is:

  - profile_id: aurora
    scenario: A neighbor asks for help after a flood.
  - profile_id: sage
    scenario: Walk me through the tradeoff.

The exit code is 0 only when every pair converged.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchFile,
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrent, "concurrent", 0, "Max runs in flight, 0 keeps the configured value")
	batchCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget override")
	batchCmd.Flags().Float64Var(&threshold, "threshold", 0, "Convergence threshold override")
	batchCmd.Flags().StringVar(&templateName, "template", "", "Scenario template override")
	batchCmd.Flags().DurationVar(&attemptDelay, "delay", -1, "Pause between attempts, -1 keeps the configured value")
}

func runBatchFile(cmd *cobra.Command, args []string) error {
	pairs, err := loadPairs(args[0])
	if err != nil {
		return err
	}

	d, err := buildDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	concurrent := batchConcurrent
	if concurrent < 1 {
		concurrent = d.cfg.Run.MaxConcurrent
	}
	results := d.ctrl.RunBatch(cmd.Context(), converge.BatchSpec{
		Pairs:         pairs,
		MaxConcurrent: concurrent,
	})

	if jsonOut {
		if err := printJSON(cmd, results); err != nil {
			return err
		}
	} else {
		printBatchResults(cmd, results)
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	if succeeded != len(results) {
		return fmt.Errorf("batch converged %d/%d pairs", succeeded, len(results))
	}
	return nil
}

func loadPairs(path string) ([]converge.Pair, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}

	var pairs []converge.Pair
	if err := yaml.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("parse pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs in %s", path)
	}
	return pairs, nil
}

func printBatchResults(cmd *cobra.Command, results []*converge.Result) {
	w := cmd.OutOrStdout()
	for i, r := range results {
		fmt.Fprintf(w, "%2d  %-12s %-8s best %.2f  attempts %d/%d  %s\n",
			i+1, r.ProfileID, r.Status, r.BestScore, len(r.Attempts), r.MaxAttempts, r.Reason)
	}
}
