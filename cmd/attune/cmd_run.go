package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attune/internal/converge"
)

var runProfile string

var runCmd = &cobra.Command{
	Use:   "run [scenario...]",
	Short: "Converge one scenario onto a profile",
	Long: `Runs the full convergence loop for a single (profile, scenario) pair:
seed request, oracle call, five-dimension scoring, and escalating
mutations until the reply meets the threshold or the budget is spent.

The exit code is 0 only when the run converged.`,
	Example: `  attune run --profile aurora "A neighbor asks for help after a flood."
  attune run --profile sage --threshold 0.9 --max-attempts 5 "Explain the tradeoff."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringVarP(&runProfile, "profile", "p", "", "Profile id to converge onto (required)")
	runCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget override")
	runCmd.Flags().Float64Var(&threshold, "threshold", 0, "Convergence threshold override")
	runCmd.Flags().StringVar(&templateName, "template", "", "Scenario template override")
	runCmd.Flags().DurationVar(&attemptDelay, "delay", -1, "Pause between attempts, -1 keeps the configured value")
	_ = runCmd.MarkFlagRequired("profile")
}

func runScenario(cmd *cobra.Command, args []string) error {
	d, err := buildDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	res := d.ctrl.Run(cmd.Context(), converge.RunSpec{
		ProfileID: runProfile,
		Scenario:  strings.Join(args, " "),
	})

	if jsonOut {
		if err := printJSON(cmd, res); err != nil {
			return err
		}
	} else {
		printRunResult(cmd, res)
	}
	if !res.Succeeded() {
		return fmt.Errorf("run %s: %s", res.Status, res.Reason)
	}
	return nil
}

func printRunResult(cmd *cobra.Command, res *converge.Result) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s  profile=%s  template=%s  threshold=%.2f\n",
		res.RunID, res.ProfileID, res.Template, res.Threshold)
	for _, at := range res.Attempts {
		mutation := "-"
		if at.Mutation != nil {
			mutation = string(at.Mutation.Tag)
		}
		if at.Outcome.OK {
			weakest := "-"
			if at.Breakdown != nil {
				weakest = string(at.Breakdown.Weakest)
			}
			fmt.Fprintf(w, "  attempt %d  score %.2f  weakest %-10s mutation %s\n",
				at.Index, at.Score, weakest, mutation)
		} else {
			fmt.Fprintf(w, "  attempt %d  fault %-18s mutation %s\n",
				at.Index, at.Outcome.Fault, mutation)
		}
	}
	fmt.Fprintf(w, "status: %s  (%s)\n", res.Status, res.Reason)
	if best := res.Best(); best != nil {
		fmt.Fprintf(w, "best: attempt %d  score %.2f  calls %d  elapsed %s\n",
			res.BestAttempt, res.BestScore, res.Calls, res.Elapsed.Round(time.Millisecond))
	}
	if res.Persisted {
		fmt.Fprintln(w, "provenance record persisted")
	}
}
