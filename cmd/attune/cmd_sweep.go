package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"attune/internal/converge"
)

var (
	sweepProfiles   []string
	sweepRequireAll bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [scenario...]",
	Short: "Run one scenario through every profile, one after another",
	Long: `Converges the same scenario onto each profile in turn and prints a
comparison table. Sweeps are exploratory and exit 0 regardless of the
outcomes, unless --require-all turns the sweep into a gate that stops
at the first profile that fails to converge.`,
	Example: `  attune sweep --offline "A rival team shipped first. Draft our response."
  attune sweep --profiles sage,aurora --require-all "Explain the outage."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringSliceVar(&sweepProfiles, "profiles", nil, "Profile ids to sweep, default all")
	sweepCmd.Flags().BoolVar(&sweepRequireAll, "require-all", false, "Stop at the first miss and exit non-zero")
	sweepCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget override")
	sweepCmd.Flags().Float64Var(&threshold, "threshold", 0, "Convergence threshold override")
	sweepCmd.Flags().StringVar(&templateName, "template", "", "Scenario template override")
	sweepCmd.Flags().DurationVar(&attemptDelay, "delay", -1, "Pause between attempts, -1 keeps the configured value")
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := buildDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	ids := sweepProfiles
	if len(ids) == 0 {
		profiles, err := d.profiles.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
	}

	scenario := strings.Join(args, " ")
	results := d.ctrl.RunSeries(cmd.Context(), converge.SeriesSpec{
		Profiles:   ids,
		Scenario:   scenario,
		RequireAll: sweepRequireAll,
	})

	if jsonOut {
		if err := printJSON(cmd, results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "scenario: %s\n", scenario)
		for _, r := range results {
			weakest := "-"
			if best := r.Best(); best != nil && best.Breakdown != nil {
				weakest = string(best.Breakdown.Weakest)
			}
			fmt.Fprintf(w, "  %-12s %-8s best %.2f  attempts %d/%d  weakest %s\n",
				r.ProfileID, r.Status, r.BestScore, len(r.Attempts), r.MaxAttempts, weakest)
		}
	}

	if sweepRequireAll {
		for _, r := range results {
			if !r.Succeeded() {
				return fmt.Errorf("sweep stopped: profile %s ended %s", r.ProfileID, r.Status)
			}
		}
		if len(results) < len(ids) {
			return fmt.Errorf("sweep stopped after %d of %d profiles", len(results), len(ids))
		}
	}
	return nil
}
