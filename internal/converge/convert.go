package converge

import (
	"attune/internal/provenance"
)

// resultRecord flattens a Result into the serializable provenance form.
func resultRecord(res *Result) *provenance.Record {
	rec := &provenance.Record{
		RunID:        res.RunID,
		ProfileID:    res.ProfileID,
		ProfileName:  res.ProfileName,
		Scenario:     res.Scenario,
		Template:     res.Template,
		Status:       string(res.Status),
		Reason:       res.Reason,
		Threshold:    res.Threshold,
		MaxAttempts:  res.MaxAttempts,
		AttemptsUsed: len(res.Attempts),
		BestAttempt:  res.BestAttempt,
		BestScore:    res.BestScore,
		BestContent:  res.BestContent,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		DurationMS:   res.Elapsed.Milliseconds(),
		Calls:        res.Calls,
		Usage: provenance.Usage{
			PromptTokens: int64(res.Usage.PromptTokens),
			OutputTokens: int64(res.Usage.OutputTokens),
			TotalTokens:  int64(res.Usage.TotalTokens),
		},
	}
	if best := res.Best(); best != nil && best.Breakdown != nil {
		rec.BestDimensions = dimensionMap(best)
	}

	rec.Attempts = make([]provenance.Attempt, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		pa := provenance.Attempt{
			Index:        a.Index,
			OK:           a.Outcome.OK,
			Score:        a.Score,
			LatencyMS:    a.Outcome.Latency.Milliseconds(),
			Calls:        a.Outcome.Calls,
			PromptChars:  a.Request.Len(),
			ContentChars: len(a.Outcome.Content),
		}
		if a.Mutation != nil {
			pa.Mutation = string(a.Mutation.Tag)
			pa.MutationDetail = a.Mutation.Detail
			pa.TargetDimension = string(a.Mutation.Dimension)
		}
		if !a.Outcome.OK {
			pa.Fault = string(a.Outcome.Fault)
			pa.FaultDetail = a.Outcome.FaultDetail
		}
		if a.Breakdown != nil {
			pa.Weakest = string(a.Breakdown.Weakest)
			pa.Warnings = a.Breakdown.Warnings
			pa.Dimensions = dimensionMap(&a)
		}
		rec.Attempts = append(rec.Attempts, pa)
	}
	return rec
}

func dimensionMap(a *AttemptRecord) map[string]float64 {
	out := make(map[string]float64, 5)
	for d, v := range a.Breakdown.Map() {
		out[string(d)] = v
	}
	return out
}
