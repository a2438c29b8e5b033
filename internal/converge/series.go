package converge

import "context"

// SeriesSpec runs one scenario through several profiles, strictly in
// order. A series answers "how does each voice handle this?" without the
// interleaving a batch would allow.
type SeriesSpec struct {
	Profiles []string
	Scenario string

	// RequireAll stops the series at the first run that does not
	// converge; remaining profiles are not attempted.
	RequireAll bool

	MaxAttempts int
	Threshold   float64
	Template    string
	Observer    Observer
}

// RunSeries executes the profiles sequentially and returns one result
// per profile actually attempted.
func (c *Controller) RunSeries(ctx context.Context, spec SeriesSpec) []*Result {
	out := make([]*Result, 0, len(spec.Profiles))
	for _, id := range spec.Profiles {
		res := c.Run(ctx, RunSpec{
			ProfileID:   id,
			Scenario:    spec.Scenario,
			MaxAttempts: spec.MaxAttempts,
			Threshold:   spec.Threshold,
			Template:    spec.Template,
			Observer:    spec.Observer,
		})
		out = append(out, res)
		if res.Status == StatusCanceled {
			break
		}
		if spec.RequireAll && !res.Succeeded() {
			break
		}
	}
	return out
}
