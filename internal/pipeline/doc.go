// Package pipeline runs the on-the-fly analyses at every simulation step.
//
// Every rank builds a Pipeline from the same configuration and calls Step
// with its local particles. The analyses reduce the local contributions to
// the collector rank, which alone owns the output stores and appends one
// record per dataset per analysed step:
//
//	p, err := pipeline.New(ctx, cfg, comm, pipeline.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//	for step := int64(0); step < steps; step++ {
//		if err := p.Step(ctx, step, t, particles); err != nil {
//			return err
//		}
//	}
//
// Step is collective: all ranks must call it with the same step numbers.
package pipeline
