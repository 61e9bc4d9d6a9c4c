package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/brettbedarf/entryfs/internal/util"
)

// Step is one named stage of a Chain. Steps pass values to later steps
// through variables captured by their closures.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// StepResult records the outcome of one executed step
type StepResult struct {
	Chain    string
	Seq      int
	Name     string
	Err      error
	Duration time.Duration
}

func (r StepResult) OK() bool {
	return r.Err == nil
}

// StepError identifies the chain and step that failed
type StepError struct {
	Chain string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %q failed: %v", e.Chain, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Chain executes steps sequentially, each starting only after the previous
// one resolved. The first failure stops the chain.
type Chain struct {
	name  string
	steps []Step
}

func NewChain(name string, steps ...Step) *Chain {
	return &Chain{name: name, steps: steps}
}

func (c *Chain) Name() string {
	return c.name
}

// Then appends a step and returns the chain
func (c *Chain) Then(name string, fn func(ctx context.Context) error) *Chain {
	c.steps = append(c.steps, Step{Name: name, Fn: fn})
	return c
}

// Len returns the number of steps
func (c *Chain) Len() int {
	return len(c.steps)
}

// Run executes the steps in order. It returns the results of every step that
// ran and a *StepError for the first failure. Steps after a failure, or after
// ctx is done, do not run.
func (c *Chain) Run(ctx context.Context) ([]StepResult, error) {
	logger := util.GetLogger("Chain.Run")
	results := make([]StepResult, 0, len(c.steps))

	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return results, &StepError{Chain: c.name, Step: step.Name, Err: err}
		}
		logger.Debug().Str("chain", c.name).Str("step", step.Name).Msg("Executing step")

		start := time.Now()
		err := step.Fn(ctx)
		res := StepResult{
			Chain:    c.name,
			Seq:      i + 1,
			Name:     step.Name,
			Err:      err,
			Duration: time.Since(start),
		}
		results = append(results, res)

		if err != nil {
			logger.Error().Err(err).Str("chain", c.name).Str("step", step.Name).Msg("Step failed")
			return results, &StepError{Chain: c.name, Step: step.Name, Err: err}
		}
		logger.Info().Str("chain", c.name).Str("step", step.Name).Dur("took", res.Duration).Msg("Step done")
	}
	return results, nil
}
