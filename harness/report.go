package harness

import (
	"fmt"
	"io"
	"time"

	"github.com/brettbedarf/entryfs/internal/journal"
	"github.com/brettbedarf/entryfs/pipeline"
)

// Report is the outcome of one [Session.Run]
type Report struct {
	RunID     string
	RootURL   string
	StartedAt time.Time
	Duration  time.Duration
	Steps     []pipeline.StepResult // setup and main chain first, then side chains
	SideErr   error                 // aggregated side chain failures
	Err       error                 // first setup or main chain failure
}

// OK reports whether the setup and main chains succeeded
func (r *Report) OK() bool {
	return r.Err == nil
}

// Step returns the result of the named step of chain
func (r *Report) Step(chain, name string) (pipeline.StepResult, bool) {
	for _, s := range r.Steps {
		if s.Chain == chain && s.Name == name {
			return s, true
		}
	}
	return pipeline.StepResult{}, false
}

// Record converts the report into a journal run
func (r *Report) Record() journal.Run {
	run := journal.Run{
		ID:        r.RunID,
		RootURL:   r.RootURL,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		OK:        r.OK(),
		Steps:     make([]journal.Step, 0, len(r.Steps)),
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	for _, s := range r.Steps {
		step := journal.Step{Chain: s.Chain, Seq: s.Seq, Name: s.Name, OK: s.OK(), Duration: s.Duration}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		run.Steps = append(run.Steps, step)
	}
	return run
}

// WriteSummary prints one line per step followed by the verdict
func (r *Report) WriteSummary(w io.Writer) error {
	for _, s := range r.Steps {
		status := "ok"
		if !s.OK() {
			status = "FAIL: " + s.Err.Error()
		}
		if _, err := fmt.Fprintf(w, "%-8s %2d %-14s %8s  %s\n", s.Chain, s.Seq, s.Name, s.Duration.Round(time.Microsecond), status); err != nil {
			return err
		}
	}
	verdict := "PASS"
	if !r.OK() {
		verdict = "FAIL"
	}
	_, err := fmt.Fprintf(w, "%s run %s in %s\n", verdict, r.RunID, r.Duration.Round(time.Millisecond))
	return err
}
