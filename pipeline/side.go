package pipeline

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/brettbedarf/entryfs/internal/util"
)

// SideChains runs chains concurrently with the caller. Their failures are
// logged and collected but never affect the main chain.
type SideChains struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []StepResult
	errs    *multierror.Error
}

// Go starts c on its own goroutine
func (s *SideChains) Go(ctx context.Context, c *Chain) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		results, err := c.Run(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.results = append(s.results, results...)
		if err != nil {
			logger := util.GetLogger("SideChains")
			logger.Warn().Err(err).Str("chain", c.Name()).Msg("Side chain failed")
			s.errs = multierror.Append(s.errs, err)
		}
	}()
}

// Wait blocks until every started chain finished and returns their step
// results and the aggregated failures, nil if all succeeded
func (s *SideChains) Wait() ([]StepResult, error) {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StepResult(nil), s.results...), s.errs.ErrorOrNil()
}
