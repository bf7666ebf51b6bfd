package scanner

import (
	"context"
	"sync"
	"time"
)

// ScanAll scans every target with a bounded worker pool. Results keep the
// target order.
func (s *Scanner) ScanAll(ctx context.Context) []Result {
	targets := s.opts.Targets
	results := make([]Result, len(targets))
	if len(targets) == 0 {
		return results
	}

	jobs := make(chan int)
	workers := s.opts.Workers
	if workers > len(targets) {
		workers = len(targets)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				t := targets[idx]
				if ctx.Err() != nil {
					results[idx] = Result{Symbol: t.Symbol, Interval: t.Interval, Error: ctx.Err().Error()}
					continue
				}
				ctxScan, cancel := context.WithTimeout(ctx, 2*time.Minute)
				results[idx] = s.ScanSymbol(ctxScan, t)
				cancel()
			}
		}()
	}

	for idx := range targets {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	fail, emitted := 0, 0
	for _, r := range results {
		if r.Error != "" {
			fail++
		}
		emitted += len(r.Emitted)
	}
	s.log.Info().Int("symbols", len(targets)).Int("fail", fail).Int("emitted", emitted).Msg("scan round finished")
	return results
}

// Run scans every target at each interval boundary plus Delay, until ctx is
// done.
func (s *Scanner) Run(ctx context.Context) {
	for {
		next := nextRun(s.now(), s.opts.Every, s.opts.Delay)
		s.log.Debug().Time("next_run", next).Msg("scan scheduled")

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.ScanAll(ctx)
	}
}

// nextRun returns the first boundary of every after now, shifted by delay.
// Boundaries are aligned to the Unix epoch in UTC.
func nextRun(now time.Time, every, delay time.Duration) time.Time {
	t := now.UTC().Truncate(every).Add(delay)
	if !t.After(now) {
		t = t.Add(every)
	}
	return t
}
