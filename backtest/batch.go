package backtest

import (
	"context"
	"sync"

	"github.com/dnldd/crossover/shared"
)

const (
	// maxWorkers is the maximum number of concurrent workers.
	maxWorkers = 8
)

// Job represents a backtest to run as part of a batch.
type Job struct {
	Bars   []shared.Bar
	Config Config
}

// Outcome represents the outcome of a batched backtest.
type Outcome struct {
	Key    string
	Result *Result
	Err    error
}

// RunBatch runs the provided backtests concurrently, bounded by the provided worker count,
// and returns their outcomes in job order. Jobs not started before the context is
// cancelled report the context error.
func RunBatch(ctx context.Context, jobs []Job, workers int) []Outcome {
	if workers <= 0 || workers > maxWorkers {
		workers = maxWorkers
	}

	outcomes := make([]Outcome, len(jobs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for idx := range jobs {
		job := &jobs[idx]
		outcomes[idx].Key = job.Config.Strategy.Key()

		if ctx.Err() != nil {
			outcomes[idx].Err = ctx.Err()
			continue
		}

		select {
		case <-ctx.Done():
			outcomes[idx].Err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, job *Job) {
			defer func() {
				<-sem
				wg.Done()
			}()

			outcomes[idx].Result, outcomes[idx].Err = Run(job.Bars, &job.Config)
		}(idx, job)
	}

	wg.Wait()

	return outcomes
}
