package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/submission"
)

// Job is one provider's share of a multi-provider run. Load supplies the
// batch, typically by fetching the provider feed.
type Job struct {
	Provider Provider
	Load     func(ctx context.Context) ([]submission.Record, error)
}

// RunAll runs the jobs in parallel, one goroutine per provider. Each run
// builds its own identifier graph. A failing provider does not stop the
// others; its error is joined into the returned error and its report is
// marked aborted.
func (e *Engine) RunAll(ctx context.Context, actor string, jobs []Job) ([]*Report, error) {
	reports := make([]*Report, len(jobs))
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			report, err := e.runJob(ctx, actor, job)
			reports[i] = report
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", job.Provider.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func (e *Engine) runJob(ctx context.Context, actor string, job Job) (*Report, error) {
	records, err := job.Load(ctx)
	if err != nil {
		e.log.Error("loading provider batch failed", zap.String("provider", job.Provider.Name), zap.Error(err))
		report := &Report{
			Provider:    job.Provider.Name,
			Actor:       actor,
			StartedAt:   e.now().UTC(),
			Conflicts:   []Conflict{},
			OutOfCorpus: []string{},
		}
		if !conflict.IsFetchFailure(err) {
			err = conflict.Wrap(conflict.UpstreamFetchFailure, job.Provider.Name, err)
		}
		report.Add(err)
		report.abort(err.Error())
		return e.finish(report, e.log.With(zap.String("provider", job.Provider.Name))), err
	}
	return e.Run(ctx, actor, job.Provider, records)
}
