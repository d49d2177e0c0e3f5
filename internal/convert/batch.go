package convert

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one file to convert.
type Job struct {
	Src string
	Dst string // OutputPath(Src) when empty
}

// Result is the outcome of one Job.
type Result struct {
	Job    Job
	Report *Report
	Err    error
}

// BatchOptions configures Batch.
type BatchOptions struct {
	Options
	// Jobs is the number of files converted at once. 0 means one per CPU.
	Jobs int
	// StopOnError skips the files not yet started once a conversion fails.
	StopOnError bool
}

// Batch converts independent files concurrently. Each file runs its own
// single-threaded pipeline. Results are in the order of jobs. The returned
// error is the first failure when StopOnError is set, or the context error.
func Batch(ctx context.Context, jobs []Job, opts BatchOptions) ([]Result, error) {
	n := opts.Jobs
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i, job := range jobs {
		if job.Dst == "" {
			job.Dst = OutputPath(job.Src)
		}
		results[i].Job = job
		g.Go(func() error {
			// Cancellation is only observed between files.
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			rep, err := File(job.Src, job.Dst, opts.Options)
			results[i].Report, results[i].Err = rep, err
			if err != nil {
				log.Error("conversion failed", zap.String("source", job.Src), zap.Error(err))
				if opts.StopOnError {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
