// Package queue runs download jobs one after another.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/craftxbox/wplace-downloader/internal/config"
	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/logger"
)

// Runner runs a single job to completion, merge included.
type Runner interface {
	Run(ctx context.Context, job config.Job) (*downloader.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job config.Job) (*downloader.Result, error)

func (f RunnerFunc) Run(ctx context.Context, job config.Job) (*downloader.Result, error) {
	return f(ctx, job)
}

// Downloader returns a Runner backed by downloader.Run with opts.
func Downloader(opts downloader.Options) Runner {
	return RunnerFunc(func(ctx context.Context, job config.Job) (*downloader.Result, error) {
		return downloader.Run(ctx, job, opts)
	})
}

// Publisher stores the merged image of a finished job.
type Publisher interface {
	Publish(ctx context.Context, res *downloader.Result) (string, error)
}

// JobError reports the job that stopped the queue.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// PublishError wraps failures to publish a merged image.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Queue runs jobs strictly in order. Publisher is optional.
type Queue struct {
	Runner    Runner
	Publisher Publisher
	Logger    *zerolog.Logger
}

// Run processes jobs in order. A job, publish included, is complete before
// the next one starts. The first failure stops the queue and is returned
// as a *JobError together with the results of the jobs that finished.
func (q *Queue) Run(ctx context.Context, jobs []config.Job) ([]*downloader.Result, error) {
	log := logger.OrNop(q.Logger)
	results := make([]*downloader.Result, 0, len(jobs))

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, &JobError{Job: job.Name, Err: err}
		}

		log.Info().Str("job", job.Name).Int("index", i+1).Int("total", len(jobs)).Msg("running job")

		res, err := q.Runner.Run(ctx, job)
		if err != nil {
			return results, &JobError{Job: job.Name, Err: err}
		}

		if q.Publisher != nil {
			if err := q.publish(ctx, res, log); err != nil {
				return results, &JobError{Job: job.Name, Err: err}
			}
		}
		results = append(results, res)
	}

	log.Info().Int("jobs", len(results)).Msg("queue finished")
	return results, nil
}

func (q *Queue) publish(ctx context.Context, res *downloader.Result, log *zerolog.Logger) error {
	if res.MergedPath == "" {
		log.Warn().Str("job", res.Job.Name).Msg("no merged image, nothing to publish")
		return nil
	}

	key, err := q.Publisher.Publish(ctx, res)
	if err != nil {
		return &PublishError{Err: err}
	}
	log.Info().Str("job", res.Job.Name).Str("key", key).Msg("published")
	return nil
}

// IsPublishError reports whether err stems from publishing.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}
