package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/craftxbox/wplace-downloader/internal/config"
	"github.com/craftxbox/wplace-downloader/internal/downloader"
)

// recorder logs runner and publisher calls in order.
type recorder struct {
	mu      sync.Mutex
	events  []string
	active  int
	overlap bool
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) runner(fail string) Runner {
	return RunnerFunc(func(ctx context.Context, job config.Job) (*downloader.Result, error) {
		r.mu.Lock()
		r.active++
		if r.active > 1 {
			r.overlap = true
		}
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			r.active--
			r.mu.Unlock()
		}()

		r.add("run " + job.Name)
		if job.Name == fail {
			return nil, errors.New("boom")
		}
		return &downloader.Result{Job: job, MergedPath: "/tmp/" + job.Name + "_merged.png"}, nil
	})
}

type fakePublisher struct {
	rec  *recorder
	fail bool
}

func (p *fakePublisher) Publish(_ context.Context, res *downloader.Result) (string, error) {
	p.rec.add("publish " + res.Job.Name)
	if p.fail {
		return "", errors.New("bucket gone")
	}
	return res.Job.Name + ".png", nil
}

func jobs(names ...string) []config.Job {
	var out []config.Job
	for _, n := range names {
		out = append(out, config.Job{Name: n, XEnd: 1, YEnd: 1})
	}
	return out
}

func testLogger(t *testing.T) *zerolog.Logger {
	l := zerolog.New(zerolog.NewTestWriter(t))
	return &l
}

func TestQueueRunsJobsInOrder(t *testing.T) {
	rec := &recorder{}
	q := &Queue{
		Runner:    rec.runner(""),
		Publisher: &fakePublisher{rec: rec},
		Logger:    testLogger(t),
	}

	results, err := q.Run(context.Background(), jobs("a", "b", "c"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	want := []string{"run a", "publish a", "run b", "publish b", "run c", "publish c"}
	if !slices.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
	if rec.overlap {
		t.Error("jobs overlapped")
	}
}

func TestQueueStopsAtFirstFailure(t *testing.T) {
	rec := &recorder{}
	q := &Queue{Runner: rec.runner("b")}

	results, err := q.Run(context.Background(), jobs("a", "b", "c"))

	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("err = %v, want *JobError", err)
	}
	if jobErr.Job != "b" {
		t.Errorf("failed job = %q, want b", jobErr.Job)
	}
	if len(results) != 1 || results[0].Job.Name != "a" {
		t.Errorf("results = %v, want only a", results)
	}
	if want := []string{"run a", "run b"}; !slices.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestQueuePublishFailureStopsQueue(t *testing.T) {
	rec := &recorder{}
	q := &Queue{
		Runner:    rec.runner(""),
		Publisher: &fakePublisher{rec: rec, fail: true},
	}

	_, err := q.Run(context.Background(), jobs("a", "b"))
	if !IsPublishError(err) {
		t.Fatalf("err = %v, want publish error", err)
	}
	if want := []string{"run a", "publish a"}; !slices.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestQueueSkipsPublishWithoutMergedImage(t *testing.T) {
	rec := &recorder{}
	q := &Queue{
		Runner: RunnerFunc(func(_ context.Context, job config.Job) (*downloader.Result, error) {
			rec.add("run " + job.Name)
			return &downloader.Result{Job: job, MergeSkipped: true}, nil
		}),
		Publisher: &fakePublisher{rec: rec},
	}

	if _, err := q.Run(context.Background(), jobs("a")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"run a"}; !slices.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestQueueCancelledBeforeNextJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	q := &Queue{
		Runner: RunnerFunc(func(_ context.Context, job config.Job) (*downloader.Result, error) {
			rec.add("run " + job.Name)
			cancel()
			return &downloader.Result{Job: job}, nil
		}),
	}

	_, err := q.Run(ctx, jobs("a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if want := []string{"run a"}; !slices.Equal(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}
