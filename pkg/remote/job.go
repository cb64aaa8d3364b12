package remote

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
)

const (
	DefaultPollInterval = time.Second
	DefaultWait         = 33 * time.Minute
)

// Job is a pending remote operation.
type Job[T any] interface {
	ID() string
	// Check polls the job once. done is true once result is terminal.
	Check(ctx context.Context) (result T, done bool, err error)
}

// PollOptions bounds Await.
type PollOptions struct {
	Interval time.Duration
	Wait     time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Wait <= 0 {
		o.Wait = DefaultWait
	}
	return o
}

// Await polls job until it is done. Exhausting the wait returns ErrTimeout carrying the job id,
// so the caller can resume with a status check instead of resubmitting.
func Await[T any](ctx context.Context, job Job[T], opts PollOptions) (T, error) {
	opts = opts.withDefaults()
	deadline := time.NewTimer(opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		result, done, err := job.Check(ctx)
		if err != nil {
			var zero T
			return zero, errUtils.Build(errUtils.ErrRemote).
				WithCause(err).
				WithContext("job", job.ID()).
				Err()
		}
		if done {
			return result, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, errUtils.Timeout(job.ID(), ctx.Err())
			}
			return zero, ctx.Err()
		case <-deadline.C:
			var zero T
			return zero, errUtils.Timeout(job.ID(), errors.Newf("not finished after %s", opts.Wait))
		case <-ticker.C:
		}
	}
}

// Completed is a job that is already finished.
type Completed[T any] struct {
	JobID  string
	Result T
}

func (c *Completed[T]) ID() string { return c.JobID }

func (c *Completed[T]) Check(context.Context) (T, bool, error) {
	return c.Result, true, nil
}
