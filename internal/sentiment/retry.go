package sentiment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable wraps collaborator failures that exhausted the retry
// budget. Callers treat it as "not yet analyzed, try again later", never as
// "no card".
var ErrUnavailable = errors.New("sentiment collaborator unavailable")

// Retrying decorates a Source with a per-call timeout and exponential
// backoff. Context cancellation is permanent; other errors are retried
// until MaxElapsed runs out.
type Retrying struct {
	Inner      Source
	Timeout    time.Duration // per attempt; <=0 disables the bound
	MaxElapsed time.Duration // total retry budget; <=0 uses backoff default
}

// Analyze calls the inner source with retry-with-backoff semantics.
func (r *Retrying) Analyze(ctx context.Context, messages []MessageView) (*Result, error) {
	var out *Result

	operation := func() error {
		attemptCtx := ctx
		cancel := func() {}
		if r.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		defer cancel()

		res, err := r.Inner.Analyze(attemptCtx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		out = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if r.MaxElapsed > 0 {
		b.MaxElapsedTime = r.MaxElapsed
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return out, nil
}
