// Package artwork defines the contract for the external card renderer and a
// placeholder implementation used when no renderer is configured or a render
// fails.
//
// Artwork is strictly best-effort: a failed or slow render degrades to a
// placeholder reference and must never block card creation.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Request carries everything the renderer needs.
type Request struct {
	ConversationID string
	Tier           string
	Title          string
	Keywords       []string
}

// Source renders card artwork and returns an opaque reference (URL/URI).
type Source interface {
	Render(ctx context.Context, req Request) (string, error)
}

// PlaceholderURL is the degraded artwork reference for a tier. It is
// deterministic so retries produce the same card.
func PlaceholderURL(tier string) string {
	return fmt.Sprintf("asset://cards/placeholder/%s.png", url.PathEscape(tier))
}

// Placeholder is a Source that always returns the tier placeholder.
// It is the default renderer when no external one is wired.
type Placeholder struct{}

// Render returns the placeholder reference for the request's tier.
func (Placeholder) Render(_ context.Context, req Request) (string, error) {
	return PlaceholderURL(req.Tier), nil
}

// Degrading decorates a Source with a bounded timeout and a short retry
// budget, and falls back to the placeholder instead of surfacing an error.
type Degrading struct {
	Inner      Source
	Timeout    time.Duration
	MaxElapsed time.Duration
}

// Render attempts the inner renderer; on exhaustion it returns the
// placeholder reference and a nil error.
func (d *Degrading) Render(ctx context.Context, req Request) (string, error) {
	var ref string

	operation := func() error {
		attemptCtx := ctx
		cancel := func() {}
		if d.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		}
		defer cancel()

		out, err := d.Inner.Render(attemptCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if out == "" {
			return errors.New("renderer returned empty reference")
		}
		ref = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if d.MaxElapsed > 0 {
		b.MaxElapsedTime = d.MaxElapsed
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return PlaceholderURL(req.Tier), nil
	}
	return ref, nil
}
