// Package paginate provides a generic paged-fetch primitive with retry and
// pagination-loop protection. Every provider listing call goes through it.
package paginate

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/costscope/costscope/internal/pkg/errors"
)

// FetchFunc fetches one page. An empty next token means the sequence is
// exhausted. The first call receives an empty token.
type FetchFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// RetryPolicy defines retry behavior for a single page fetch
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// delay computes the backoff delay before the given attempt (1-based)
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

// fetchWithRetry runs one page fetch under the retry policy. Only transient
// errors are retried; anything else propagates immediately.
func fetchWithRetry[T any](ctx context.Context, policy RetryPolicy, fetch FetchFunc[T], token string) ([]T, string, error) {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		items, next, err := fetch(ctx, token)
		if err == nil {
			return items, next, nil
		}
		lastErr = err

		if !errors.IsTransient(err) {
			return nil, "", err
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return nil, "", lastErr
}

// Collect drains every page into a single slice. Each item is yielded exactly
// once. If the provider hands back a page token that was already seen, the
// sequence cannot terminate and Collect fails closed with an integrity error.
func Collect[T any](ctx context.Context, policy RetryPolicy, fetch FetchFunc[T]) ([]T, error) {
	var out []T
	err := Each(ctx, policy, fetch, func(item T) {
		out = append(out, item)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Each streams items from every page to yield, page by page
func Each[T any](ctx context.Context, policy RetryPolicy, fetch FetchFunc[T], yield func(T)) error {
	seen := map[string]struct{}{"": {}}
	token := ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, next, err := fetchWithRetry(ctx, policy, fetch, token)
		if err != nil {
			return err
		}
		for _, item := range items {
			yield(item)
		}

		if next == "" {
			return nil
		}
		if _, dup := seen[next]; dup {
			return errors.Integrity("pagination loop detected: token repeated", nil)
		}
		seen[next] = struct{}{}
		token = next
	}
}
