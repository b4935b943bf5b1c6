// Package backoff retries startup dependency checks with exponential backoff.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// DefaultBase is the first delay between attempts: 1s, 2s, 4s, 8s, 16s.
const DefaultBase = time.Second

// Connect calls dial until it succeeds, the attempts run out or ctx is done.
// At least one attempt is made even if maxRetries is 0. Failed attempts are
// logged with target so startup logs show which dependency is not ready.
func Connect[T any](ctx context.Context, target string, maxRetries int, base time.Duration, dial func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(maxRetries, 1)
	policy := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))

	attempt := 0
	conn, err := retry.DoValue[T](ctx, policy, func(ctx context.Context) (T, error) {
		attempt++
		conn, err := dial(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("target", target).
				Int("attempt", attempt).
				Int("max_retries", maxRetries).
				Msg("connection failed, retrying")
			return conn, retry.RetryableError(err)
		}
		return conn, nil
	})
	if err == nil {
		log.Info().Str("target", target).Int("attempts", attempt).Msg("connection established")
		return conn, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return zero, ctxErr
	}
	return zero, fmt.Errorf("failed to connect to %s after %d attempts: %w", target, attempt, err)
}
