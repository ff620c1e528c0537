package streetview

import (
	"context"

	"github.com/sells-group/panocount/internal/resilience"
)

// Decision says what to do with a query outcome.
type Decision int

const (
	// DecisionAccept records the outcome and moves on.
	DecisionAccept Decision = iota
	// DecisionRetry retries and consumes one attempt.
	DecisionRetry
	// DecisionRetryUncounted retries without consuming an attempt.
	DecisionRetryUncounted
	// DecisionFail records a terminal failure; attempts are exhausted.
	DecisionFail
)

// Decide is the retry policy for a single sample point. Found and NotFound
// are genuine answers and always terminal. Throttling retries forever without
// consuming attempts, since it says nothing about the point itself. Server
// and transport errors consume attempts up to maxAttempts.
func Decide(kind OutcomeKind, attempt, maxAttempts int) Decision {
	switch kind {
	case KindFound, KindNotFound:
		return DecisionAccept
	case KindRateLimited:
		return DecisionRetryUncounted
	default:
		if attempt >= maxAttempts-1 {
			return DecisionFail
		}
		return DecisionRetry
	}
}

// QueryWithRetry queries one point until the policy reaches a terminal
// decision, sleeping with exponential backoff between tries and honoring a
// server-provided Retry-After when it is longer. All retries collapse into
// the single returned outcome.
func QueryWithRetry(ctx context.Context, c Client, lat, lng float64, radius, maxAttempts int, cfg resilience.RetryConfig) (Outcome, error) {
	attempt := 0
	for backoffStep := 0; ; backoffStep++ {
		out, err := c.Query(ctx, lat, lng, radius)
		if err != nil {
			return out, err
		}

		switch Decide(out.Kind, attempt, maxAttempts) {
		case DecisionAccept, DecisionFail:
			return out, nil
		case DecisionRetry:
			attempt++
		case DecisionRetryUncounted:
		}

		delay := resilience.Backoff(backoffStep, cfg)
		if out.RetryAfter > delay {
			delay = out.RetryAfter
		}
		if err := resilience.Sleep(ctx, delay); err != nil {
			return out, err
		}
	}
}
