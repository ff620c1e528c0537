package streetview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panocount/internal/resilience"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		kind    OutcomeKind
		attempt int
		max     int
		want    Decision
	}{
		{"found is terminal", KindFound, 0, 3, DecisionAccept},
		{"not found is terminal", KindNotFound, 0, 3, DecisionAccept},
		{"found terminal even on last attempt", KindFound, 2, 3, DecisionAccept},
		{"rate limit retries uncounted", KindRateLimited, 0, 3, DecisionRetryUncounted},
		{"rate limit retries uncounted past max", KindRateLimited, 99, 3, DecisionRetryUncounted},
		{"server error retries", KindServerError, 0, 3, DecisionRetry},
		{"server error retries again", KindServerError, 1, 3, DecisionRetry},
		{"server error exhausts", KindServerError, 2, 3, DecisionFail},
		{"transport error retries", KindTransportError, 0, 3, DecisionRetry},
		{"transport error exhausts", KindTransportError, 2, 3, DecisionFail},
		{"single attempt fails immediately", KindServerError, 0, 1, DecisionFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.kind, tt.attempt, tt.max))
		})
	}
}

// scriptedClient returns canned outcomes in order, then repeats the last one.
type scriptedClient struct {
	outcomes []Outcome
	err      error
	calls    int
}

func (c *scriptedClient) Query(ctx context.Context, lat, lng float64, radius int) (Outcome, error) {
	i := c.calls
	c.calls++
	if c.err != nil {
		return Outcome{}, c.err
	}
	if i >= len(c.outcomes) {
		i = len(c.outcomes) - 1
	}
	return c.outcomes[i], nil
}

func fastRetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		JitterFraction: -1, // negative clamps to no jitter
	}
}

func TestQueryWithRetry_ImmediateFound(t *testing.T) {
	c := &scriptedClient{outcomes: []Outcome{{Kind: KindFound, PanoID: "p1"}}}

	out, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFound, out.Kind)
	assert.Equal(t, "p1", out.PanoID)
	assert.Equal(t, 1, c.calls)
}

func TestQueryWithRetry_ServerErrorThenFound(t *testing.T) {
	c := &scriptedClient{outcomes: []Outcome{
		{Kind: KindServerError, HTTPStatus: 502},
		{Kind: KindServerError, HTTPStatus: 502},
		{Kind: KindFound, PanoID: "p1"},
	}}

	out, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFound, out.Kind)
	assert.Equal(t, 3, c.calls)
}

func TestQueryWithRetry_ExhaustsAttempts(t *testing.T) {
	c := &scriptedClient{outcomes: []Outcome{{Kind: KindServerError, HTTPStatus: 500}}}

	out, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, KindServerError, out.Kind)
	assert.Equal(t, 3, c.calls)
}

func TestQueryWithRetry_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	// Five throttles, then two server errors, then success. With max 3
	// attempts this succeeds only if throttles are uncounted.
	outcomes := []Outcome{
		{Kind: KindRateLimited},
		{Kind: KindRateLimited},
		{Kind: KindRateLimited},
		{Kind: KindRateLimited},
		{Kind: KindRateLimited},
		{Kind: KindServerError, HTTPStatus: 503},
		{Kind: KindServerError, HTTPStatus: 503},
		{Kind: KindFound, PanoID: "p1"},
	}
	c := &scriptedClient{outcomes: outcomes}

	out, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFound, out.Kind)
	assert.Equal(t, len(outcomes), c.calls)
}

func TestQueryWithRetry_HonorsRetryAfter(t *testing.T) {
	c := &scriptedClient{outcomes: []Outcome{
		{Kind: KindRateLimited, RetryAfter: 50 * time.Millisecond},
		{Kind: KindFound, PanoID: "p1"},
	}}

	start := time.Now()
	out, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFound, out.Kind)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueryWithRetry_ContextCancelsBackoff(t *testing.T) {
	c := &scriptedClient{outcomes: []Outcome{
		{Kind: KindRateLimited, RetryAfter: time.Hour},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := QueryWithRetry(ctx, c, 43, -79, 30, 3, fastRetryConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueryWithRetry_PropagatesHardError(t *testing.T) {
	c := &scriptedClient{err: context.Canceled}

	_, err := QueryWithRetry(context.Background(), c, 43, -79, 30, 3, fastRetryConfig())
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)
}
