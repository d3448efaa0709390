package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// recorder collects requested sleeps instead of waiting
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(r *recorder) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Sleep:       r.sleep,
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Backoff(tt.attempt))
		})
	}
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	r := &recorder{}
	calls := 0

	err := testPolicy(r).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: write timed out", domain.ErrTransient)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, r.delays)
}

func TestDo_Exhausted(t *testing.T) {
	r := &recorder{}
	cause := fmt.Errorf("%w: connection reset", domain.ErrTransient)
	calls := 0

	err := testPolicy(r).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, r.delays, 2, "no sleep after the final attempt")
	assert.ErrorIs(t, err, domain.ErrPersistentService)
	assert.ErrorIs(t, err, domain.ErrTransient)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	r := &recorder{}
	calls := 0

	err := testPolicy(r).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &domain.SchemaMismatchError{Expected: 3, Got: 2}
	})

	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.NotErrorIs(t, err, domain.ErrPersistentService)
	assert.Equal(t, 1, calls)
	assert.Empty(t, r.delays)
}

func TestDo_CustomPredicate(t *testing.T) {
	r := &recorder{}
	p := testPolicy(r)
	p.Retryable = domain.IsRetryable
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_HonoursRetryAfter(t *testing.T) {
	r := &recorder{}
	calls := 0

	err := testPolicy(r).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &domain.RateLimitError{RetryAfter: 700 * time.Millisecond}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{700 * time.Millisecond}, r.delays)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	calls := 0

	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("%w: flaky", domain.ErrTransient)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue_ReturnsResult(t *testing.T) {
	r := &recorder{}
	calls := 0

	v, err := Value(context.Background(), testPolicy(r), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, domain.ErrRateLimited
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSleep_ZeroDuration(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}
