package guard

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/storegate/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGuard() (*OTPGuard, *testClock) {
	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	mem := store.NewMemory()
	mem.Clock = clk.Now
	return NewOTPGuard(mem), clk
}

func TestThrottleSendWindow(t *testing.T) {
	g, clk := newTestGuard()
	ctx := context.Background()

	require.NoError(t, g.ThrottleSend(ctx, "a@example.com"))
	assert.ErrorIs(t, g.ThrottleSend(ctx, "a@example.com"), ErrTooSoon)

	// Unrelated keys are independent.
	require.NoError(t, g.ThrottleSend(ctx, "b@example.com"))

	clk.Advance(61 * time.Second)
	assert.NoError(t, g.ThrottleSend(ctx, "a@example.com"),
		"send slot must free up after the window elapses")
}

func TestAttemptCap(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()
	const key = "a@example.com"

	for i := 1; i <= 5; i++ {
		require.NoError(t, g.CheckAttempts(ctx, key), "attempt %d must be permitted", i)
		n, err := g.RecordAttempt(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.ErrorIs(t, g.CheckAttempts(ctx, key), ErrTooManyAttempts,
		"the 6th attempt must be rejected")
}

func TestCheckAttemptsIsReadOnly(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, g.CheckAttempts(ctx, "k"))
	}
	n, err := g.RecordAttempt(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "checks alone must not consume attempts")
}

func TestAttemptWindowExpires(t *testing.T) {
	g, clk := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.RecordAttempt(ctx, "k")
		require.NoError(t, err)
	}
	require.ErrorIs(t, g.CheckAttempts(ctx, "k"), ErrTooManyAttempts)

	clk.Advance(11 * time.Minute)
	assert.NoError(t, g.CheckAttempts(ctx, "k"))
}

func TestRecordAttemptConcurrent(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := g.RecordAttempt(ctx, "k")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := g.RecordAttempt(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), n)
}

func TestClearAttempts(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.RecordAttempt(ctx, "k")
		require.NoError(t, err)
	}
	require.NoError(t, g.ClearAttempts(ctx, "k"))
	assert.NoError(t, g.CheckAttempts(ctx, "k"))
}

func TestVerifyCodeSingleUse(t *testing.T) {
	g, _ := newTestGuard()
	ctx := context.Background()

	require.NoError(t, g.SaveCode(ctx, "k", "123456"))

	assert.ErrorIs(t, g.VerifyCode(ctx, "k", "000000"), ErrCodeMismatch)
	assert.NoError(t, g.VerifyCode(ctx, "k", "123456"),
		"a mismatch must not burn the stored code")
	assert.ErrorIs(t, g.VerifyCode(ctx, "k", "123456"), ErrCodeMismatch,
		"a consumed code must not verify twice")
}

func TestVerifyCodeExpired(t *testing.T) {
	g, clk := newTestGuard()
	ctx := context.Background()

	require.NoError(t, g.SaveCode(ctx, "k", "123456"))
	clk.Advance(11 * time.Minute)
	assert.ErrorIs(t, g.VerifyCode(ctx, "k", "123456"), ErrCodeMismatch)
}

func TestNewCodeShape(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 20; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}
