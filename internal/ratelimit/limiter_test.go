package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests drive admission waits without real sleeping. The
// limiter's sleep hook advances the clock by the requested duration.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestLimiter wires a limiter to a fake clock and records every sleep.
func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock, *[]time.Duration) {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := newFakeClock()
	var sleeps []time.Duration
	l.now = clock.now
	l.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		clock.advance(d)
		return nil
	}
	return l, clock, &sleeps
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero rpm", Config{RequestsPerMinute: 0, RequestsPerHour: 10, MaxRetries: 1, InitialRetryDelay: time.Second}},
		{"negative rpm", Config{RequestsPerMinute: -1, RequestsPerHour: 10, MaxRetries: 1, InitialRetryDelay: time.Second}},
		{"zero rph", Config{RequestsPerMinute: 10, RequestsPerHour: 0, MaxRetries: 1, InitialRetryDelay: time.Second}},
		{"negative retries", Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: -1, InitialRetryDelay: time.Second}},
		{"zero delay", Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 1, InitialRetryDelay: 0}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Errorf("%s: expected construction error", tc.name)
		}
	}
	if _, err := New(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestAdmitRecordsBothWindows(t *testing.T) {
	l, _, sleeps := newTestLimiter(t, Config{RequestsPerMinute: 5, RequestsPerHour: 50, MaxRetries: 1, InitialRetryDelay: time.Second})

	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no waiting with empty windows, slept %v", *sleeps)
	}
	if len(l.minute) != 1 || len(l.hour) != 1 {
		t.Fatalf("expected one entry per window, got minute=%d hour=%d", len(l.minute), len(l.hour))
	}
	if !l.minute[0].Equal(l.hour[0]) {
		t.Fatalf("windows recorded different instants: %v vs %v", l.minute[0], l.hour[0])
	}
}

func TestAdmitBlocksAtMinuteCapacity(t *testing.T) {
	l, clock, sleeps := newTestLimiter(t, Config{RequestsPerMinute: 2, RequestsPerHour: 100, MaxRetries: 1, InitialRetryDelay: time.Second})

	ctx := context.Background()
	start := clock.now()
	for i := 0; i < 2; i++ {
		if err := l.Admit(ctx); err != nil {
			t.Fatalf("warmup admit %d: %v", i+1, err)
		}
	}
	if len(*sleeps) != 0 {
		t.Fatalf("warmup admissions should not wait, slept %v", *sleeps)
	}

	if err := l.Admit(ctx); err != nil {
		t.Fatalf("third admit: %v", err)
	}
	if len(*sleeps) == 0 {
		t.Fatalf("third admit should have waited for the minute window")
	}
	if elapsed := clock.now().Sub(start); elapsed < time.Minute {
		t.Fatalf("admitted after %s, before the oldest entry expired", elapsed)
	}
	if len(l.minute) > 2 {
		t.Fatalf("minute window over capacity: %d", len(l.minute))
	}
}

func TestAdmitWaitsForHourWindowExpiry(t *testing.T) {
	l, _, sleeps := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 2, MaxRetries: 1, InitialRetryDelay: time.Second})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Admit(ctx); err != nil {
			t.Fatalf("warmup admit %d: %v", i+1, err)
		}
	}

	if err := l.Admit(ctx); err != nil {
		t.Fatalf("third admit: %v", err)
	}
	if len(*sleeps) == 0 {
		t.Fatalf("expected a wait against the saturated hour window")
	}
	// exact expiry of the oldest hour entry, not a poll loop
	if got := (*sleeps)[0]; got != time.Hour+admitBuffer {
		t.Fatalf("first wait = %s, want %s", got, time.Hour+admitBuffer)
	}
	if len(l.hour) > 2 {
		t.Fatalf("hour window over capacity: %d", len(l.hour))
	}
}

func TestAdmitConcurrentHoldsInvariant(t *testing.T) {
	l, err := New(Config{RequestsPerMinute: 50, RequestsPerHour: 100, MaxRetries: 1, InitialRetryDelay: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Admit(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Admit: %v", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.minute) != callers || len(l.hour) != callers {
		t.Fatalf("expected %d entries per window, got minute=%d hour=%d", callers, len(l.minute), len(l.hour))
	}
	if len(l.minute) > 50 || len(l.hour) > 100 {
		t.Fatalf("window invariant violated: minute=%d hour=%d", len(l.minute), len(l.hour))
	}
}

func TestAdmitHonorsContext(t *testing.T) {
	l, err := New(Config{RequestsPerMinute: 1, RequestsPerHour: 10, MaxRetries: 1, InitialRetryDelay: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 5, InitialRetryDelay: time.Second})

	calls := 0
	err := l.Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetryExhaustion(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 2, InitialRetryDelay: time.Second})

	cause := errors.New("quota exceeded")
	calls := 0
	err := l.Do(context.Background(), func() error {
		calls++
		return Limited(cause)
	})
	if calls != 3 {
		t.Fatalf("maxRetries=2 should mean 3 attempts, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("original error lost: %v", err)
	}
}

func TestDoBackoffDoublesAndCaps(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 100, RequestsPerHour: 1000, MaxRetries: 8, InitialRetryDelay: time.Second})

	var delays []time.Duration
	l.OnRetry = func(_ int, d time.Duration) { delays = append(delays, d) }

	_ = l.Do(context.Background(), func() error { return Limited(errors.New("busy")) })

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	if len(delays) != len(want) {
		t.Fatalf("expected %d retry delays, got %d (%v)", len(want), len(delays), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s", i, delays[i], want[i])
		}
		if i > 0 && delays[i] < delays[i-1] {
			t.Fatalf("delays not monotonic: %v", delays)
		}
	}
}

func TestDoNonRetryablePropagatesImmediately(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 5, InitialRetryDelay: time.Second})

	boom := errors.New("invalid request payload")
	calls := 0
	err := l.Do(context.Background(), func() error {
		calls++
		return boom
	})
	if calls != 1 {
		t.Fatalf("non-retryable error retried: %d calls", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestDoZeroRetriesMeansSingleAttempt(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 0, InitialRetryDelay: time.Second})

	calls := 0
	err := l.Do(context.Background(), func() error {
		calls++
		return Limited(errors.New("busy"))
	})
	if calls != 1 {
		t.Fatalf("maxRetries=0 should mean exactly one attempt, got %d", calls)
	}
	if err == nil {
		t.Fatalf("expected propagated failure")
	}
}

func TestDoAdmitsEveryAttempt(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, RequestsPerHour: 100, MaxRetries: 2, InitialRetryDelay: time.Second})

	_ = l.Do(context.Background(), func() error { return Limited(errors.New("busy")) })

	// each of the 3 attempts must pass the admission gate
	if len(l.hour) != 3 {
		t.Fatalf("expected 3 recorded admissions, got %d", len(l.hour))
	}
}

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", Limited(errors.New("x")), true},
		{"typed wrapped", fmt.Errorf("call failed: %w", Limited(errors.New("x"))), true},
		{"status text", errors.New("unexpected status 429"), true},
		{"message text", errors.New("Rate Limit exceeded for project"), true},
		{"too many requests", errors.New("Too Many Requests"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsRateLimited(tc.err); got != tc.want {
			t.Errorf("%s: IsRateLimited = %v, want %v", tc.name, got, tc.want)
		}
	}
}
