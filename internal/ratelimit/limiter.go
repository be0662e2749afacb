// Package ratelimit gates outbound API calls behind two sliding admission
// windows (per-minute and per-hour) and retries rate-limited attempts with
// exponential backoff.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// padding added to every computed wait so the oldest entry has actually
	// left its window when we re-check
	admitBuffer = 100 * time.Millisecond

	// fallback when neither window yields a concrete expiry to wait for
	pollInterval = 100 * time.Millisecond

	// ceiling for the doubling retry delay in Do
	maxRetryDelay = 60 * time.Second
)

type Config struct {
	RequestsPerMinute int           // max admissions in any trailing 60s
	RequestsPerHour   int           // max admissions in any trailing 3600s
	MaxRetries        int           // retries after the first attempt in Do
	InitialRetryDelay time.Duration // first backoff delay in Do
}

// DefaultConfig matches the Gemini free-tier quota.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 30,
		RequestsPerHour:   1500,
		MaxRetries:        5,
		InitialRetryDelay: time.Second,
	}
}

func (c Config) validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit: requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.RequestsPerHour <= 0 {
		return fmt.Errorf("ratelimit: requests_per_hour must be positive, got %d", c.RequestsPerHour)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ratelimit: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.InitialRetryDelay <= 0 {
		return fmt.Errorf("ratelimit: initial_retry_delay must be positive, got %s", c.InitialRetryDelay)
	}
	return nil
}

// Limiter is a process-wide admission controller shared by all callers.
// It records the instant of every admitted request in both windows and
// purges expired entries lazily before each check.
type Limiter struct {
	cfg Config

	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	// Optional hooks, set before the limiter is shared.
	OnWait  func(wait time.Duration)
	OnRetry func(attempt int, delay time.Duration)
}

func New(cfg Config) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// purge drops entries older than each window's span. Both slices are
// append-only and chronological, so expired entries form a prefix.
func (l *Limiter) purge(now time.Time) {
	minuteAgo := now.Add(-time.Minute)
	for len(l.minute) > 0 && l.minute[0].Before(minuteAgo) {
		l.minute = l.minute[1:]
	}
	hourAgo := now.Add(-time.Hour)
	for len(l.hour) > 0 && l.hour[0].Before(hourAgo) {
		l.hour = l.hour[1:]
	}
}

// tryAdmit performs one purge-check-record cycle under the lock. On refusal
// it returns how long to wait before the next attempt.
func (l *Limiter) tryAdmit() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)

	if len(l.minute) < l.cfg.RequestsPerMinute && len(l.hour) < l.cfg.RequestsPerHour {
		l.minute = append(l.minute, now)
		l.hour = append(l.hour, now)
		return true, 0
	}

	// wait for the oldest blocking entry to expire
	if len(l.minute) >= l.cfg.RequestsPerMinute {
		return false, maxDuration(0, l.minute[0].Add(time.Minute).Sub(now))
	}
	if len(l.hour) > 0 {
		return false, maxDuration(0, l.hour[0].Add(time.Hour).Sub(now))
	}
	return false, pollInterval
}

// Admit blocks until the caller may issue one request under both windows,
// recording the admission as a side effect. The lock covers only the
// check-and-record step; waiting happens outside it so concurrent callers
// can re-check independently. Admission order between concurrent callers
// is unspecified.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		ok, wait := l.tryAdmit()
		if ok {
			return nil
		}
		if l.OnWait != nil {
			l.OnWait(wait)
		}
		if err := l.sleep(ctx, wait+admitBuffer); err != nil {
			return err
		}
	}
}

// Do runs op behind the admission gate, retrying rate-limited failures with
// a doubling delay capped at 60s. Every retry re-enters Admit. Failures that
// are not rate-limited, and rate-limited failures once MaxRetries is spent,
// propagate unchanged.
func (l *Limiter) Do(ctx context.Context, op func() error) error {
	delay := l.cfg.InitialRetryDelay
	for attempt := 0; ; attempt++ {
		if err := l.Admit(ctx); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) || attempt >= l.cfg.MaxRetries {
			return err
		}
		if l.OnRetry != nil {
			l.OnRetry(attempt+1, delay)
		}
		if serr := l.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay = minDuration(delay*2, maxRetryDelay)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
