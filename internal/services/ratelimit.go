package services

import (
  "context"
  "sync"
  "time"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
)

const (
  rateLimitWindow = 60 * time.Second
  rateLimitMaxRPM = 10
  rateLimitBuffer = 1 * time.Second
)

// RateLimiter bounds outbound model calls to a fixed number of requests per
// sliding 60s window. Safe for concurrent use.
type RateLimiter struct {
  mu         sync.Mutex
  timestamps []time.Time
  max        int

  now   func() time.Time
  sleep func(ctx context.Context, d time.Duration) error

  log *logger.Logger
}

func NewRateLimiter(log *logger.Logger) *RateLimiter {
  return &RateLimiter{
    max:   rateLimitMaxRPM,
    now:   time.Now,
    sleep: sleepCtx,
    log:   log.With("service", "RateLimiter"),
  }
}

// NewRateLimiterWithClock injects the clock and sleeper. Tests use it to
// drive time without waiting.
func NewRateLimiterWithClock(log *logger.Logger, max int, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *RateLimiter {
  return &RateLimiter{
    max:   max,
    now:   now,
    sleep: sleep,
    log:   log.With("service", "RateLimiter"),
  }
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

// Wait blocks until a slot is free in the window, then claims it. When the
// window is full the wait is the time until the oldest entry leaves the
// window plus a one second buffer.
func (rl *RateLimiter) Wait(ctx context.Context) error {
  for {
    rl.mu.Lock()
    now := rl.now()
    rl.prune(now)
    if len(rl.timestamps) < rl.max {
      rl.timestamps = append(rl.timestamps, now)
      rl.mu.Unlock()
      return nil
    }
    oldest := rl.timestamps[0]
    wait := rateLimitWindow - now.Sub(oldest) + rateLimitBuffer
    rl.mu.Unlock()

    if wait < 0 {
      wait = 0
    }
    rl.log.Debug("rate limit reached, waiting", "wait_ms", wait.Milliseconds())
    if err := rl.sleep(ctx, wait); err != nil {
      return err
    }
  }
}

// Pending reports how many requests currently occupy the window.
func (rl *RateLimiter) Pending() int {
  rl.mu.Lock()
  defer rl.mu.Unlock()
  rl.prune(rl.now())
  return len(rl.timestamps)
}

func (rl *RateLimiter) prune(now time.Time) {
  cutoff := now.Add(-rateLimitWindow)
  i := 0
  for i < len(rl.timestamps) && !rl.timestamps[i].After(cutoff) {
    i++
  }
  if i > 0 {
    rl.timestamps = append(rl.timestamps[:0], rl.timestamps[i:]...)
  }
}
