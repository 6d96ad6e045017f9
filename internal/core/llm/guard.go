package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/markdave123-py/docqa/internal/core"
)

// GuardConfig tunes how provider calls are bounded.
//
// Timeout:    deadline of a single attempt.
// MaxRetries: extra attempts after the first, transient failures only.
// RPM:        requests per minute allowed through the limiter (0 = unlimited).
// Backoff:    base delay, doubled after every failed attempt.
type GuardConfig struct {
	Name       string
	Timeout    time.Duration
	MaxRetries int
	RPM        int
	Backoff    time.Duration
}

// Guard wraps calls to an external model provider with a per-attempt timeout,
// bounded retries, a rate limiter and a circuit breaker.
type Guard struct {
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Name == "" {
		cfg.Name = "provider"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.RPM > 0 {
		burst := max(cfg.RPM/10, 1)
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Guard{cfg: cfg, limiter: limiter, breaker: breaker}
}

// Do runs fn under the guard. fn receives a context carrying the attempt deadline
// and must honour it. An attempt that runs out of time yields core.ErrProviderTimeout.
// A nil Guard calls fn directly.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	var lastErr error
	delay := g.cfg.Backoff
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, g.attempt(ctx, fn)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s unavailable: %w", g.cfg.Name, err)
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) {
			return err
		}
		log.Printf("%s: attempt %d/%d failed: %v", g.cfg.Name, attempt+1, g.cfg.MaxRetries+1, err)
	}
	return lastErr
}

func (g *Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	err := fn(actx)
	if err == nil {
		return nil
	}
	// Only our own attempt deadline counts as a provider timeout; a cancelled
	// caller context is returned as-is.
	if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", g.cfg.Name, g.cfg.Timeout, core.ErrProviderTimeout)
	}
	return err
}

// isTransient reports whether a failed attempt is worth repeating.
func isTransient(err error) bool {
	if errors.Is(err, core.ErrProviderTimeout) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}
