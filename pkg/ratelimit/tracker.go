package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "salesys_rate_limit_remaining",
		Help: "Upstream requests remaining in the current rate limit window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesys_rate_limit_blocks_total",
		Help: "Total number of proxied requests rejected because the upstream budget was exhausted",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesys_rate_limit_throttles_total",
		Help: "Total number of proxied requests delayed because the upstream budget was low",
	})
)

// DefaultThrottleDelay is how long a request waits in the warning range.
const DefaultThrottleDelay = time.Second

// Decision is the result of Allow.
type Decision struct {
	Allowed bool

	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration
}

// Tracker monitors the upstream budget and gates requests.
type Tracker struct {
	store    Store
	logger   zerolog.Logger
	throttle time.Duration
	now      func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		logger:   logger,
		throttle: DefaultThrottleDelay,
		now:      time.Now,
	}
}

// SetThrottleDelay overrides the warning-range delay.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttle = d
}

// State returns the last observed state, or Unknown when nothing was stored.
func (t *Tracker) State(ctx context.Context) (State, error) {
	state, ok, err := t.store.Get(ctx)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return Unknown(t.now()), nil
	}
	return state, nil
}

// Observe records the budget carried by an upstream response. Responses
// without rate limit headers are ignored.
func (t *Tracker) Observe(ctx context.Context, status int, headers http.Header) error {
	now := t.now()
	state, ok, err := ParseHeaders(status, headers, now)
	if err != nil || !ok {
		return err
	}

	if err := t.store.Set(ctx, state); err != nil {
		return err
	}
	remainingGauge.Set(float64(state.Remaining))

	switch {
	case state.NeedsBlock(now):
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit exhausted, requests will be rejected until reset")
	case state.NeedsThrottling(now):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit low, requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit state updated")
	}
	return nil
}

// Allow decides whether a request may go upstream. In the warning range it
// waits for the throttle delay first; the wait ends early if ctx is done.
func (t *Tracker) Allow(ctx context.Context) (Decision, error) {
	state, err := t.State(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	if state.NeedsBlock(now) {
		wait := state.TimeUntilReset(now)
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("retry_after", wait).
			Msg("Upstream rate limit exhausted, rejecting request")
		blocksTotal.Inc()
		return Decision{Allowed: false, RetryAfter: wait}, nil
	}

	if state.NeedsThrottling(now) && t.throttle > 0 {
		throttlesTotal.Inc()
		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}

	return Decision{Allowed: true}, nil
}
