// Package ratelimit tracks the upstream request budget reported by the
// SaleSys API and gates proxied requests before the budget runs out.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers and the
// Retry-After header sent with 429 responses.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Upstream headers.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for gating decisions.
const (
	// RemainingCritical blocks requests when the remaining budget falls below it.
	RemainingCritical = 2

	// RemainingWarning throttles requests when the remaining budget falls below it.
	RemainingWarning = 10
)

// epochCutoff separates "seconds until reset" from absolute unix timestamps in
// the reset header.
const epochCutoff = 1_000_000_000

// State is the last observed upstream budget. It is shared between proxy
// instances through the Store.
type State struct {
	// Remaining requests in the current window.
	Remaining int `json:"remaining"`

	// Limit is the window size, 0 when the upstream does not report it.
	Limit int `json:"limit,omitempty"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// Unknown is the state assumed before any header was observed.
func Unknown(now time.Time) State {
	return State{Remaining: RemainingWarning * 10, ResetAt: now, LastUpdate: now}
}

// IsStale returns true if the state is older than maxAge.
func (s State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Expired reports whether the window has reset since the state was observed.
func (s State) Expired(now time.Time) bool {
	return !now.Before(s.ResetAt)
}

// NeedsBlock returns true if requests must wait for the window to reset.
func (s State) NeedsBlock(now time.Time) bool {
	return !s.Expired(now) && s.Remaining < RemainingCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s State) NeedsThrottling(now time.Time) bool {
	return !s.Expired(now) && s.Remaining < RemainingWarning && s.Remaining >= RemainingCritical
}

// TimeUntilReset returns the duration until the window resets, 0 if it already has.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ParseHeaders extracts the budget from an upstream response. ok is false when
// the response carries no rate limit information.
func ParseHeaders(status int, h http.Header, now time.Time) (state State, ok bool, err error) {
	if status == http.StatusTooManyRequests {
		wait := time.Duration(0)
		if v := strings.TrimSpace(h.Get(HeaderRetryAfter)); v != "" {
			wait, err = parseRetryAfter(v, now)
			if err != nil {
				return State{}, false, err
			}
		}
		return State{Remaining: 0, ResetAt: now.Add(wait), LastUpdate: now}, true, nil
	}

	remainStr := strings.TrimSpace(h.Get(HeaderRemaining))
	if remainStr == "" {
		return State{}, false, nil
	}
	remain, err := strconv.Atoi(remainStr)
	if err != nil || remain < 0 {
		return State{}, false, fmt.Errorf("parse %s header %q", HeaderRemaining, remainStr)
	}

	resetStr := strings.TrimSpace(h.Get(HeaderReset))
	if resetStr == "" {
		return State{}, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil || reset < 0 {
		return State{}, false, fmt.Errorf("parse %s header %q", HeaderReset, resetStr)
	}

	state = State{Remaining: remain, LastUpdate: now}
	if reset >= epochCutoff {
		state.ResetAt = time.Unix(reset, 0)
	} else {
		state.ResetAt = now.Add(time.Duration(reset) * time.Second)
	}

	if v := strings.TrimSpace(h.Get(HeaderLimit)); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			state.Limit = limit
		}
	}
	return state, true, nil
}

func parseRetryAfter(v string, now time.Time) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s header %q", HeaderRetryAfter, v)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
