// Copyright (c) 2022 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package reliability orchestrates retry, disk fallback, health, and
// metrics around a LogSender, direct generalizations of
// reliability/retry.rs and reliability/disk.rs from the original
// forwarder.
package reliability

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Strategy selects how RetryController computes a backoff delay.
type Strategy int

const (
	ExponentialBackoff Strategy = iota
	LinearBackoff
	FixedDelay
)

// RetryConfig configures a RetryController.
type RetryConfig struct {
	MaxAttempts uint32
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy
	Jitter      bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    60 * time.Second,
		Strategy:    ExponentialBackoff,
		Jitter:      true,
	}
}

type retryState struct {
	attemptCount  uint32
	firstAttempt  time.Time
	lastAttempt   time.Time
	nextRetryTime time.Time
}

// RetryController tracks per-batch retry bookkeeping keyed by batch id.
type RetryController struct {
	cfg RetryConfig
	mu  sync.Mutex
	st  map[string]*retryState
}

func NewRetryController(cfg RetryConfig) *RetryController {
	return &RetryController{cfg: cfg, st: make(map[string]*retryState)}
}

// StartRetry begins tracking a batch id at attempt zero.
func (r *RetryController) StartRetry(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st[batchID] = &retryState{firstAttempt: time.Now()}
}

// IncrementAttempt records a failed attempt and computes the next retry
// time, if any attempts remain.
func (r *RetryController) IncrementAttempt(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.st[batchID]
	if !ok {
		state = &retryState{firstAttempt: time.Now()}
		r.st[batchID] = state
	}
	state.attemptCount++
	state.lastAttempt = time.Now()
	if state.attemptCount < r.cfg.MaxAttempts {
		state.nextRetryTime = time.Now().Add(r.calculateDelay(state.attemptCount))
	} else {
		state.nextRetryTime = time.Time{}
	}
}

// ShouldGiveUp reports whether batchID has exhausted its retry budget. A
// batch with no tracked state is treated as already given up, matching
// the original's unwrap_or(true).
func (r *RetryController) ShouldGiveUp(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.st[batchID]
	if !ok {
		return true
	}
	return state.attemptCount >= r.cfg.MaxAttempts
}

// AttemptCount returns the number of failed attempts recorded so far.
func (r *RetryController) AttemptCount(batchID string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.st[batchID]; ok {
		return state.attemptCount
	}
	return 0
}

// IsReadyForRetry reports whether batchID's computed backoff has elapsed.
func (r *RetryController) IsReadyForRetry(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.st[batchID]
	if !ok || state.nextRetryTime.IsZero() {
		return false
	}
	return !time.Now().Before(state.nextRetryTime)
}

// CalculateDelay computes the backoff for a given attempt number under
// the controller's configured strategy, capped at MaxDelay and jittered
// uniformly in [0.5, 1.5] if enabled.
func (r *RetryController) CalculateDelay(attempt uint32) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calculateDelay(attempt)
}

func (r *RetryController) calculateDelay(attempt uint32) time.Duration {
	var base time.Duration
	switch r.cfg.Strategy {
	case ExponentialBackoff:
		base = r.cfg.MaxDelay
		if attempt < 63 {
			multiplier := time.Duration(1) << attempt
			if r.cfg.BaseDelay <= r.cfg.MaxDelay/multiplier {
				base = r.cfg.BaseDelay * multiplier
			}
		}
	case LinearBackoff:
		base = r.cfg.BaseDelay * time.Duration(attempt+1)
	default:
		base = r.cfg.BaseDelay
	}

	if base > r.cfg.MaxDelay {
		base = r.cfg.MaxDelay
	}
	if !r.cfg.Jitter {
		return base
	}
	factor := 0.5 + rand.Float64()
	jittered := time.Duration(math.Round(float64(base) * factor))
	return jittered
}

// RemoveRetry drops all bookkeeping for batchID, called once a batch has
// either succeeded or been handed off to disk fallback.
func (r *RetryController) RemoveRetry(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.st, batchID)
}

// PendingRetries returns batch ids whose backoff has elapsed and which
// have not yet exhausted their retry budget.
func (r *RetryController) PendingRetries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []string
	for id, state := range r.st {
		if state.attemptCount >= r.cfg.MaxAttempts {
			continue
		}
		if state.nextRetryTime.IsZero() || now.Before(state.nextRetryTime) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// CleanupOldRetries drops tracked state whose first attempt is older
// than maxAge.
func (r *RetryController) CleanupOldRetries(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, state := range r.st {
		if now.Sub(state.firstAttempt) > maxAge {
			delete(r.st, id)
		}
	}
}
