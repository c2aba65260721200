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

package buffer

import (
	"errors"
	"sync"
	"time"

	"github.com/rask-sh/rask-pipeline/internal/logger"
)

var (
	// ErrLockTimeout is returned when a guarded lock couldn't be acquired
	// within the configured timeout.
	ErrLockTimeout = errors.New("buffer: lock timeout")
	// ErrMutexPoisoned is never returned to callers -- Go mutexes can't
	// poison, so GuardedMutex auto-recovers instead, per DESIGN.md's
	// resolution of the poison-recovery open question. It's kept as a
	// named sentinel for log messages only.
	ErrMutexPoisoned = errors.New("buffer: mutex poisoned")
)

// GuardedMutex is a timeout-bounded mutex that recovers from a panic while
// held, the closest Go-idiomatic analogue to Rust's poisoned-mutex
// recovery: log the panic and release the lock rather than leaving every
// future caller blocked forever.
type GuardedMutex struct {
	mu sync.Mutex
}

func NewGuardedMutex() *GuardedMutex {
	return &GuardedMutex{}
}

// WithLock runs fn while holding the lock, acquired within timeout. If fn
// panics, the panic is logged (mirroring Rust's mutex poisoning) and the
// lock is still released; the panic is not re-raised to the caller. If the
// lock isn't acquired before timeout, fn never runs and ErrLockTimeout is
// returned; the lock is still released once it's eventually acquired, so a
// slow-but-live holder never deadlocks future callers.
func (g *GuardedMutex) WithLock(timeout time.Duration, fn func()) error {
	lockCh := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(lockCh)
	}()

	select {
	case <-lockCh:
		defer g.mu.Unlock()
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Noticef("%v: recovered panic under guarded lock: %v", ErrMutexPoisoned, r)
				}
			}()
			fn()
		}()
		return nil
	case <-time.After(timeout):
		// The lock wasn't ours in time. Whoever holds it is still alive and
		// will eventually finish; once our queued attempt finally acquires
		// it, release it immediately without running fn, so a live-but-slow
		// holder can never deadlock a later caller.
		go func() {
			<-lockCh
			g.mu.Unlock()
		}()
		return ErrLockTimeout
	}
}
