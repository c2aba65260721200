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

import "sync/atomic"

// PressureState is MemoryPressure's three-level state, modeled as a typed
// enum with a pure transition function, in the style of the teacher's
// small health-state machines.
type PressureState int32

const (
	None PressureState = iota
	Warning
	Critical
)

// MemoryPressure tracks total accounted allocation against two thresholds.
// Deallocation saturates at zero (spec.md 4.4).
type MemoryPressure struct {
	total     int64
	warningAt int64
	criticalAt int64
}

func NewMemoryPressure(warningAt, criticalAt int64) *MemoryPressure {
	return &MemoryPressure{warningAt: warningAt, criticalAt: criticalAt}
}

// transition is the pure function mapping accounted total to state.
func transition(total, warningAt, criticalAt int64) PressureState {
	switch {
	case total >= criticalAt:
		return Critical
	case total >= warningAt:
		return Warning
	default:
		return None
	}
}

func (m *MemoryPressure) Add(n int) {
	atomic.AddInt64(&m.total, int64(n))
}

// Remove subtracts n from the tracked total, saturating at zero.
func (m *MemoryPressure) Remove(n int) {
	for {
		cur := atomic.LoadInt64(&m.total)
		next := cur - int64(n)
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&m.total, cur, next) {
			return
		}
	}
}

func (m *MemoryPressure) Total() int64 {
	return atomic.LoadInt64(&m.total)
}

func (m *MemoryPressure) State() PressureState {
	return transition(atomic.LoadInt64(&m.total), m.warningAt, m.criticalAt)
}
