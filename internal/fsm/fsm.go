/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package fsm is a generic state-machine runtime shared by the SOCKS
// connection engine and the management-plane connections. A state is a
// small integer; a Definition carries the callbacks invoked on arrival,
// on read/write readiness, and on block completion. Returning the current
// state from a callback is a self-transition: no arrival/departure runs.
package fsm

// State identifies a state by a small integer, the way the reference
// state machine keys its table by an enum.
type State int

// Definition is the set of callbacks associated with one State. Any
// callback may be nil, in which case that event is a no-op for that
// state (equivalent to a self-transition).
type Definition struct {
	State int

	// OnArrival runs once when the machine transitions into this state,
	// after OnDeparture of the previous state.
	OnArrival func(prev State, k *Key)

	// OnReadReady runs when the key's fd is readable and returns the
	// next state (equal to the current state for a self-transition).
	OnReadReady func(k *Key) State

	// OnWriteReady runs when the key's fd is writable.
	OnWriteReady func(k *Key) State

	// OnBlockReady runs when an off-thread job posted against this fd
	// has completed (see ioselect.NotifyBlock).
	OnBlockReady func(k *Key) State

	// OnDeparture runs once, right before the machine leaves this state
	// for a different one.
	OnDeparture func(next State, k *Key)
}

// Key is the context callbacks receive; ioselect fills in the fd,
// user data, and a handle back to the selector so a callback may
// re-arm interests or unregister peer descriptors. The field is
// deliberately an opaque any so this package has no import-time
// dependency on ioselect (fsm is the lower-level, leaf component).
type Key struct {
	Selector any
	FD       int
	UserData any
}

// Machine drives a table of Definitions. The zero value is not usable;
// construct with New.
type Machine struct {
	states  map[State]*Definition
	current State
	initial State
}

// New builds a Machine over the given definitions, starting at initial.
// It panics if initial is not present in defs — a configuration error the
// caller should catch at startup, not at runtime.
func New(initial State, defs []Definition) *Machine {
	m := &Machine{
		states:  make(map[State]*Definition, len(defs)),
		current: initial,
		initial: initial,
	}
	for i := range defs {
		d := defs[i]
		m.states[State(d.State)] = &d
	}
	if _, ok := m.states[initial]; !ok {
		panic("fsm: initial state has no definition")
	}
	return m
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

func (m *Machine) def(s State) *Definition {
	d, ok := m.states[s]
	if !ok {
		panic("fsm: transition into state with no definition")
	}
	return d
}

// transition moves the machine to next if it differs from the current
// state, running departure/arrival in between. A self-transition
// (next == current) is a deliberate no-op, per the runtime contract.
func (m *Machine) transition(next State, k *Key) {
	if next == m.current {
		return
	}
	prev := m.current
	if cb := m.def(prev).OnDeparture; cb != nil {
		cb(next, k)
	}
	m.current = next
	if cb := m.def(next).OnArrival; cb != nil {
		cb(prev, k)
	}
}

// HandleRead invokes the current state's OnReadReady and applies the
// returned transition.
func (m *Machine) HandleRead(k *Key) {
	cb := m.def(m.current).OnReadReady
	if cb == nil {
		return
	}
	m.transition(cb(k), k)
}

// HandleWrite invokes the current state's OnWriteReady and applies the
// returned transition.
func (m *Machine) HandleWrite(k *Key) {
	cb := m.def(m.current).OnWriteReady
	if cb == nil {
		return
	}
	m.transition(cb(k), k)
}

// HandleBlock invokes the current state's OnBlockReady and applies the
// returned transition.
func (m *Machine) HandleBlock(k *Key) {
	cb := m.def(m.current).OnBlockReady
	if cb == nil {
		return
	}
	m.transition(cb(k), k)
}

// Enter forces the machine into a state from outside a callback — used
// once, right after construction, to run the initial state's arrival
// hook (the reference runtime does this implicitly at stm_init).
func (m *Machine) Enter(k *Key) {
	if cb := m.def(m.current).OnArrival; cb != nil {
		cb(m.current, k)
	}
}
