package fsm_test

import (
	"testing"

	"github.com/sabouaram/socks5d/internal/fsm"
)

const (
	stateA fsm.State = iota
	stateB
	stateDone
)

func TestSelfTransitionSkipsArrivalDeparture(t *testing.T) {
	var arrivals, departures int

	m := fsm.New(stateA, []fsm.Definition{
		{
			State: int(stateA),
			OnArrival: func(prev fsm.State, k *fsm.Key) {
				arrivals++
			},
			OnDeparture: func(next fsm.State, k *fsm.Key) {
				departures++
			},
			OnReadReady: func(k *fsm.Key) fsm.State {
				return stateA // self-transition
			},
		},
		{State: int(stateB)},
	})

	m.HandleRead(nil)
	m.HandleRead(nil)

	if arrivals != 0 || departures != 0 {
		t.Fatalf("self-transition ran arrival/departure: arrivals=%d departures=%d", arrivals, departures)
	}
	if m.Current() != stateA {
		t.Fatalf("Current() = %v, want stateA", m.Current())
	}
}

func TestTransitionRunsDepartureThenArrival(t *testing.T) {
	var order []string

	m := fsm.New(stateA, []fsm.Definition{
		{
			State: int(stateA),
			OnDeparture: func(next fsm.State, k *fsm.Key) {
				order = append(order, "departA")
			},
			OnReadReady: func(k *fsm.Key) fsm.State {
				return stateB
			},
		},
		{
			State: int(stateB),
			OnArrival: func(prev fsm.State, k *fsm.Key) {
				order = append(order, "arriveB")
			},
		},
	})

	m.HandleRead(nil)

	if len(order) != 2 || order[0] != "departA" || order[1] != "arriveB" {
		t.Fatalf("order = %v, want [departA arriveB]", order)
	}
	if m.Current() != stateB {
		t.Fatalf("Current() = %v, want stateB", m.Current())
	}
}

func TestBlockReadyTransitions(t *testing.T) {
	m := fsm.New(stateA, []fsm.Definition{
		{
			State: int(stateA),
			OnBlockReady: func(k *fsm.Key) fsm.State {
				return stateDone
			},
		},
		{State: int(stateDone)},
	})

	m.HandleBlock(nil)

	if m.Current() != stateDone {
		t.Fatalf("Current() = %v, want stateDone", m.Current())
	}
}

func TestEnterRunsInitialArrival(t *testing.T) {
	var entered bool
	m := fsm.New(stateA, []fsm.Definition{
		{
			State: int(stateA),
			OnArrival: func(prev fsm.State, k *fsm.Key) {
				entered = true
			},
		},
	})
	m.Enter(nil)
	if !entered {
		t.Fatalf("Enter() did not run the initial state's OnArrival")
	}
}
