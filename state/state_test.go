package state

import "testing"

func TestNew_StartsAtInitial(t *testing.T) {
	m := New()
	if m.Current() != Initial {
		t.Fatalf("Current() = %v, want Initial", m.Current())
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	m := New()
	var seen []State
	m.Observe(func(s State) { seen = append(seen, s) })

	steps := []State{Starting, Online, Stopping, Offline, Starting, Online, Stopping, Offline}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%v) error: %v", s, err)
		}
	}

	if len(seen) != len(steps) {
		t.Fatalf("observer saw %d transitions, want %d", len(seen), len(steps))
	}
	for i, want := range steps {
		if seen[i] != want {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want)
		}
	}
}

func TestTransition_OnlineCanSkipStoppingToOffline(t *testing.T) {
	m := New()
	m.Transition(Starting)
	m.Transition(Online)
	if err := m.Transition(Offline); err != nil {
		t.Fatalf("Online -> Offline should be legal (broker disconnect): %v", err)
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	m := New()
	if err := m.Transition(Online); err == nil {
		t.Fatal("expected error transitioning directly from Initial to Online")
	}
}

func TestObserve_OnlyFutureObserversSeeTransitions(t *testing.T) {
	m := New()
	m.Transition(Starting)

	var seen []State
	m.Observe(func(s State) { seen = append(seen, s) })
	m.Transition(Online)

	if len(seen) != 1 || seen[0] != Online {
		t.Fatalf("seen = %v, want [Online] (no replay of the Starting transition)", seen)
	}
}

func TestString(t *testing.T) {
	cases := map[State]string{Initial: "Initial", Starting: "Starting", Online: "Online", Stopping: "Stopping", Offline: "Offline"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
