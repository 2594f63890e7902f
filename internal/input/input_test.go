package input

import (
	"context"
	"testing"
	"time"

	"stimrun/internal/clock"
)

var epoch = time.Date(2023, 7, 27, 19, 4, 0, 0, time.UTC)

func TestGetKeysFiltersAndMeasuresRT(t *testing.T) {
	src := clock.NewVirtual(epoch)
	hub := NewHub()
	kb := NewKeyboard(hub, src)

	hub.Push("Space", epoch.Add(400*time.Millisecond))
	hub.Push("q", epoch.Add(500*time.Millisecond))
	hub.Push("space", epoch.Add(900*time.Millisecond))

	keys := kb.GetKeys([]string{"space"})
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %+v", len(keys), keys)
	}
	if keys[0].Name != "space" || keys[0].RT != 400*time.Millisecond {
		t.Fatalf("first key = %+v", keys[0])
	}
	if keys[1].RT != 900*time.Millisecond {
		t.Fatalf("second key = %+v", keys[1])
	}
	if hub.Len() != 1 {
		t.Fatalf("non-matching key should stay buffered, len = %d", hub.Len())
	}
	if again := kb.GetKeys([]string{"space"}); again != nil {
		t.Fatalf("keys returned twice: %+v", again)
	}
}

func TestClockResetRebasesRT(t *testing.T) {
	src := clock.NewVirtual(epoch)
	hub := NewHub()
	kb := NewKeyboard(hub, src)

	src.Advance(time.Second)
	kb.Clock.Reset()
	hub.Push("p", epoch.Add(1250*time.Millisecond))
	keys := kb.GetKeys(nil)
	if len(keys) != 1 || keys[0].RT != 250*time.Millisecond {
		t.Fatalf("keys = %+v", keys)
	}
}

func TestClearEventsDropsEverything(t *testing.T) {
	hub := NewHub()
	kb := NewKeyboard(hub, clock.NewVirtual(epoch))
	hub.Push("space", epoch)
	hub.Push("escape", epoch)
	kb.ClearEvents()
	if hub.Len() != 0 {
		t.Fatalf("len = %d after clear", hub.Len())
	}
}

func TestAbortSources(t *testing.T) {
	hub := NewHub()
	kb := NewKeyboard(hub, clock.NewVirtual(epoch))
	esc := NewEscapeKey(kb)
	flag := &Flag{}
	ctx, cancel := context.WithCancel(context.Background())
	all := AnyOf(esc, flag, Context(ctx), nil)

	if all.Aborted() {
		t.Fatal("nothing requested an abort yet")
	}
	hub.Push("space", epoch)
	if esc.Aborted() {
		t.Fatal("space must not abort")
	}
	hub.Push("escape", epoch)
	if !all.Aborted() {
		t.Fatal("escape should abort")
	}

	flag.Request("console")
	if !flag.Aborted() || flag.Reason() != "console" {
		t.Fatalf("flag = %v %q", flag.Aborted(), flag.Reason())
	}

	cancel()
	if !Context(ctx).Aborted() {
		t.Fatal("cancelled context should abort")
	}
}

func TestScriptDeliversByTimeAndFrame(t *testing.T) {
	hub := NewHub()
	s := NewScript(hub).
		At(epoch.Add(25*time.Millisecond), "space").
		OnFrame(3, "p")

	s.Deliver(0, epoch)
	s.Deliver(1, epoch.Add(16*time.Millisecond))
	if hub.Len() != 0 {
		t.Fatalf("delivered too early: %d", hub.Len())
	}
	s.Deliver(2, epoch.Add(33*time.Millisecond))
	evs := hub.Take(nil)
	if len(evs) != 1 || evs[0].Name != "space" || !evs[0].At.Equal(epoch.Add(25*time.Millisecond)) {
		t.Fatalf("events = %+v", evs)
	}
	s.Deliver(3, epoch.Add(50*time.Millisecond))
	evs = hub.Take(nil)
	if len(evs) != 1 || evs[0].Name != "p" || !evs[0].At.Equal(epoch.Add(50*time.Millisecond)) {
		t.Fatalf("events = %+v", evs)
	}
	if s.Remaining() != 0 {
		t.Fatalf("remaining = %d", s.Remaining())
	}
}

func TestPilotPressesRoundRobin(t *testing.T) {
	hub := NewHub()
	p := NewPilot(hub, []string{"space", "p"}, 100*time.Millisecond)
	for i := 0; i <= 30; i++ {
		p.Deliver(i, epoch.Add(time.Duration(i)*10*time.Millisecond))
	}
	evs := hub.Take(nil)
	if len(evs) != 3 {
		t.Fatalf("got %d presses, want 3: %+v", len(evs), evs)
	}
	if evs[0].Name != "space" || evs[1].Name != "p" || evs[2].Name != "space" {
		t.Fatalf("presses = %+v", evs)
	}
}
