package loop

import (
	"context"
	"errors"
	"sort"
	"testing"

	"stimrun/internal/conditions"
	"stimrun/internal/engine"
	"stimrun/internal/record"
)

func rows(vals ...string) []conditions.Row {
	out := make([]conditions.Row, len(vals))
	for i, v := range vals {
		out[i] = conditions.NewRow([]string{"asec"}, []string{v})
	}
	return out
}

func TestSequentialProducesOneRecordPerRow(t *testing.T) {
	l := New("trials", 1, Sequential, rows("0.5", "1.0", "1.5"), 1)
	mem := &record.Memory{}
	h := record.NewHandler(nil, nil, mem)
	h.AddLoop(l)

	if l.NTotal() != 3 {
		t.Fatalf("NTotal = %d", l.NTotal())
	}
	if l.First().String("asec") != "0.5" {
		t.Fatalf("First = %v", l.First())
	}
	counter := 0
	err := l.Run(context.Background(), func(ctx context.Context, it *Iteration) error {
		counter++
		h.AddData("counter", counter)
		return h.NextEntry()
	})
	if err != nil {
		t.Fatal(err)
	}
	got := mem.Rows()
	if len(got) != 3 {
		t.Fatalf("records = %d", len(got))
	}
	for i, r := range got {
		if r.Values["counter"] != i+1 || r.Values["trials.thisN"] != i || r.Values["trials.thisIndex"] != i {
			t.Fatalf("row %d = %v", i, r.Values)
		}
	}
	if got[2].Values["asec"] != "1.5" {
		t.Fatalf("asec = %v", got[2].Values["asec"])
	}
}

func TestForeverStopsOnFinish(t *testing.T) {
	l := New("practise_back", Forever, Sequential, nil, 1)
	if l.NTotal() != Forever {
		t.Fatalf("NTotal = %d", l.NTotal())
	}
	keys := []string{"q", "q", "p", "q"}
	var seen []int
	err := l.Run(context.Background(), func(ctx context.Context, it *Iteration) error {
		seen = append(seen, it.RepN)
		if !it.Row.IsZero() {
			t.Fatal("loop without conditions should yield placeholder rows")
		}
		if keys[it.N] == "p" {
			it.Loop.Finish()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Fatalf("iterations = %v", seen)
	}
	if !l.Finished() {
		t.Fatal("loop should report finished")
	}
}

func TestFullRandomIsAPermutationPerRepeat(t *testing.T) {
	l := New("trials", 2, FullRandom, rows("a", "b", "c", "d"), 42)
	var idx []int
	_ = l.Run(context.Background(), func(ctx context.Context, it *Iteration) error {
		idx = append(idx, it.Index)
		if it.TrialN != it.N%4 || it.RepN != it.N/4 {
			t.Fatalf("position = %+v", it)
		}
		return nil
	})
	if len(idx) != 8 {
		t.Fatalf("iterations = %d", len(idx))
	}
	sort.Ints(idx)
	want := []int{0, 0, 1, 1, 2, 2, 3, 3}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("indices = %v", idx)
		}
	}
}

func TestRandomIsSeeded(t *testing.T) {
	collect := func() []int {
		var idx []int
		l := New("trials", 3, Random, rows("a", "b", "c", "d", "e"), 7)
		_ = l.Run(context.Background(), func(ctx context.Context, it *Iteration) error {
			idx = append(idx, it.Index)
			return nil
		})
		return idx
	}
	a, b := collect(), collect()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed gave %v and %v", a, b)
		}
	}
	// 每一轮各行恰好一次
	for rep := 0; rep < 3; rep++ {
		seen := map[int]bool{}
		for _, v := range a[rep*5 : rep*5+5] {
			seen[v] = true
		}
		if len(seen) != 5 {
			t.Fatalf("rep %d = %v", rep, a[rep*5:rep*5+5])
		}
	}
}

func TestBodyErrorStopsLoop(t *testing.T) {
	boom := errors.New("boom")
	l := New("trials", 5, Sequential, nil, 1)
	n := 0
	err := l.Run(context.Background(), func(ctx context.Context, it *Iteration) error {
		n++
		if it.N == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || n != 2 {
		t.Fatalf("err = %v, n = %d", err, n)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New("trials", 1, Sequential, rows("a"), 1)
	if err := l.Run(ctx, func(context.Context, *Iteration) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelBetweenIterationsAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New("trials", 1, Sequential, rows("a", "b", "c"), 1)
	calls := 0
	err := l.Run(ctx, func(context.Context, *Iteration) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, engine.ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"": Sequential, "random": Random, "fullRandom": FullRandom} {
		if got, err := ParseMethod(in); err != nil || got != want {
			t.Fatalf("ParseMethod(%q) = %v %v", in, got, err)
		}
	}
	if _, err := ParseMethod("shuffle"); err == nil {
		t.Fatal("expected error")
	}
}
