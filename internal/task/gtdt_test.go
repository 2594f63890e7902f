package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/conditions"
	"stimrun/internal/engine"
	"stimrun/internal/flip"
	"stimrun/internal/input"
	"stimrun/internal/log"
	"stimrun/internal/record"
)

var epoch = time.Date(2023, 7, 27, 19, 4, 0, 0, time.UTC)

// participant 按例程和帧号决定按什么键
type participant struct {
	src      *clock.Virtual
	hub      *input.Hub
	blocks   int
	respond  func(block int) bool
	abortAt  string
	corrSeen []string
	g        *GTDT
}

func (p *participant) observe(routine string, frame int) {
	now := p.src.Now()
	if routine == p.abortAt && frame == 2 {
		p.hub.Push("escape", now)
		return
	}
	switch routine {
	case "instruction3":
		if frame == 2 {
			p.hub.Push("p", now)
		}
	case "GTDT":
		if frame == 10 && p.respond(p.blocks) {
			p.hub.Push("space", now)
		}
	case "present_corr":
		if frame == 0 {
			p.corrSeen = append(p.corrSeen, p.g.corrText.Text)
		}
		if frame == 2 {
			p.hub.Push("p", now)
		}
	case "practise_end":
		if frame == 2 {
			key := "q"
			if p.blocks > 0 {
				key = "p"
			}
			p.hub.Push(key, now)
			p.blocks++
		}
	}
}

func setup(t *testing.T, p *participant) (*GTDT, *record.Memory, *flip.Virtual) {
	t.Helper()
	src := clock.NewVirtual(epoch)
	p.src = src
	p.hub = input.NewHub()
	global := clock.New(src)
	virt := flip.NewVirtual(src, 60)
	sched := flip.NewScheduler(virt, global, log.Discard())
	mem := &record.Memory{}
	data := record.NewHandler([]record.Field{{Key: "participant", Value: "123456"}}, nil, mem)
	abort := input.NewEscapeKey(input.NewKeyboard(p.hub, src))
	runner := engine.NewRunner(sched, clock.New(src), abort,
		engine.WithRecorder(data), engine.WithObserver(p.observe))

	rows, err := conditions.ReadCSV(strings.NewReader("asec\n0.5\n1.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(Config{Conditions: rows, Seed: 3}, Env{Runner: runner, Hub: p.hub, Source: src, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	p.g = g
	return g, mem, virt
}

func TestPracticeRepeatsUntilP(t *testing.T) {
	p := &participant{respond: func(block int) bool { return block == 0 }}
	g, mem, _ := setup(t, p)
	if err := g.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	rows := mem.Rows()
	// 每轮 2 个试次行 + 1 个组块行
	if len(rows) != 6 {
		t.Fatalf("records = %d", len(rows))
	}
	var trials []record.Record
	var blocks []record.Record
	for _, r := range rows {
		if _, _, _, ok := r.Score(); ok {
			trials = append(trials, r)
		} else {
			blocks = append(blocks, r)
		}
	}
	if len(trials) != 4 || len(blocks) != 2 {
		t.Fatalf("trials = %d, blocks = %d", len(trials), len(blocks))
	}

	wantCorr := []int{1, 1, 0, 0}
	wantNum := []int{1, 2, 0, 0}
	for i, r := range trials {
		if r.Values["press.corr"] != wantCorr[i] || r.Values["number_correct"] != wantNum[i] {
			t.Fatalf("trial %d = %v", i, r.Values)
		}
		if r.Values["participant"] != "123456" {
			t.Fatalf("trial %d missing extra info", i)
		}
		if _, ok := r.Get("trials.thisN"); !ok {
			t.Fatalf("trial %d missing loop snapshot", i)
		}
	}
	if _, ok := trials[2].Get("press.rt"); ok {
		t.Fatal("non-response trial should not record rt")
	}
	if trials[2].Values["press.keys"] != nil {
		t.Fatalf("non-response keys = %v", trials[2].Values["press.keys"])
	}

	if blocks[0].Values["key_resp_6.keys"] != "q" || blocks[1].Values["key_resp_6.keys"] != "p" {
		t.Fatalf("practise_end keys = %v / %v", blocks[0].Values["key_resp_6.keys"], blocks[1].Values["key_resp_6.keys"])
	}
	if blocks[1].Values["practise_back.thisN"] != 1 {
		t.Fatalf("practise_back.thisN = %v", blocks[1].Values["practise_back.thisN"])
	}
	if _, ok := blocks[0].Get("trials.thisN"); ok {
		t.Fatal("finished trial loop should not appear in block rows")
	}

	if len(p.corrSeen) != 2 {
		t.Fatalf("present_corr shown %d times", len(p.corrSeen))
	}
	if p.corrSeen[0] != "Your correct rate is (1.00), press 'p' to continue" ||
		p.corrSeen[1] != "Your correct rate is (0.00), press 'p' to continue" {
		t.Fatalf("feedback = %q", p.corrSeen)
	}
}

func TestTrialDurationFollowsConditionRow(t *testing.T) {
	p := &participant{respond: func(int) bool { return false }}
	g, mem, _ := setup(t, p)
	if err := g.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, r := range mem.Rows() {
		if _, _, _, ok := r.Score(); !ok {
			continue
		}
		started, _ := r.Values["press.started"].(float64)
		stopped, _ := r.Values["press.stopped"].(float64)
		want := 0.5
		if r.Values["asec"] == "1.0" {
			want = 1.0
		}
		if d := stopped - started; d < want-0.02 || d > want+0.02 {
			t.Fatalf("press lasted %.3fs, want %.1fs (row %v)", d, want, r.Values)
		}
	}
}

func TestEscapeAbortsWithoutFinishingRow(t *testing.T) {
	p := &participant{respond: func(int) bool { return true }, abortAt: "GTDT"}
	g, mem, _ := setup(t, p)
	err := g.Run(context.Background())
	if !errors.Is(err, engine.ErrAborted) {
		t.Fatalf("err = %v", err)
	}
	if len(mem.Rows()) != 0 {
		t.Fatalf("aborted trial should not produce a record, got %d", len(mem.Rows()))
	}
}

func TestNewRejectsBadConditions(t *testing.T) {
	rows, _ := conditions.ReadCSV(strings.NewReader("duration\n1\n"))
	_, err := New(Config{Conditions: rows}, Env{})
	if !errors.Is(err, conditions.ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(Config{}, Env{}); !errors.Is(err, conditions.ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRejectsNonPositiveDuration(t *testing.T) {
	for _, table := range []string{"asec\n1.0\n0\n", "asec\n-0.5\n"} {
		rows, err := conditions.ReadCSV(strings.NewReader(table))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := New(Config{Conditions: rows}, Env{}); !errors.Is(err, conditions.ErrMalformed) {
			t.Fatalf("%q: err = %v", table, err)
		}
	}
}
