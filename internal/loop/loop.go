// Package loop 试次循环/组块循环：按条件表和重复次数迭代，循环体可以随时 Finish。
package loop

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"stimrun/internal/conditions"
	"stimrun/internal/engine"
	"stimrun/internal/record"
)

// Forever 重复直到循环体调用 Finish
const Forever = -1

type Method int

const (
	Sequential Method = iota
	// Random 每一轮内部打乱
	Random
	// FullRandom 所有轮的所有行一起打乱
	FullRandom
)

func (m Method) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Random:
		return "random"
	case FullRandom:
		return "fullRandom"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return Sequential, nil
	case "random":
		return Random, nil
	case "fullrandom":
		return FullRandom, nil
	}
	return 0, fmt.Errorf("未知的循环方式 %q", s)
}

// Iteration 当前迭代的位置和条件行
type Iteration struct {
	Loop   *Loop
	N      int
	RepN   int
	TrialN int
	Index  int
	Row    conditions.Row
}

type Loop struct {
	name   string
	nReps  int
	method Method
	rows   []conditions.Row
	rng    *rand.Rand

	finished bool
	cur      Iteration
	started  bool
}

func New(name string, nReps int, method Method, rows []conditions.Row, seed int64) *Loop {
	return &Loop{
		name:   name,
		nReps:  nReps,
		method: method,
		rows:   rows,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Method() Method { return l.method }

// Finish 当前循环体返回后停止
func (l *Loop) Finish() { l.finished = true }

func (l *Loop) Finished() bool { return l.finished }

// NTotal 计划的迭代次数；Forever 时为 -1
func (l *Loop) NTotal() int {
	if l.nReps == Forever {
		return Forever
	}
	return l.nReps * l.width()
}

// First 第一次迭代前就可以读到的条件行，用于初始化刺激
func (l *Loop) First() conditions.Row {
	if len(l.rows) == 0 {
		return conditions.Row{}
	}
	return l.rows[0]
}

// Current 最近一次迭代；循环开始前为零值
func (l *Loop) Current() Iteration { return l.cur }

func (l *Loop) width() int {
	if len(l.rows) == 0 {
		return 1
	}
	return len(l.rows)
}

// Run 逐次调用 body；body 返回错误时立即停止并原样返回。
// 两次迭代之间 ctx 被取消按中止处理，返回包裹 engine.ErrAborted 的错误
func (l *Loop) Run(ctx context.Context, body func(ctx context.Context, it *Iteration) error) error {
	l.finished = false
	l.started = false
	n := 0
	var full []int
	if l.method == FullRandom && l.nReps != Forever {
		full = l.perm(l.nReps * l.width())
	}
	for rep := 0; l.nReps == Forever || rep < l.nReps; rep++ {
		order := l.order(rep, full)
		for trialN, idx := range order {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w (loop %s): %w", engine.ErrAborted, l.name, err)
			}
			l.cur = Iteration{Loop: l, N: n, RepN: rep, TrialN: trialN, Index: idx, Row: l.row(idx)}
			l.started = true
			it := l.cur
			if err := body(ctx, &it); err != nil {
				return err
			}
			n++
			if l.finished {
				return nil
			}
		}
	}
	return nil
}

// order 第 rep 轮的行下标
func (l *Loop) order(rep int, full []int) []int {
	w := l.width()
	switch {
	case full != nil:
		idx := make([]int, w)
		for i := range idx {
			idx[i] = full[rep*w+i] % w
		}
		return idx
	case l.method == Sequential:
		idx := make([]int, w)
		for i := range idx {
			idx[i] = i
		}
		return idx
	default:
		// Forever 下 FullRandom 没有总长度，退化为每轮打乱
		return l.perm(w)
	}
}

func (l *Loop) perm(n int) []int { return l.rng.Perm(n) }

func (l *Loop) row(idx int) conditions.Row {
	if len(l.rows) == 0 {
		return conditions.Row{}
	}
	return l.rows[idx]
}

// Snapshot 数据处理器每行记录的循环状态
func (l *Loop) Snapshot() []record.Field {
	if !l.started {
		return nil
	}
	fs := []record.Field{
		{Key: l.name + ".thisRepN", Value: l.cur.RepN},
		{Key: l.name + ".thisTrialN", Value: l.cur.TrialN},
		{Key: l.name + ".thisN", Value: l.cur.N},
		{Key: l.name + ".thisIndex", Value: l.cur.Index},
	}
	for _, c := range l.cur.Row.Columns() {
		fs = append(fs, record.Field{Key: c, Value: l.cur.Row.String(c)})
	}
	return fs
}
