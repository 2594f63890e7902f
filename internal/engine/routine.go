package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/input"
	"stimrun/internal/log"
)

// ErrAborted 用户中止（退出键/控制台/ctx 取消），是终止信号而不是可恢复的错误
var ErrAborted = errors.New("experiment aborted")

// Routine 实验的一个阶段
type Routine struct {
	Name       string
	Components []Component
	// MaxDuration > 0 表示固定时长例程，自然结束时按 non-slip 方式回拨例程时钟
	MaxDuration time.Duration
}

// Result 一次例程运行的结果
type Result struct {
	Frames     int
	ForceEnded bool
	Elapsed    time.Duration
}

// Observer 每帧回调，供进度监控使用
type Observer func(routine string, frame int)

// Runner 单线程、协作式的例程主循环
type Runner struct {
	presenter Presenter
	clock     *clock.Clock
	abort     input.AbortSource
	tol       time.Duration
	logger    *log.Logger
	data      Recorder
	observer  Observer

	// gen 每次 Run 结束加一；上一个例程留下、没等到 flip 的回调作废
	gen int
}

type Option func(*Runner)

func WithTolerance(tol time.Duration) Option {
	return func(r *Runner) { r.tol = tol }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRecorder flip 时间戳写入的数据处理器
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.data = rec }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner routineClock 是跨例程共享的 non-slip 例程时钟
func NewRunner(p Presenter, routineClock *clock.Clock, abort input.AbortSource, opts ...Option) *Runner {
	r := &Runner{
		presenter: p,
		clock:     routineClock,
		abort:     abort,
		tol:       DefaultTolerance,
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Clock() *clock.Clock { return r.clock }

func (r *Runner) Presenter() Presenter { return r.presenter }

// Run 逐帧执行例程直到全部组件 FINISHED、被强制结束或超出固定时长。
// 中止时立即返回 ErrAborted，不做任何收尾。
func (r *Runner) Run(ctx context.Context, rt *Routine) (Result, error) {
	for _, c := range rt.Components {
		c.Reset()
	}
	r.logger.Debugf("例程 %s 开始, 组件 %d 个", rt.Name, len(rt.Components))

	begin := r.clock.Elapsed()
	f := &Frame{N: -1, presenter: r.presenter}
	forced := false

	for {
		if rt.MaxDuration > 0 && r.clock.Elapsed() >= rt.MaxDuration {
			break
		}
		f.N++
		f.forceEnd = false
		f.T = r.clock.Elapsed()
		f.FlipT = r.presenter.FlipTime(r.clock)
		f.FlipGlobal = r.presenter.FlipTime(nil)

		for _, c := range rt.Components {
			r.step(c, f)
		}
		if r.observer != nil {
			r.observer(rt.Name, f.N)
		}

		if r.aborted(ctx) {
			r.logger.Warnf("例程 %s 第 %d 帧收到中止信号", rt.Name, f.N)
			return Result{Frames: f.N + 1, ForceEnded: true}, fmt.Errorf("%w (routine %s, frame %d)", ErrAborted, rt.Name, f.N)
		}
		if f.forceEnd {
			forced = true
			break
		}
		if allFinished(rt.Components) {
			break
		}
		if err := r.presenter.Flip(); err != nil {
			return Result{Frames: f.N + 1}, fmt.Errorf("例程 %s: %w", rt.Name, err)
		}
	}

	if forced {
		for _, c := range rt.Components {
			if c.Base().Status == Started {
				r.finish(c, f)
			}
		}
	}
	for _, c := range rt.Components {
		c.Disable(r.presenter)
		if fz, ok := c.(interface{ Finalize() }); ok {
			fz.Finalize()
		}
	}

	r.gen++
	res := Result{Frames: f.N + 1, ForceEnded: forced, Elapsed: r.clock.Elapsed() - begin}
	if !forced && rt.MaxDuration > 0 {
		r.clock.AddTime(-rt.MaxDuration)
	} else {
		r.clock.Reset()
	}
	r.logger.Debugf("例程 %s 结束: 帧数=%d 强制结束=%v 用时=%v", rt.Name, res.Frames, res.ForceEnded, res.Elapsed)
	return res, nil
}

// step 固定顺序：起始条件 → 更新 → 结束条件
func (r *Runner) step(c Component, f *Frame) {
	b := c.Base()
	if b.shouldStart(f, r.tol) {
		b.FrameStart = f.N
		b.TStart = ptr(f.T)
		b.TStartRefresh = ptr(f.FlipGlobal)
		r.onNextFlip(func() {
			b.TStartRefresh = ptr(r.presenter.LastFlipTime(nil))
		})
		b.Status = Started
		c.Start(f)
		if b.Timestamp && r.data != nil {
			key := b.Name + ".started"
			r.onNextFlip(func() {
				r.data.AddData(key, r.presenter.LastFlipTime(nil).Seconds())
			})
		}
	}
	if b.Status == Started {
		c.Update(f)
	}
	if b.shouldStop(f, r.tol) {
		r.finish(c, f)
		// 消失发生在下一次 flip；例程可能不再 flip，所以直接记预测值
		if b.Timestamp && r.data != nil {
			r.data.AddData(b.Name+".stopped", f.FlipGlobal.Seconds())
		}
	}
}

func (r *Runner) onNextFlip(fn func()) {
	gen := r.gen
	r.presenter.OnNextFlip(func() {
		if r.gen == gen {
			fn()
		}
	})
}

func (r *Runner) finish(c Component, f *Frame) {
	b := c.Base()
	b.FrameStop = f.N
	b.TStop = ptr(f.T)
	b.TStopRefresh = ptr(f.FlipGlobal)
	b.Status = Finished
	c.Stop(f)
}

func (r *Runner) aborted(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return r.abort != nil && r.abort.Aborted()
}

func allFinished(cs []Component) bool {
	for _, c := range cs {
		if c.Base().Status != Finished {
			return false
		}
	}
	return true
}

// Tally 由拥有它的那一层循环创建和重置的累计正确数
type Tally struct {
	Correct int
	Trials  int
}

func (t *Tally) Add(corr int) {
	t.Trials++
	if corr == 1 {
		t.Correct++
	}
}

func (t *Tally) Reset() {
	t.Correct, t.Trials = 0, 0
}

// Rate 正确率；没有试次时为 0
func (t *Tally) Rate() float64 {
	if t.Trials == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Trials)
}
