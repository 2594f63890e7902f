// Package flip 封装显示器的垂直同步边界：预测下一次 flip 的时刻、
// 在 flip 提交后恰好执行一次的回调，以及自动绘制列表。
package flip

import (
	"context"
	"fmt"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/log"
	"stimrun/internal/stim"
)

// Backend 真正等待刷新并交换缓冲的一方
type Backend interface {
	// Flip 阻塞到刷新边界，返回本帧真正上屏的时刻
	Flip(draw []stim.Stimulus) (time.Time, error)
	RefreshInterval() time.Duration
}

// Scheduler 帧时钟 + flip 调度器
type Scheduler struct {
	backend Backend
	src     clock.Source
	global  *clock.Clock
	logger  *log.Logger

	lastFlip time.Time
	frames   int
	dropped  int

	pending  []func()
	autoDraw []stim.Stimulus
}

func NewScheduler(backend Backend, global *clock.Clock, logger *log.Logger) *Scheduler {
	return &Scheduler{
		backend: backend,
		src:     global.Source(),
		global:  global,
		logger:  logger,
	}
}

// predicted 下一次 flip 的绝对时刻：还没 flip 过就是现在，
// 否则是 last + k*interval 中第一个不早于现在的边界
func (s *Scheduler) predicted() time.Time {
	now := s.src.Now()
	if s.lastFlip.IsZero() {
		return now
	}
	interval := s.backend.RefreshInterval()
	next := s.lastFlip.Add(interval)
	if interval <= 0 || !next.Before(now) {
		return next
	}
	late := now.Sub(next)
	k := late / interval
	if late%interval != 0 {
		k++
	}
	return next.Add(k * interval)
}

// FlipTime 预测的下一次 flip，换算到 ref；ref 为 nil 时用全局时钟
func (s *Scheduler) FlipTime(ref *clock.Clock) time.Duration {
	return s.on(ref).Since(s.predicted())
}

// LastFlipTime 最近一次已提交 flip 的时刻，换算到 ref
func (s *Scheduler) LastFlipTime(ref *clock.Clock) time.Duration {
	return s.on(ref).Since(s.lastFlip)
}

func (s *Scheduler) on(ref *clock.Clock) *clock.Clock {
	if ref == nil {
		return s.global
	}
	return ref
}

// OnNextFlip 注册一次性回调，在下一次 flip 提交之后、下一帧组件更新之前执行
func (s *Scheduler) OnNextFlip(fn func()) {
	s.pending = append(s.pending, fn)
}

// SetAutoDraw 打开/关闭刺激的自动绘制；重复关闭是安全的
func (s *Scheduler) SetAutoDraw(st stim.Stimulus, on bool) {
	idx := -1
	for i, cur := range s.autoDraw {
		if cur == st {
			idx = i
			break
		}
	}
	switch {
	case on && idx < 0:
		s.autoDraw = append(s.autoDraw, st)
	case !on && idx >= 0:
		s.autoDraw = append(s.autoDraw[:idx], s.autoDraw[idx+1:]...)
	}
}

// Drawing 当前自动绘制列表的拷贝
func (s *Scheduler) Drawing() []stim.Stimulus {
	out := make([]stim.Stimulus, len(s.autoDraw))
	copy(out, s.autoDraw)
	return out
}

// Flip 提交一帧，然后按注册顺序执行排队的回调并清空队列。
// 回调里新注册的回调留到下一次 flip。
func (s *Scheduler) Flip() error {
	at, err := s.backend.Flip(s.Drawing())
	if err != nil {
		return fmt.Errorf("flip 失败: %w", err)
	}
	interval := s.backend.RefreshInterval()
	if !s.lastFlip.IsZero() && interval > 0 && at.Sub(s.lastFlip) > interval*3/2 {
		s.dropped++
		s.logger.Warnf("第 %d 帧超时: 间隔 %v (刷新周期 %v)", s.frames, at.Sub(s.lastFlip), interval)
	}
	s.lastFlip = at
	s.frames++

	queue := s.pending
	s.pending = nil
	for _, fn := range queue {
		fn()
	}
	return nil
}

func (s *Scheduler) Frames() int  { return s.frames }
func (s *Scheduler) Dropped() int { return s.dropped }

// MeasureFrameRate 空刷 n 帧估计实际刷新率（Hz），n 帧没测出来返回 0
func (s *Scheduler) MeasureFrameRate(ctx context.Context, n int) (float64, error) {
	if n < 2 {
		n = 2
	}
	var first, last time.Time
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.Flip(); err != nil {
			return 0, err
		}
		if i == 0 {
			first = s.lastFlip
		}
		last = s.lastFlip
	}
	span := last.Sub(first)
	if span <= 0 {
		return 0, nil
	}
	return float64(n-1) / span.Seconds(), nil
}
