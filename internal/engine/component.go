// Package engine 是按帧同步的例程引擎：组件生命周期、例程主循环和反应计分。
package engine

import (
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/stim"
)

// DefaultTolerance 起止判断的容差，吸收浮点和调度抖动
const DefaultTolerance = time.Millisecond

type Status int

const (
	NotStarted Status = iota
	Started
	Finished
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Started:
		return "STARTED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Presenter 显示面：flip 预测、一次性回调、自动绘制
type Presenter interface {
	FlipTime(ref *clock.Clock) time.Duration
	LastFlipTime(ref *clock.Clock) time.Duration
	OnNextFlip(fn func())
	SetAutoDraw(s stim.Stimulus, on bool)
	Flip() error
}

// Recorder 接收当前试次的数据列
type Recorder interface {
	AddData(key string, value interface{})
}

// Frame 一帧内所有组件共享的时间信息
type Frame struct {
	N          int
	T          time.Duration // 例程本地时间，不含刷新对齐
	FlipT      time.Duration // 下一次 flip，例程时钟
	FlipGlobal time.Duration // 下一次 flip，全局时钟

	presenter Presenter
	forceEnd  bool
}

// EndRoutine 请求本帧结束例程（不再 flip）
func (f *Frame) EndRoutine() { f.forceEnd = true }

func (f *Frame) Presenter() Presenter { return f.presenter }

// Base 每个组件都有的生命周期簿记
type Base struct {
	Name     string
	Onset    time.Duration
	Duration time.Duration // 0 表示不按时长结束

	// Timestamp 为真时在 flip 上记录 <name>.started / <name>.stopped
	Timestamp bool

	Status        Status
	FrameStart    int
	FrameStop     int
	TStart        *time.Duration
	TStop         *time.Duration
	TStartRefresh *time.Duration
	TStopRefresh  *time.Duration
}

// Reset 例程准备阶段调用，回到 NOT_STARTED
func (b *Base) Reset() {
	b.Status = NotStarted
	b.FrameStart, b.FrameStop = -1, -1
	b.TStart, b.TStop = nil, nil
	b.TStartRefresh, b.TStopRefresh = nil, nil
}

func (b *Base) shouldStart(f *Frame, tol time.Duration) bool {
	return b.Status == NotStarted && f.FlipT >= b.Onset-tol
}

func (b *Base) shouldStop(f *Frame, tol time.Duration) bool {
	if b.Status != Started || b.Duration <= 0 || b.TStartRefresh == nil {
		return false
	}
	return f.FlipGlobal > *b.TStartRefresh+b.Duration-tol
}

// Component 固定的生命周期契约；状态迁移由 Runner 统一完成
type Component interface {
	Base() *Base
	Reset()
	Start(f *Frame)
	Update(f *Frame)
	Stop(f *Frame)
	Disable(p Presenter)
}

func ptr(d time.Duration) *time.Duration { return &d }

// Setter 组件处于 STARTED 时每帧应用的参数更新
type Setter func(s stim.Stimulus, f *Frame)

func Opacity(v float64) Setter {
	return func(s stim.Stimulus, _ *Frame) { s.Appearance().SetOpacity(v) }
}

func Contrast(v float64) Setter {
	return func(s stim.Stimulus, _ *Frame) { s.Appearance().SetContrast(v) }
}

func LineWidth(v float64) Setter {
	return func(s stim.Stimulus, _ *Frame) { s.Appearance().SetLineWidth(v) }
}

// Visual 视觉刺激组件
type Visual struct {
	base    Base
	Stim    stim.Stimulus
	Setters []Setter
}

func NewVisual(s stim.Stimulus, onset, duration time.Duration, setters ...Setter) *Visual {
	v := &Visual{
		base:    Base{Name: s.Name(), Onset: onset, Duration: duration, Timestamp: true},
		Stim:    s,
		Setters: setters,
	}
	v.base.Reset()
	return v
}

func (v *Visual) Base() *Base { return &v.base }
func (v *Visual) Reset()      { v.base.Reset() }

func (v *Visual) Start(f *Frame) {
	f.presenter.SetAutoDraw(v.Stim, true)
}

func (v *Visual) Update(f *Frame) {
	for _, set := range v.Setters {
		set(v.Stim, f)
	}
}

func (v *Visual) Stop(f *Frame) {
	f.presenter.SetAutoDraw(v.Stim, false)
}

func (v *Visual) Disable(p Presenter) {
	p.SetAutoDraw(v.Stim, false)
}

// Static 只占时间不画东西的组件（如刺激间隔）
type Static struct {
	base Base
}

func NewStatic(name string, onset, duration time.Duration) *Static {
	s := &Static{base: Base{Name: name, Onset: onset, Duration: duration}}
	s.base.Reset()
	return s
}

func (s *Static) Base() *Base         { return &s.base }
func (s *Static) Reset()              { s.base.Reset() }
func (s *Static) Start(*Frame)        {}
func (s *Static) Update(*Frame)       {}
func (s *Static) Stop(*Frame)         {}
func (s *Static) Disable(p Presenter) {}
