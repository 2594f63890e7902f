package clock

import (
	"sync"
	"time"
)

// Source 单调时间源
type Source interface {
	Now() time.Time
}

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

// System 基于 time.Now 的时间源（带单调读数）
var System Source = systemSource{}

// Virtual 手动推进的时间源，用于测试和无窗口的试运行
type Virtual struct {
	mu  sync.Mutex
	now time.Time
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	v.now = v.now.Add(d)
	v.mu.Unlock()
}

// Set 把时间设到 t；不允许倒退
func (v *Virtual) Set(t time.Time) {
	v.mu.Lock()
	if t.After(v.now) {
		v.now = t
	}
	v.mu.Unlock()
}

// Clock 以 origin 为零点计时
type Clock struct {
	src    Source
	origin time.Time
}

func New(src Source) *Clock {
	if src == nil {
		src = System
	}
	return &Clock{src: src, origin: src.Now()}
}

// Elapsed 自 origin（最近一次 Reset）以来的时间
func (c *Clock) Elapsed() time.Duration {
	return c.src.Now().Sub(c.origin)
}

// Reset 把零点移到当前时刻
func (c *Clock) Reset() {
	c.origin = c.src.Now()
}

// AddTime 让 Elapsed 增加 d；AddTime(-D) 即把时钟往回拨 D（non-slip 计时）
func (c *Clock) AddTime(d time.Duration) {
	c.origin = c.origin.Add(-d)
}

// Since 把绝对时刻 t 换算到本时钟上
func (c *Clock) Since(t time.Time) time.Duration {
	return t.Sub(c.origin)
}

func (c *Clock) Source() Source {
	return c.src
}
