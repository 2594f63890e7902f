package flip

import (
	"sync"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/stim"
)

// Virtual 虚拟垂直同步：每次 Flip 把虚拟时间推进到下一个刷新边界
type Virtual struct {
	mu       sync.Mutex
	src      *clock.Virtual
	interval time.Duration
	last     time.Time
	frames   [][]string
	hooks    []func(n int, at time.Time)
}

func NewVirtual(src *clock.Virtual, refreshHz float64) *Virtual {
	if refreshHz <= 0 {
		refreshHz = 60
	}
	return &Virtual{
		src:      src,
		interval: time.Duration(float64(time.Second) / refreshHz),
	}
}

func (v *Virtual) RefreshInterval() time.Duration { return v.interval }

// OnFlip 每帧上屏后调用，n 从 0 开始
func (v *Virtual) OnFlip(fn func(n int, at time.Time)) {
	v.mu.Lock()
	v.hooks = append(v.hooks, fn)
	v.mu.Unlock()
}

func (v *Virtual) Flip(draw []stim.Stimulus) (time.Time, error) {
	v.mu.Lock()
	now := v.src.Now()
	at := now
	if !v.last.IsZero() {
		at = v.last.Add(v.interval)
		for at.Before(now) {
			at = at.Add(v.interval)
		}
	}
	v.src.Set(at)
	v.last = at

	names := make([]string, 0, len(draw))
	for _, s := range draw {
		names = append(names, s.Name())
	}
	v.frames = append(v.frames, names)
	n := len(v.frames) - 1
	hooks := append([]func(int, time.Time){}, v.hooks...)
	v.mu.Unlock()

	for _, fn := range hooks {
		fn(n, at)
	}
	return at, nil
}

// Frames 每一帧绘制的刺激名
func (v *Virtual) Frames() [][]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]string, len(v.frames))
	copy(out, v.frames)
	return out
}

// Paced 无窗口的实时后端：睡到下一个刷新边界
type Paced struct {
	interval time.Duration
	last     time.Time
}

func NewPaced(refreshHz float64) *Paced {
	if refreshHz <= 0 {
		refreshHz = 60
	}
	return &Paced{interval: time.Duration(float64(time.Second) / refreshHz)}
}

func (p *Paced) RefreshInterval() time.Duration { return p.interval }

func (p *Paced) Flip(_ []stim.Stimulus) (time.Time, error) {
	now := time.Now()
	if p.last.IsZero() {
		p.last = now
		return now, nil
	}
	next := p.last.Add(p.interval)
	for next.Before(now) {
		next = next.Add(p.interval)
	}
	time.Sleep(time.Until(next))
	p.last = next
	return time.Now(), nil
}
