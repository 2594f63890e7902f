package input

import (
	"sync"
	"time"
)

type scripted struct {
	key   string
	at    time.Time
	frame int
}

// Script 预先安排好的按键，挂在显示后端的 OnFlip 上逐帧投递
type Script struct {
	mu      sync.Mutex
	hub     *Hub
	pending []scripted
}

func NewScript(hub *Hub) *Script {
	return &Script{hub: hub}
}

// At 在绝对时刻 at 按下 key（在 at 之后的第一次 flip 投递）
func (s *Script) At(at time.Time, key string) *Script {
	s.mu.Lock()
	s.pending = append(s.pending, scripted{key: key, at: at, frame: -1})
	s.mu.Unlock()
	return s
}

// OnFrame 在第 n 帧上屏的同一时刻按下 key
func (s *Script) OnFrame(n int, key string) *Script {
	s.mu.Lock()
	s.pending = append(s.pending, scripted{key: key, frame: n})
	s.mu.Unlock()
	return s
}

// Deliver 满足 flip.Virtual.OnFlip 的签名
func (s *Script) Deliver(n int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, p := range s.pending {
		switch {
		case p.frame >= 0 && p.frame <= n:
			s.hub.Push(p.key, at)
		case p.frame < 0 && !p.at.After(at):
			s.hub.Push(p.key, p.at)
		default:
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Pilot 试运行用的自动被试：每隔 interval 轮流按 keys 中的一个键
type Pilot struct {
	hub      *Hub
	keys     []string
	interval time.Duration
	next     time.Time
	i        int
}

func NewPilot(hub *Hub, keys []string, interval time.Duration) *Pilot {
	return &Pilot{hub: hub, keys: keys, interval: interval}
}

func (p *Pilot) Deliver(_ int, at time.Time) {
	if len(p.keys) == 0 {
		return
	}
	if p.next.IsZero() {
		p.next = at.Add(p.interval)
		return
	}
	if at.Before(p.next) {
		return
	}
	p.hub.Push(p.keys[p.i%len(p.keys)], at)
	p.i++
	p.next = at.Add(p.interval)
}
