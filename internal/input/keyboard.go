package input

import (
	"strings"
	"sync"
	"time"

	"stimrun/internal/clock"
)

// Event 设备层的原始按键：键名 + 按下的绝对时刻
type Event struct {
	Name string
	At   time.Time
}

// KeyPress 相对某个键盘时钟的按键
type KeyPress struct {
	Name string        `json:"name"`
	RT   time.Duration `json:"rt"`
}

// Hub 所有键盘共享的事件缓冲；显示后端在自己的 goroutine 里 Push
type Hub struct {
	mu     sync.Mutex
	events []Event
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Push(name string, at time.Time) {
	h.mu.Lock()
	h.events = append(h.events, Event{Name: strings.ToLower(name), At: at})
	h.mu.Unlock()
}

// Take 取出并移除键名在 allowed 中的事件；allowed 为空表示全部
func (h *Hub) Take(allowed []string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var taken []Event
	kept := h.events[:0]
	for _, ev := range h.events {
		if matches(ev.Name, allowed) {
			taken = append(taken, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	h.events = kept
	return taken
}

func (h *Hub) Clear() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func matches(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// Keyboard 带自己响应时钟的键盘视图
type Keyboard struct {
	hub   *Hub
	Clock *clock.Clock
}

func NewKeyboard(hub *Hub, src clock.Source) *Keyboard {
	return &Keyboard{hub: hub, Clock: clock.New(src)}
}

// GetKeys 取出 allowed 中的按键，RT 相对于键盘时钟零点
func (k *Keyboard) GetKeys(allowed []string) []KeyPress {
	events := k.hub.Take(allowed)
	if len(events) == 0 {
		return nil
	}
	out := make([]KeyPress, 0, len(events))
	for _, ev := range events {
		out = append(out, KeyPress{Name: ev.Name, RT: k.Clock.Since(ev.At)})
	}
	return out
}

// ClearEvents 丢弃缓冲中的全部按键
func (k *Keyboard) ClearEvents() {
	k.hub.Clear()
}
