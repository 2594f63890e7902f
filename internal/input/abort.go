package input

import (
	"context"
	"sync/atomic"
)

// AbortSource 非阻塞地查询是否要求中止，每帧查一次
type AbortSource interface {
	Aborted() bool
}

// EscapeKey 默认键盘上的退出键
type EscapeKey struct {
	kb   *Keyboard
	keys []string
}

func NewEscapeKey(kb *Keyboard, keys ...string) *EscapeKey {
	if len(keys) == 0 {
		keys = []string{"escape"}
	}
	return &EscapeKey{kb: kb, keys: keys}
}

func (e *EscapeKey) Aborted() bool {
	return len(e.kb.GetKeys(e.keys)) > 0
}

// Flag 可从其他 goroutine 置位的中止标记（控制台 / 信号）
type Flag struct {
	set    atomic.Bool
	reason atomic.Value
}

func (f *Flag) Request(reason string) {
	f.reason.Store(reason)
	f.set.Store(true)
}

func (f *Flag) Aborted() bool { return f.set.Load() }

func (f *Flag) Reason() string {
	if r, ok := f.reason.Load().(string); ok {
		return r
	}
	return ""
}

type contextAbort struct{ ctx context.Context }

func (c contextAbort) Aborted() bool { return c.ctx.Err() != nil }

// Context ctx 被取消即视为中止
func Context(ctx context.Context) AbortSource {
	return contextAbort{ctx: ctx}
}

type anyOf []AbortSource

func (a anyOf) Aborted() bool {
	for _, s := range a {
		if s != nil && s.Aborted() {
			return true
		}
	}
	return false
}

// AnyOf 任一来源要求中止即中止
func AnyOf(sources ...AbortSource) AbortSource {
	return anyOf(sources)
}
