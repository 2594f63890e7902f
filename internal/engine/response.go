package engine

import (
	"time"

	"stimrun/internal/input"
)

// StoreMode 记录哪些按键
type StoreMode int

const (
	StoreLast StoreMode = iota
	StoreAll
)

// Response 键盘反应组件
type Response struct {
	base Base

	Keyboard    *input.Keyboard
	AllowedKeys []string
	Store       StoreMode
	ForceEnd    bool
	// Correct 为 nil 时不计分
	Correct *Answer

	keys       []input.KeyPress
	corr       *int
	waitOnFlip bool
}

func NewResponse(name string, kb *input.Keyboard, allowed []string, onset, duration time.Duration) *Response {
	r := &Response{
		base:        Base{Name: name, Onset: onset, Duration: duration, Timestamp: true},
		Keyboard:    kb,
		AllowedKeys: allowed,
		ForceEnd:    true,
	}
	r.Reset()
	return r
}

// WithAnswer 设置正确答案并开启计分
func (r *Response) WithAnswer(a Answer) *Response {
	r.Correct = &a
	return r
}

func (r *Response) Base() *Base { return &r.base }

func (r *Response) Reset() {
	r.base.Reset()
	r.keys = nil
	r.corr = nil
	r.waitOnFlip = false
}

// Start 键盘时钟和事件缓冲在下一次 flip 时清零，RT 从刺激真正上屏算起
func (r *Response) Start(f *Frame) {
	r.waitOnFlip = true
	f.presenter.OnNextFlip(r.Keyboard.Clock.Reset)
	f.presenter.OnNextFlip(r.Keyboard.ClearEvents)
}

func (r *Response) Update(f *Frame) {
	if r.waitOnFlip {
		r.waitOnFlip = false
		return
	}
	got := r.Keyboard.GetKeys(r.AllowedKeys)
	if len(got) == 0 {
		return
	}
	r.keys = append(r.keys, got...)
	if r.Correct != nil {
		c := Score(r.keys, *r.Correct)
		r.corr = &c
	}
	if r.ForceEnd {
		f.EndRoutine()
	}
}

func (r *Response) Stop(*Frame)        {}
func (r *Response) Disable(Presenter) {}

// Finalize 例程结束后做“无反应”归一化和最终计分
func (r *Response) Finalize() {
	r.keys = NormalizeKeys(r.keys)
	if r.Correct != nil {
		c := Score(r.keys, *r.Correct)
		r.corr = &c
	}
}

// Keys 按采集顺序的全部按键
func (r *Response) Keys() []input.KeyPress {
	return r.keys
}

// Responded 是否有有效按键
func (r *Response) Responded() bool {
	return len(NormalizeKeys(r.keys)) > 0
}

// Last 代表性反应：最后一个键
func (r *Response) Last() (input.KeyPress, bool) {
	if len(r.keys) == 0 {
		return input.KeyPress{}, false
	}
	return r.keys[len(r.keys)-1], true
}

// Corr 计分结果，未计分为 nil
func (r *Response) Corr() *int {
	return r.corr
}

// KeyNames 按 Store 模式导出的键名：StoreAll 为列表，StoreLast 为最后一个；无反应为 nil
func (r *Response) KeyNames() interface{} {
	keys := NormalizeKeys(r.keys)
	if len(keys) == 0 {
		return nil
	}
	if r.Store == StoreLast {
		return keys[len(keys)-1].Name
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}

// RTs 与 KeyNames 对应的反应时（秒）
func (r *Response) RTs() interface{} {
	keys := NormalizeKeys(r.keys)
	if len(keys) == 0 {
		return nil
	}
	if r.Store == StoreLast {
		return keys[len(keys)-1].RT.Seconds()
	}
	rts := make([]float64, len(keys))
	for i, k := range keys {
		rts[i] = k.RT.Seconds()
	}
	return rts
}

// Record 写入 <name>.keys / <name>.corr / <name>.rt；无反应时不写 rt
func (r *Response) Record(rec Recorder) {
	name := r.base.Name
	rec.AddData(name+".keys", r.KeyNames())
	if r.corr != nil {
		rec.AddData(name+".corr", *r.corr)
	}
	if r.Responded() {
		rec.AddData(name+".rt", r.RTs())
	}
}
