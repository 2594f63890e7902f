// Package record 是数据处理器：收集每个试次的键值，按行写到各个输出。
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/log"
)

// Field 有序的一列
type Field struct {
	Key   string
	Value interface{}
}

// Record 一行数据，追加后不再修改
type Record struct {
	Index   int
	Columns []string
	Values  map[string]interface{}
}

func (r Record) Get(key string) (interface{}, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Score 找到该行的评分列（xxx.corr）。responded 表示同一反应组件记录了 rt
func (r Record) Score() (name string, corr int, responded bool, ok bool) {
	for _, c := range r.Columns {
		if !strings.HasSuffix(c, ".corr") {
			continue
		}
		v, isInt := r.Values[c].(int)
		if !isInt {
			continue
		}
		name = strings.TrimSuffix(c, ".corr")
		_, responded = r.Values[name+".rt"]
		return name, v, responded, true
	}
	return "", 0, false, false
}

// Snapshotter 循环在每一行里贡献的列
type Snapshotter interface {
	Name() string
	Snapshot() []Field
}

// Sink 记录的去处；Close 时落盘
type Sink interface {
	Append(Record) error
	Close() error
}

// FlipSource 在下一次 flip 时打时间戳用
type FlipSource interface {
	OnNextFlip(fn func())
	LastFlipTime(ref *clock.Clock) time.Duration
}

type Handler struct {
	mu      sync.Mutex
	extra   []Field
	loops   []Snapshotter
	pending []Field
	records []Record
	sinks   []Sink
	logger  *log.Logger
}

// NewHandler extra 是被试信息等每行都带的列
func NewHandler(extra []Field, logger *log.Logger, sinks ...Sink) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{extra: extra, sinks: sinks, logger: logger}
}

func (h *Handler) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Handler) AddLoop(l Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loops = append(h.loops, l)
}

func (h *Handler) RemoveLoop(l Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, x := range h.loops {
		if x == l {
			h.loops = append(h.loops[:i], h.loops[i+1:]...)
			return
		}
	}
}

// AddData 当前行的一列；同名覆盖，位置不变
func (h *Handler) AddData(key string, value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.pending {
		if h.pending[i].Key == key {
			h.pending[i].Value = value
			return
		}
	}
	h.pending = append(h.pending, Field{Key: key, Value: value})
}

// TimestampOnFlip 下一次 flip 提交后把 flip 时刻（秒）写入当前行
func (h *Handler) TimestampOnFlip(p FlipSource, key string) {
	p.OnNextFlip(func() {
		h.AddData(key, p.LastFlipTime(nil).Seconds())
	})
}

// NextEntry 当前数据 + 循环状态 + extra 组成一行，追加到所有输出
func (h *Handler) NextEntry() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := Record{Index: len(h.records), Values: map[string]interface{}{}}
	add := func(f Field) {
		if _, dup := rec.Values[f.Key]; !dup {
			rec.Columns = append(rec.Columns, f.Key)
		}
		rec.Values[f.Key] = f.Value
	}
	for _, f := range h.pending {
		add(f)
	}
	for _, l := range h.loops {
		for _, f := range l.Snapshot() {
			add(f)
		}
	}
	for _, f := range h.extra {
		add(f)
	}
	h.pending = nil
	h.records = append(h.records, rec)

	var errs []error
	for _, s := range h.sinks {
		if err := s.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	h.logger.Debugf("第 %d 行, %d 列", rec.Index, len(rec.Columns))
	return errors.Join(errs...)
}

// Records 已追加的行（副本）
func (h *Handler) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.records...)
}

// Close 只在正常结束时调用；中止时不落盘
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, s := range h.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatValue 宽表里单元格的文本形式
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = "'" + s + "'"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}
