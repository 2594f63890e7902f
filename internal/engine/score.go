package engine

import (
	"strings"

	"stimrun/internal/input"
)

// Answer 正确答案：某个键，或“不反应才对”
type Answer struct {
	Key        string
	NoResponse bool
}

// ParseAnswer 解析条件表/配置里的正确答案；
// 去掉多余的引号，只有 "none"（不区分大小写）表示不反应为正确。
// 空答案不对应任何键，永远得 0
func ParseAnswer(s string) Answer {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return Answer{NoResponse: true}
	}
	return Answer{Key: strings.ToLower(s)}
}

func (a Answer) String() string {
	if a.NoResponse {
		return "None"
	}
	return a.Key
}

// isSentinel 空名和字面量 None 都当作“没有按键”
func isSentinel(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, "none")
}

// NormalizeKeys 去掉哨兵值；结果为空即“无反应”
func NormalizeKeys(keys []input.KeyPress) []input.KeyPress {
	if len(keys) == 0 {
		return nil
	}
	out := make([]input.KeyPress, 0, len(keys))
	for _, k := range keys {
		if isSentinel(k.Name) {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Score 只看最后一个键：和正确键相同得 1；
// 没有按键时，只有答案规定“不反应为正确”才得 1
func Score(keys []input.KeyPress, answer Answer) int {
	keys = NormalizeKeys(keys)
	if len(keys) == 0 {
		if answer.NoResponse {
			return 1
		}
		return 0
	}
	if answer.NoResponse || answer.Key == "" {
		return 0
	}
	if strings.EqualFold(keys[len(keys)-1].Name, answer.Key) {
		return 1
	}
	return 0
}
