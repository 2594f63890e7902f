// Package screen 把 height 单位换算成像素，不依赖任何图形库。
package screen

import (
	"image/color"
	"strings"
)

// Space 窗口的逻辑像素尺寸
type Space struct {
	W, H int
}

// Point 中心为原点、y 向上的 height 单位坐标 → 左上为原点的像素坐标
func (s Space) Point(pos [2]float64) (x, y float64) {
	h := float64(s.H)
	return float64(s.W)/2 + pos[0]*h, float64(s.H)/2 - pos[1]*h
}

// Length height 单位长度 → 像素
func (s Space) Length(v float64) float64 {
	return v * float64(s.H)
}

// Rect 以 pos 为中心、size 为宽高的矩形，返回左上角和宽高（像素）
func (s Space) Rect(pos, size [2]float64) (x, y, w, h float64) {
	cx, cy := s.Point(pos)
	w, h = s.Length(size[0]), s.Length(size[1])
	return cx - w/2, cy - h/2, w, h
}

// Straight 非预乘 alpha 的颜色
func Straight(c color.RGBA) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// KeyName 设备键名统一成小写，数字键去掉 "digit" 前缀
func KeyName(s string) string {
	s = strings.ToLower(s)
	if strings.HasPrefix(s, "digit") && len(s) == 6 {
		return s[5:]
	}
	return s
}
