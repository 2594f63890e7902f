// Package stim 描述屏幕上的视觉刺激。这里只有参数，没有绘制；
// 绘制由具体的显示后端按类型完成。
//
// 坐标使用 height 单位：屏幕中心为 (0,0)，屏幕高度为 1。
package stim

import (
	"fmt"
	"image/color"
	"strings"
)

// Stimulus 所有视觉刺激的公共能力
type Stimulus interface {
	Name() string
	Appearance() *Appearance
}

// Appearance 每帧可改的外观参数
type Appearance struct {
	Pos       [2]float64
	Size      [2]float64
	Ori       float64
	Fill      color.RGBA
	Line      color.RGBA
	Opacity   float64
	Contrast  float64
	LineWidth float64
}

func defaultAppearance() Appearance {
	return Appearance{
		Size:      [2]float64{0.5, 0.5},
		Fill:      White,
		Line:      White,
		Opacity:   1,
		Contrast:  1,
		LineWidth: 1,
	}
}

func (a *Appearance) SetOpacity(v float64)   { a.Opacity = clamp01(v) }
func (a *Appearance) SetContrast(v float64)  { a.Contrast = v }
func (a *Appearance) SetLineWidth(v float64) { a.LineWidth = v }

// EffectiveFill 按 contrast 向中灰收缩后的填充色，alpha 来自 opacity
func (a *Appearance) EffectiveFill() color.RGBA {
	return applyContrast(a.Fill, a.Contrast, a.Opacity)
}

func (a *Appearance) EffectiveLine() color.RGBA {
	return applyContrast(a.Line, a.Contrast, a.Opacity)
}

func applyContrast(c color.RGBA, contrast, opacity float64) color.RGBA {
	ch := func(v uint8) uint8 {
		f := 127.5 + (float64(v)-127.5)*contrast
		if f < 0 {
			f = 0
		}
		if f > 255 {
			f = 255
		}
		return uint8(f + 0.5)
	}
	return color.RGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: uint8(clamp01(opacity)*255 + 0.5)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type base struct {
	name string
	app  Appearance
}

func (b *base) Name() string            { return b.name }
func (b *base) Appearance() *Appearance { return &b.app }

type Rect struct{ base }

type Circle struct{ base }

type Text struct {
	base
	Text   string
	Height float64
}

type Image struct {
	base
	Path string
}

func NewRect(name string, w, h float64, fill, line color.RGBA) *Rect {
	a := defaultAppearance()
	a.Size = [2]float64{w, h}
	a.Fill, a.Line = fill, line
	return &Rect{base{name: name, app: a}}
}

func NewCircle(name string, diameter float64, fill, line color.RGBA) *Circle {
	a := defaultAppearance()
	a.Size = [2]float64{diameter, diameter}
	a.Fill, a.Line = fill, line
	return &Circle{base{name: name, app: a}}
}

func NewText(name, text string, height float64, c color.RGBA) *Text {
	a := defaultAppearance()
	a.Fill, a.Line = c, c
	return &Text{base: base{name: name, app: a}, Text: text, Height: height}
}

func NewImage(name, path string, w, h float64) *Image {
	a := defaultAppearance()
	a.Size = [2]float64{w, h}
	return &Image{base: base{name: name, app: a}, Path: path}
}

func (t *Text) SetText(s string)      { t.Text = s }
func (i *Image) SetImage(path string) { i.Path = path }

var (
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{A: 255}
	Grey  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 128, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
)

var named = map[string]color.RGBA{
	"white": White,
	"black": Black,
	"grey":  Grey,
	"gray":  Grey,
	"red":   Red,
	"green": Green,
	"blue":  Blue,
}

// ParseColor 支持颜色名和 #rrggbb
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := named[s]; ok {
		return c, nil
	}
	var r, g, b uint8
	if len(s) == 7 && s[0] == '#' {
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err == nil {
			return color.RGBA{R: r, G: g, B: b, A: 255}, nil
		}
	}
	return color.RGBA{}, fmt.Errorf("无法识别的颜色: %q", s)
}

type Kind int

const (
	KindUnknown Kind = iota
	KindRect
	KindCircle
	KindText
	KindImage
)

// Frozen 一帧里某个刺激的值拷贝，交给其他 goroutine 绘制
type Frozen struct {
	Kind   Kind
	Name   string
	App    Appearance
	Text   string
	Height float64
	Path   string
}

func Freeze(s Stimulus) Frozen {
	f := Frozen{Name: s.Name(), App: *s.Appearance()}
	switch v := s.(type) {
	case *Rect:
		f.Kind = KindRect
	case *Circle:
		f.Kind = KindCircle
	case *Text:
		f.Kind = KindText
		f.Text, f.Height = v.Text, v.Height
	case *Image:
		f.Kind = KindImage
		f.Path = v.Path
	}
	return f
}

// FreezeAll 按绘制顺序拷贝整帧
func FreezeAll(draw []Stimulus) []Frozen {
	out := make([]Frozen, len(draw))
	for i, s := range draw {
		out[i] = Freeze(s)
	}
	return out
}
