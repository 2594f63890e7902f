// Package display 基于 ebiten 的真实显示后端：垂直同步的窗口 + 键盘。
//
// ebiten.RunGame 必须占用主 goroutine，实验在另一个 goroutine 里通过
// Flip 提交每一帧，Update 每个刷新周期最多接收一帧。
package display

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"stimrun/internal/display/screen"
	"stimrun/internal/engine"
	"stimrun/internal/input"
	"stimrun/internal/log"
	"stimrun/internal/stim"
)

// ErrClosed 窗口被关闭，按中止处理
var ErrClosed = fmt.Errorf("display closed: %w", engine.ErrAborted)

type Options struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	RefreshHz  float64
	Background color.RGBA
}

type frameReq struct {
	draw []stim.Frozen
	done chan time.Time
}

type Window struct {
	opts     Options
	space    screen.Space
	interval time.Duration
	hub      *input.Hub
	logger   *log.Logger

	reqs     chan *frameReq
	quit     chan struct{}
	quitOnce sync.Once
	finished chan struct{}
	finOnce  sync.Once

	inflight *frameReq
	current  []stim.Frozen
	n        int
	keys     []ebiten.Key

	mu    sync.Mutex
	hooks []func(n int, at time.Time)

	images map[string]*ebiten.Image
	texts  map[string]*ebiten.Image
}

func New(opts Options, hub *input.Hub, logger *log.Logger) *Window {
	if opts.RefreshHz <= 0 {
		opts.RefreshHz = 60
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Window{
		opts:     opts,
		space:    screen.Space{W: opts.Width, H: opts.Height},
		interval: time.Duration(float64(time.Second) / opts.RefreshHz),
		hub:      hub,
		logger:   logger.With("display"),
		reqs:     make(chan *frameReq),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
		images:   map[string]*ebiten.Image{},
		texts:    map[string]*ebiten.Image{},
	}
}

func (w *Window) RefreshInterval() time.Duration { return w.interval }

// OnFlip 每帧上屏后在 ebiten 的 goroutine 里调用
func (w *Window) OnFlip(fn func(n int, at time.Time)) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

// Flip 提交一帧并阻塞到它上屏。Draw 在 ebiten 的 goroutine 里反复绘制这一帧，
// 所以这里拷贝刺激的值，不保留指针
func (w *Window) Flip(draw []stim.Stimulus) (time.Time, error) {
	req := &frameReq{draw: stim.FreezeAll(draw), done: make(chan time.Time, 1)}
	select {
	case w.reqs <- req:
	case <-w.quit:
		return time.Time{}, ErrClosed
	}
	select {
	case at := <-req.done:
		return at, nil
	case <-w.quit:
		return time.Time{}, ErrClosed
	}
}

// Finish 实验结束，下一次 Update 退出 RunGame
func (w *Window) Finish() {
	w.finOnce.Do(func() { close(w.finished) })
}

// Run 在主 goroutine 上运行窗口，直到 Finish 或窗口被关闭
func (w *Window) Run() error {
	ebiten.SetWindowTitle(w.opts.Title)
	ebiten.SetWindowSize(w.opts.Width, w.opts.Height)
	ebiten.SetFullscreen(w.opts.Fullscreen)
	ebiten.SetVsyncEnabled(true)
	ebiten.SetTPS(ebiten.SyncWithFPS)
	ebiten.SetCursorMode(ebiten.CursorModeHidden)

	err := ebiten.RunGame(w)
	w.quitOnce.Do(func() { close(w.quit) })
	if err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("显示窗口异常退出: %w", err)
	}
	return nil
}

func (w *Window) Update() error {
	now := time.Now()
	// 上一帧在本次 Update 前已经交换到屏幕
	if w.inflight != nil {
		w.inflight.done <- now
		w.inflight = nil
		w.mu.Lock()
		hooks := append([]func(int, time.Time){}, w.hooks...)
		w.mu.Unlock()
		for _, fn := range hooks {
			fn(w.n, now)
		}
		w.n++
	}

	w.keys = inpututil.AppendJustPressedKeys(w.keys[:0])
	for _, k := range w.keys {
		w.hub.Push(screen.KeyName(k.String()), now)
	}

	select {
	case <-w.finished:
		return ebiten.Termination
	default:
	}
	select {
	case r := <-w.reqs:
		w.current = r.draw
		w.inflight = r
	default:
	}
	return nil
}

func (w *Window) Draw(dst *ebiten.Image) {
	dst.Fill(w.opts.Background)
	for i := range w.current {
		w.draw(dst, &w.current[i])
	}
}

func (w *Window) Layout(int, int) (int, int) {
	return w.opts.Width, w.opts.Height
}

func (w *Window) draw(dst *ebiten.Image, s *stim.Frozen) {
	a := &s.App
	switch s.Kind {
	case stim.KindRect:
		x, y, rw, rh := w.space.Rect(a.Pos, a.Size)
		if a.Fill.A > 0 {
			vector.DrawFilledRect(dst, float32(x), float32(y), float32(rw), float32(rh), screen.Straight(a.EffectiveFill()), true)
		}
		if a.Line.A > 0 && a.LineWidth > 0 {
			vector.StrokeRect(dst, float32(x), float32(y), float32(rw), float32(rh), float32(a.LineWidth), screen.Straight(a.EffectiveLine()), true)
		}
	case stim.KindCircle:
		cx, cy := w.space.Point(a.Pos)
		r := w.space.Length(a.Size[0]) / 2
		if a.Fill.A > 0 {
			vector.DrawFilledCircle(dst, float32(cx), float32(cy), float32(r), screen.Straight(a.EffectiveFill()), true)
		}
		if a.Line.A > 0 && a.LineWidth > 0 {
			vector.StrokeCircle(dst, float32(cx), float32(cy), float32(r), float32(a.LineWidth), screen.Straight(a.EffectiveLine()), true)
		}
	case stim.KindText:
		w.drawText(dst, s, a)
	case stim.KindImage:
		w.drawImage(dst, s, a)
	default:
		w.logger.Warnf("不支持绘制的刺激 %s", s.Name)
	}
}

// DebugPrint 的字形是 6x16 像素，先画到离屏图再按字高缩放
func (w *Window) drawText(dst *ebiten.Image, t *stim.Frozen, a *stim.Appearance) {
	if t.Text == "" {
		return
	}
	img, ok := w.texts[t.Text]
	if !ok {
		lines := strings.Split(t.Text, "\n")
		width := 0
		for _, l := range lines {
			if len(l) > width {
				width = len(l)
			}
		}
		img = ebiten.NewImage(width*6+1, len(lines)*16)
		ebitenutil.DebugPrintAt(img, t.Text, 0, 0)
		w.texts[t.Text] = img
	}
	scale := w.space.Length(t.Height) / 16
	b := img.Bounds()
	cx, cy := w.space.Point(a.Pos)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-float64(b.Dx())/2, -float64(b.Dy())/2)
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(cx, cy)
	op.ColorScale.ScaleWithColor(screen.Straight(a.EffectiveFill()))
	dst.DrawImage(img, op)
}

func (w *Window) drawImage(dst *ebiten.Image, im *stim.Frozen, a *stim.Appearance) {
	img, ok := w.images[im.Path]
	if !ok {
		var err error
		img, _, err = ebitenutil.NewImageFromFile(im.Path)
		if err != nil {
			w.logger.Errorf("加载图片 %s 失败: %v", im.Path, err)
			img = nil
		}
		w.images[im.Path] = img
	}
	if img == nil {
		return
	}
	b := img.Bounds()
	tw, th := w.space.Length(a.Size[0]), w.space.Length(a.Size[1])
	cx, cy := w.space.Point(a.Pos)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-float64(b.Dx())/2, -float64(b.Dy())/2)
	op.GeoM.Scale(tw/float64(b.Dx()), th/float64(b.Dy()))
	op.GeoM.Rotate(a.Ori * math.Pi / 180)
	op.GeoM.Translate(cx, cy)
	op.ColorScale.ScaleAlpha(float32(a.Opacity))
	dst.DrawImage(img, op)
}
