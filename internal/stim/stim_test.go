package stim

import (
	"image/color"
	"testing"
)

func TestContrastZeroCollapsesToMidGrey(t *testing.T) {
	c := NewCircle("cover", 0.5, White, White)
	c.Appearance().SetOpacity(0.5)
	c.Appearance().SetContrast(0)

	got := c.Appearance().EffectiveFill()
	want := color.RGBA{R: 128, G: 128, B: 128, A: 128}
	if got != want {
		t.Fatalf("effective fill = %+v, want %+v", got, want)
	}
}

func TestFullContrastKeepsColour(t *testing.T) {
	r := NewRect("bg", 0.5, 0.5, White, Grey)
	if got := r.Appearance().EffectiveFill(); got != White {
		t.Fatalf("effective fill = %+v, want white", got)
	}
	if got := r.Appearance().EffectiveLine(); got != Grey {
		t.Fatalf("effective line = %+v, want grey", got)
	}
}

func TestOpacityIsClamped(t *testing.T) {
	r := NewRect("bg", 1, 1, White, White)
	r.Appearance().SetOpacity(3)
	if r.Appearance().Opacity != 1 {
		t.Fatalf("opacity = %v", r.Appearance().Opacity)
	}
	r.Appearance().SetOpacity(-1)
	if r.Appearance().Opacity != 0 {
		t.Fatalf("opacity = %v", r.Appearance().Opacity)
	}
}

func TestParseColor(t *testing.T) {
	if c, err := ParseColor(" Grey "); err != nil || c != Grey {
		t.Fatalf("grey: %v %v", c, err)
	}
	if c, err := ParseColor("#ff8000"); err != nil || c != (color.RGBA{R: 255, G: 128, A: 255}) {
		t.Fatalf("hex: %v %v", c, err)
	}
	if _, err := ParseColor("mauve-ish"); err == nil {
		t.Fatal("expected error for unknown colour")
	}
}

func TestSettersOnConcreteKinds(t *testing.T) {
	txt := NewText("practise_corr", "", 0.05, White)
	txt.SetText("+")
	if txt.Text != "+" || txt.Name() != "practise_corr" {
		t.Fatalf("text = %+v", txt)
	}
	img := NewImage("i3", "a.png", 1.6, 1)
	img.SetImage("b.png")
	if img.Path != "b.png" || img.Appearance().Size != [2]float64{1.6, 1} {
		t.Fatalf("image = %+v", img)
	}
}

func TestFreezeCopiesValues(t *testing.T) {
	cover := NewCircle("cover", 0.5, White, White)
	corr := NewText("practise_corr", "(1.00)", 0.05, White)
	img := NewImage("i3", "a.png", 1.6, 1)
	frame := FreezeAll([]Stimulus{cover, corr, img})

	// 下一帧的 setter 和 SetText 不能影响已提交的帧
	cover.Appearance().SetOpacity(0.5)
	corr.SetText("(0.00)")
	img.SetImage("b.png")

	if frame[0].Kind != KindCircle || frame[0].App.Opacity != 1 || frame[0].Name != "cover" {
		t.Fatalf("circle = %+v", frame[0])
	}
	if frame[1].Kind != KindText || frame[1].Text != "(1.00)" || frame[1].Height != 0.05 {
		t.Fatalf("text = %+v", frame[1])
	}
	if frame[2].Kind != KindImage || frame[2].Path != "a.png" {
		t.Fatalf("image = %+v", frame[2])
	}
}
