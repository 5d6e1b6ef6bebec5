package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

func whitePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff
}

func TestAnnotate_DrawsBoundsScaledToImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 400))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	nodes := []model.NodeSnapshot{
		{Text: "Login", Bounds: model.Bounds{100, 200, 300, 400}},
		{Text: "no bounds"},
	}

	// Device is 400x800, the screenshot half that.
	out := Annotate(img, nodes, 400, 800)
	if isWhite(out.At(50, 100)) {
		t.Error("top-left corner of the scaled box should be drawn")
	}
	if !isWhite(out.At(10, 10)) || !isWhite(out.At(70, 120)) {
		t.Error("pixels outside boxes and labels should be untouched")
	}
	var labelled bool
	for y := 140; y < 160 && !labelled; y++ {
		for x := 85; x < 115; x++ {
			if !isWhite(out.At(x, y)) {
				labelled = true
				break
			}
		}
	}
	if !labelled {
		t.Error("expected a label near the box center")
	}
}

func TestScale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if got := Scale(img, 0.5).Bounds(); got.Dx() != 50 || got.Dy() != 25 {
		t.Errorf("scaled size: got %v", got)
	}
	if got := Scale(img, 1); got != image.Image(img) {
		t.Error("factor 1 should keep the image")
	}
	if got := Scale(img, 0).Bounds(); got.Dx() != 100 {
		t.Error("factor 0 should keep the image")
	}
	if got := Scale(img, 0.01).Bounds(); got.Dx() != 10 {
		t.Errorf("factor below 0.1 should clamp, got %v", got)
	}
}

func TestRender(t *testing.T) {
	data := whitePNG(t, 40, 80)
	nodes := []model.NodeSnapshot{{Text: "A", Bounds: model.Bounds{0, 0, 40, 40}}}

	out, err := Render(data, nodes, 40, 80, Options{Annotate: true, Scale: 0.5, Format: "jpg", Quality: 90})
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 40 {
		t.Errorf("unexpected size %v", b)
	}

	if _, err := Render(data, nil, 0, 0, Options{Format: "gif"}); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := Render([]byte("not a png"), nil, 0, 0, Options{}); err == nil {
		t.Error("expected decode error")
	}
}
