// Package annotate draws node-index labels onto device screenshots, so the
// indices a planner refers to can be checked by eye.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"
	"image/png"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options control Render.
type Options struct {
	Annotate bool
	Scale    float64 // 0.1-1.0, anything else keeps full size
	Format   string  // png or jpg
	Quality  int     // JPEG quality 1-100
}

var (
	boxColor     = color.RGBA{R: 255, G: 0, B: 0, A: 100}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

// basicfont.Face7x13 glyph size.
const (
	glyphWidth  = 7
	glyphHeight = 13
)

// Render decodes a PNG screenshot, optionally labels every node with its
// 1-based index, scales it and encodes it in the requested format.
// screenW and screenH are the device dimensions node bounds are expressed
// in; zero means the image size.
func Render(data []byte, nodes []model.NodeSnapshot, screenW, screenH int, opts Options) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	if opts.Annotate {
		img = Annotate(img, nodes, screenW, screenH)
	}
	img = Scale(img, opts.Scale)

	var buf bytes.Buffer
	switch opts.Format {
	case "jpg", "jpeg":
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "", "png":
		err = png.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("unsupported image format: %s (use png or jpg)", opts.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Annotate draws each node's bounds and "[index]" label. Nodes without
// bounds keep their index but are not drawn.
func Annotate(img image.Image, nodes []model.NodeSnapshot, screenW, screenH int) *image.RGBA {
	rgba := ToRGBA(img)
	b := img.Bounds()
	scaleX, scaleY := 1.0, 1.0
	if screenW > 0 {
		scaleX = float64(b.Dx()) / float64(screenW)
	}
	if screenH > 0 {
		scaleY = float64(b.Dy()) / float64(screenH)
	}

	for i, n := range nodes {
		if n.Bounds.IsZero() {
			continue
		}
		x1 := int(float64(n.Bounds[0]) * scaleX)
		y1 := int(float64(n.Bounds[1]) * scaleY)
		x2 := int(float64(n.Bounds[2]) * scaleX)
		y2 := int(float64(n.Bounds[3]) * scaleY)
		drawRectangle(rgba, x1, y1, x2, y2, boxColor)
		drawLabel(rgba, fmt.Sprintf("[%d]", i+1), (x1+x2)/2, (y1+y2)/2)
	}
	return rgba
}

// Scale resizes img by factor. Factors outside (0, 1) return img unchanged.
func Scale(img image.Image, factor float64) image.Image {
	if factor <= 0 || factor >= 1 {
		return img
	}
	if factor < 0.1 {
		factor = 0.1
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 || h < 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ToRGBA converts any image to RGBA.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	stddraw.Draw(rgba, bounds, img, bounds.Min, stddraw.Src)
	return rgba
}

// drawRectangle draws a rectangle outline clamped to the image.
func drawRectangle(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	bounds := img.Bounds()
	x1, y1 = max(x1, bounds.Min.X), max(y1, bounds.Min.Y)
	x2, y2 = min(x2, bounds.Max.X), min(y2, bounds.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return
	}
	for x := x1; x < x2; x++ {
		img.Set(x, y1, c)
		img.Set(x, y2-1, c)
	}
	for y := y1; y < y2; y++ {
		img.Set(x1, y, c)
		img.Set(x2-1, y, c)
	}
}

// drawLabel draws text centered on (x, y) with a one-pixel outline.
func drawLabel(img *image.RGBA, text string, x, y int) {
	offsetX := x - len(text)*glyphWidth/2
	offsetY := y + glyphHeight/2

	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	d.Src = image.NewUniform(outlineColor)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(offsetX+dx, offsetY+dy)
			d.DrawString(text)
		}
	}
	d.Src = image.NewUniform(textColor)
	d.Dot = fixed.P(offsetX, offsetY)
	d.DrawString(text)
}
