package display

import (
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/randomizedcoder/tether-oled/internal/render"
)

// textBaseline is the offset from a text line's top to its baseline.
const textBaseline = 8

// Canvas is an in-memory 1-bit frame. It implements Display with a no-op
// Present and is embedded by the device displays.
type Canvas struct {
	img  *image.Gray
	face font.Face
}

// NewCanvas creates a blank canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		img:  image.NewGray(image.Rect(0, 0, width, height)),
		face: basicfont.Face7x13,
	}
}

// NewPanelCanvas creates a canvas matching the status panel.
func NewPanelCanvas() *Canvas {
	return NewCanvas(render.Width, render.Height)
}

// Bounds returns the canvas rectangle.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Image returns the backing image. Lit pixels are 0xff.
func (c *Canvas) Image() *image.Gray {
	return c.img
}

// Lit reports whether the pixel at (x, y) is on.
func (c *Canvas) Lit(x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(c.img.Bounds()) {
		return false
	}
	return c.img.GrayAt(x, y).Y >= 0x80
}

// Clear turns every pixel off.
func (c *Canvas) Clear() error {
	for i := range c.img.Pix {
		c.img.Pix[i] = 0
	}
	return nil
}

// Draw rasterizes text and rectangles. Anything outside the canvas is clipped.
func (c *Canvas) Draw(prims []render.Primitive) error {
	for _, p := range prims {
		switch p := p.(type) {
		case render.TextLine:
			c.drawText(p)
		case render.FilledRect:
			c.fillRect(p)
		}
	}
	return nil
}

// Present is a no-op for a bare canvas.
func (c *Canvas) Present() error { return nil }

// Close is a no-op for a bare canvas.
func (c *Canvas) Close() error { return nil }

func (c *Canvas) drawText(t render.TextLine) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(color.Gray{Y: 0xff}),
		Face: c.face,
		Dot:  fixed.P(t.X, t.Y+textBaseline),
	}
	d.DrawString(t.Text)
}

func (c *Canvas) fillRect(r render.FilledRect) {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.W))
	y1 := int(math.Round(r.Y + r.H))
	rect := image.Rect(x0, y0, x1, y1).Intersect(c.img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c.img.SetGray(x, y, color.Gray{Y: 0xff})
		}
	}
}

// String renders the canvas as text, one character per pixel.
func (c *Canvas) String() string {
	b := c.img.Bounds()
	var sb strings.Builder
	sb.Grow((b.Dx() + 1) * b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c.Lit(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Pages packs the canvas into SSD1306 page order: one byte per column per
// 8-row page, least significant bit at the top.
func (c *Canvas) Pages() []byte {
	b := c.img.Bounds()
	pages := (b.Dy() + 7) / 8
	buf := make([]byte, pages*b.Dx())
	for page := 0; page < pages; page++ {
		for x := 0; x < b.Dx(); x++ {
			var v byte
			for bit := 0; bit < 8; bit++ {
				if c.Lit(b.Min.X+x, b.Min.Y+page*8+bit) {
					v |= 1 << bit
				}
			}
			buf[page*b.Dx()+x] = v
		}
	}
	return buf
}
