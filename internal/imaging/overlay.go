package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Outline is a closed polygon to draw over a frame, typically a detected
// marker border. Label, when set, is drawn next to the first vertex.
type Outline struct {
	Label  string
	Points [][2]float64
}

// OverlayResult contains the frame with outlines drawn on top.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Outlines    int    `json:"outlines"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// DrawOverlay draws each outline on a copy of the frame.
//
// When colorHex is empty every outline gets its own hue, spread by the golden
// angle so neighbouring markers stay distinguishable. An unparsable colorHex
// falls back to red.
func DrawOverlay(frame *Frame, outlines []Outline, colorHex string) (*OverlayResult, error) {
	img := frame.ToImage()

	var solid *colorful.Color
	if colorHex != "" {
		c, err := colorful.Hex(colorHex)
		if err != nil {
			c = colorful.Color{R: 1, G: 0, B: 0}
		}
		solid = &c
	}

	for i, o := range outlines {
		c := colorful.Hsv(math.Mod(float64(i)*137.508, 360), 0.85, 0.95)
		if solid != nil {
			c = *solid
		}
		r, g, b := c.RGB255()
		stroke := color.NRGBA{R: r, G: g, B: b, A: 255}

		n := len(o.Points)
		for j := 0; j < n; j++ {
			p := o.Points[j]
			q := o.Points[(j+1)%n]
			drawLine(img, p[0], p[1], q[0], q[1], stroke)
		}
		if n > 0 && o.Label != "" {
			x := int(math.Round(o.Points[0][0])) + 2
			y := int(math.Round(o.Points[0][1])) + 2
			drawLabel(img, x, y, o.Label, color.NRGBA{255, 255, 255, 255}, color.NRGBA{0, 0, 0, 200})
		}
	}

	encoded, err := encodePNGBase64(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}

	return &OverlayResult{
		Width:       frame.Width,
		Height:      frame.Height,
		Outlines:    len(outlines),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// drawLine rasterizes a segment with Bresenham's algorithm.
func drawLine(img *image.NRGBA, x0f, y0f, x1f, y1f float64, c color.NRGBA) {
	x0, y0 := int(math.Round(x0f)), int(math.Round(y0f))
	x1, y1 := int(math.Round(x1f)), int(math.Round(y1f))
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		setClipped(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawLabel draws text on a dark box with its top-left corner at (x, y).
func drawLabel(img *image.NRGBA, x, y int, text string, fg, bg color.NRGBA) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	for dy := -1; dy <= h; dy++ {
		for dx := -1; dx <= w; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Metrics().Ascent.Ceil())},
	}
	d.DrawString(text)
}
