package imaging

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// PixelFormat identifies the byte layout of a single pixel in a Frame.
type PixelFormat int

const (
	// FormatRGB24 is 3 bytes per pixel: R, G, B.
	FormatRGB24 PixelFormat = iota
	// FormatBGR24 is 3 bytes per pixel: B, G, R.
	FormatBGR24
	// FormatRGBA32 is 4 bytes per pixel: R, G, B, A.
	FormatRGBA32
	// FormatARGB32 is 4 bytes per pixel: A, R, G, B.
	FormatARGB32
	// FormatBGRA32 is 4 bytes per pixel: B, G, R, A.
	FormatBGRA32
	// FormatGray8 is 1 byte per pixel of luminance.
	FormatGray8
)

var formatNames = map[PixelFormat]string{
	FormatRGB24:  "rgb24",
	FormatBGR24:  "bgr24",
	FormatRGBA32: "rgba32",
	FormatARGB32: "argb32",
	FormatBGRA32: "bgra32",
	FormatGray8:  "gray8",
}

// String returns the lowercase layout name, e.g. "rgba32".
func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// BytesPerPixel returns the pixel size of the layout, or 0 for an unknown layout.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24, FormatBGR24:
		return 3
	case FormatRGBA32, FormatARGB32, FormatBGRA32:
		return 4
	case FormatGray8:
		return 1
	}
	return 0
}

// ParsePixelFormat maps a layout name ("rgb24", "BGRA32", ...) to a PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for f, s := range formatNames {
		if s == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format: %q", name)
}

// MarshalText implements encoding.TextMarshaler so formats read naturally in
// YAML and JSON configuration.
func (f PixelFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *PixelFormat) UnmarshalText(text []byte) error {
	parsed, err := ParsePixelFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Frame is a raw video frame as delivered by a capture device.
//
// Pixel (x, y) starts at byte offset y*Stride + x*Format.BytesPerPixel().
// A Frame is treated as read-only by every consumer in this module.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// NewFrame wraps an existing pixel buffer. A stride of 0 means tightly packed rows.
//
// Returns an error if the dimensions are not positive, the layout is unknown,
// or the buffer is too short for the declared geometry.
func NewFrame(width, height, stride int, format PixelFormat, pix []byte) (*Frame, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported pixel format: %s", format)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if stride == 0 {
		stride = width * bpp
	}
	if stride < width*bpp {
		return nil, fmt.Errorf("stride %d too small for %d pixels of %s", stride, width, format)
	}
	need := stride*(height-1) + width*bpp
	if len(pix) < need {
		return nil, fmt.Errorf("pixel buffer too short: have %d bytes, need %d", len(pix), need)
	}
	return &Frame{Width: width, Height: height, Stride: stride, Format: format, Pix: pix}, nil
}

// AllocFrame returns a zeroed, tightly packed frame.
func AllocFrame(width, height int, format PixelFormat) *Frame {
	bpp := format.BytesPerPixel()
	return &Frame{
		Width:  width,
		Height: height,
		Stride: width * bpp,
		Format: format,
		Pix:    make([]byte, width*height*bpp),
	}
}

// Luminance returns the luminance proxy of pixel (x, y): the mean of the
// three colour channels, or the stored value for Gray8. Alpha is ignored.
// No bounds checking beyond the slice's own is performed.
func (f *Frame) Luminance(x, y int) uint8 {
	r, g, b := f.RGB(x, y)
	return uint8((int(r) + int(g) + int(b)) / 3)
}

// LuminanceAt is the bilinear-free float variant of Luminance clamped to the
// frame, used by the pattern sampler.
func (f *Frame) LuminanceAt(x, y int) float64 {
	x = clamp(x, 0, f.Width-1)
	y = clamp(y, 0, f.Height-1)
	r, g, b := f.RGB(x, y)
	return float64(int(r)+int(g)+int(b)) / 3
}

// RGB returns the colour channels of pixel (x, y) regardless of layout.
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	off := y*f.Stride + x*f.Format.BytesPerPixel()
	p := f.Pix[off:]
	switch f.Format {
	case FormatRGB24, FormatRGBA32:
		return p[0], p[1], p[2]
	case FormatBGR24, FormatBGRA32:
		return p[2], p[1], p[0]
	case FormatARGB32:
		return p[1], p[2], p[3]
	case FormatGray8:
		return p[0], p[0], p[0]
	}
	return 0, 0, 0
}

// SetRGB writes pixel (x, y); alpha channels are set opaque.
func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	off := y*f.Stride + x*f.Format.BytesPerPixel()
	p := f.Pix[off:]
	switch f.Format {
	case FormatRGB24:
		p[0], p[1], p[2] = r, g, b
	case FormatRGBA32:
		p[0], p[1], p[2], p[3] = r, g, b, 255
	case FormatBGR24:
		p[0], p[1], p[2] = b, g, r
	case FormatBGRA32:
		p[0], p[1], p[2], p[3] = b, g, r, 255
	case FormatARGB32:
		p[0], p[1], p[2], p[3] = 255, r, g, b
	case FormatGray8:
		p[0] = uint8((int(r) + int(g) + int(b)) / 3)
	}
}

// FrameFromImage converts a decoded image into a tightly packed Frame of the
// requested layout. The source is first normalized to NRGBA so every decoder
// output (paletted GIF, YCbCr JPEG, 16-bit PNG) takes the same path.
func FrameFromImage(img image.Image, format PixelFormat) (*Frame, error) {
	if format.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("unsupported pixel format: %s", format)
	}
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	frame := AllocFrame(w, h, format)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			frame.SetRGB(x, y, row[i], row[i+1], row[i+2])
		}
	}
	return frame, nil
}

// ToImage converts the frame back into an *image.NRGBA for encoding or drawing.
func (f *Frame) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGB(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
		}
	}
	return img
}
