package imaging

import (
	"image"
	"image/color"
	"testing"
)

var allFormats = []PixelFormat{FormatRGB24, FormatBGR24, FormatRGBA32, FormatARGB32, FormatBGRA32, FormatGray8}

func TestPixelFormatNames(t *testing.T) {
	for _, f := range allFormats {
		parsed, err := ParsePixelFormat(f.String())
		if err != nil {
			t.Errorf("ParsePixelFormat(%q) error: %v", f.String(), err)
			continue
		}
		if parsed != f {
			t.Errorf("ParsePixelFormat(%q) = %v, want %v", f.String(), parsed, f)
		}
	}
	if f, err := ParsePixelFormat(" BGRA32 "); err != nil || f != FormatBGRA32 {
		t.Errorf("ParsePixelFormat is not case-insensitive: %v, %v", f, err)
	}
	if _, err := ParsePixelFormat("yuv420"); err == nil {
		t.Error("ParsePixelFormat should reject unknown layouts")
	}
	if PixelFormat(99).BytesPerPixel() != 0 {
		t.Error("unknown layout should have zero bytes per pixel")
	}
}

func TestNewFrame(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		stride  int
		format  PixelFormat
		pixLen  int
		wantErr bool
	}{
		{"packed", 4, 3, 0, FormatRGB24, 36, false},
		{"padded rows", 4, 3, 16, FormatRGB24, 16*2 + 12, false},
		{"short buffer", 4, 3, 0, FormatRGB24, 35, true},
		{"stride too small", 4, 3, 8, FormatRGB24, 64, true},
		{"zero width", 0, 3, 0, FormatGray8, 10, true},
		{"unknown layout", 4, 3, 0, PixelFormat(7), 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrame(tt.w, tt.h, tt.stride, tt.format, make([]byte, tt.pixLen))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFrame error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && f.Stride < tt.w*tt.format.BytesPerPixel() {
				t.Errorf("Stride = %d", f.Stride)
			}
		})
	}
}

func TestFrameRGBRoundTrip(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			f := AllocFrame(3, 2, format)
			f.SetRGB(1, 1, 30, 60, 90)
			r, g, b := f.RGB(1, 1)
			if format == FormatGray8 {
				if r != 60 || g != 60 || b != 60 {
					t.Errorf("gray pixel = (%d,%d,%d), want 60", r, g, b)
				}
			} else if r != 30 || g != 60 || b != 90 {
				t.Errorf("RGB = (%d,%d,%d), want (30,60,90)", r, g, b)
			}
			if l := f.Luminance(1, 1); l != 60 {
				t.Errorf("Luminance = %d, want 60", l)
			}
		})
	}
}

func TestLuminanceAtClamps(t *testing.T) {
	f := AllocFrame(2, 2, FormatRGB24)
	f.SetRGB(0, 0, 90, 90, 90)
	f.SetRGB(1, 1, 210, 210, 210)
	if v := f.LuminanceAt(-5, -5); v != 90 {
		t.Errorf("LuminanceAt(-5,-5) = %v, want 90", v)
	}
	if v := f.LuminanceAt(9, 9); v != 210 {
		t.Errorf("LuminanceAt(9,9) = %v, want 210", v)
	}
}

func TestFrameFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	src.SetNRGBA(3, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	for _, format := range []PixelFormat{FormatRGB24, FormatARGB32, FormatBGRA32} {
		f, err := FrameFromImage(src, format)
		if err != nil {
			t.Fatalf("FrameFromImage(%s) error: %v", format, err)
		}
		if f.Width != 4 || f.Height != 2 {
			t.Errorf("%s: size %dx%d", format, f.Width, f.Height)
		}
		if r, g, b := f.RGB(3, 1); r != 10 || g != 20 || b != 30 {
			t.Errorf("%s: RGB = (%d,%d,%d)", format, r, g, b)
		}
		back := f.ToImage()
		if c := back.NRGBAAt(3, 1); c.R != 10 || c.G != 20 || c.B != 30 || c.A != 255 {
			t.Errorf("%s: ToImage pixel = %+v", format, c)
		}
	}

	if _, err := FrameFromImage(src, PixelFormat(42)); err == nil {
		t.Error("expected error for unknown layout")
	}
	if _, err := FrameFromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), FormatRGB24); err == nil {
		t.Error("expected error for empty image")
	}
}
