package tracker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
	"github.com/ironsheep/marker-tools-mcp/internal/pose"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// texture returns the luminance of a marker at (u, v) in [0, 1)², measured
// from the marker's top-left corner.
type texture func(u, v float64) float64

// placed is a marker drawn into a synthetic scene.
type placed struct {
	tex  texture
	size float64
	pose mgl64.Mat4
}

func testCamera() pose.Camera {
	return pose.Camera{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 320, Cy: 240}
}

func testOptions() Options {
	opts := DefaultOptions(imaging.FormatRGB24)
	opts.Logger = discardLogger
	return opts
}

// idTexture draws an ID marker: a dark border ring around the data cells.
func idTexture(t *testing.T, code int) texture {
	t.Helper()
	cells, err := pattern.EncodeID(code)
	if err != nil {
		t.Fatalf("EncodeID(%d) error: %v", code, err)
	}
	const n = pattern.IDGridSize
	return func(u, v float64) float64 {
		c, r := int(u*n), int(v*n)
		if r <= 0 || c <= 0 || r >= n-1 || c >= n-1 {
			return 0
		}
		if cells[(r-1)*(n-2)+(c-1)] {
			return 255
		}
		return 0
	}
}

// headOn returns a pose facing the camera squarely, centred on camera-frame
// point (x, y, z).
func headOn(x, y, z float64) mgl64.Mat4 {
	return mgl64.Translate3D(x, y, z)
}

// renderScene ray-casts every pixel against the marker planes with 4×4
// supersampling. Everything outside a marker is white.
func renderScene(cam pose.Camera, format imaging.PixelFormat, markers ...placed) *imaging.Frame {
	frame := imaging.AllocFrame(cam.Width, cam.Height, format)
	const ss = 4
	for py := 0; py < cam.Height; py++ {
		for px := 0; px < cam.Width; px++ {
			var sum float64
			for sy := 0; sy < ss; sy++ {
				for sx := 0; sx < ss; sx++ {
					x := float64(px) + (float64(sx)+0.5)/ss
					y := float64(py) + (float64(sy)+0.5)/ss
					sum += shade(cam, x, y, markers)
				}
			}
			v := uint8(sum/(ss*ss) + 0.5)
			frame.SetRGB(px, py, v, v, v)
		}
	}
	return frame
}

func shade(cam pose.Camera, x, y float64, markers []placed) float64 {
	ray := mgl64.Vec3{(x - cam.Cx) / cam.Fx, (y - cam.Cy) / cam.Fy, 1}
	for _, m := range markers {
		rot := m.pose.Mat3()
		t := m.pose.Col(3).Vec3()
		normal := rot.Col(2)
		den := normal.Dot(ray)
		if den == 0 {
			continue
		}
		lambda := normal.Dot(t) / den
		if lambda <= 0 {
			continue
		}
		local := rot.Transpose().Mul3x1(ray.Mul(lambda).Sub(t))
		u := local.X()/m.size + 0.5
		v := local.Y()/m.size + 0.5
		if u >= 0 && u < 1 && v >= 0 && v < 1 {
			return m.tex(u, v)
		}
	}
	return 255
}

func blankFrame(cam pose.Camera, format imaging.PixelFormat) *imaging.Frame {
	return renderScene(cam, format)
}
