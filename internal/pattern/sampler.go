package pattern

import (
	"math"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
)

// perspective maps the unit square onto a quadrilateral:
// (0,0)→q0, (1,0)→q1, (1,1)→q2, (0,1)→q3.
type perspective struct {
	a11, a12, a13 float64
	a21, a22, a23 float64
	a31, a32, a33 float64
}

func squareToQuad(q [4]detection.Point) perspective {
	x0, y0 := q[0].X, q[0].Y
	x1, y1 := q[1].X, q[1].Y
	x2, y2 := q[2].X, q[2].Y
	x3, y3 := q[3].X, q[3].Y

	dx3 := x0 - x1 + x2 - x3
	dy3 := y0 - y1 + y2 - y3
	if dx3 == 0 && dy3 == 0 {
		return perspective{
			a11: x1 - x0, a21: x2 - x1, a31: x0,
			a12: y1 - y0, a22: y2 - y1, a32: y0,
			a33: 1,
		}
	}
	dx1, dx2 := x1-x2, x3-x2
	dy1, dy2 := y1-y2, y3-y2
	den := dx1*dy2 - dx2*dy1
	a13 := (dx3*dy2 - dx2*dy3) / den
	a23 := (dx1*dy3 - dx3*dy1) / den
	return perspective{
		a11: x1 - x0 + a13*x1, a21: x3 - x0 + a23*x3, a31: x0,
		a12: y1 - y0 + a13*y1, a22: y3 - y0 + a23*y3, a32: y0,
		a13: a13, a23: a23, a33: 1,
	}
}

func (t perspective) apply(u, v float64) (float64, float64) {
	den := t.a13*u + t.a23*v + t.a33
	return (t.a11*u + t.a21*v + t.a31) / den, (t.a12*u + t.a22*v + t.a32) / den
}

// Sampler resamples the inside of a quad into a Size×Size grid of luminance
// values with perspective-correct coordinates.
//
// Ratio is the centred fraction of the marker's width covered by the grid
// (0.5 for classic template markers whose border is a quarter of the width
// on each side, 1.0 to sample the whole marker). Each cell averages Sub×Sub
// bilinear samples spread over the central Fill fraction of the cell.
type Sampler struct {
	Size  int
	Ratio float64
	Sub   int
	Fill  float64
}

// Sample fills dst (length Size*Size, row-major from the marker's top-left)
// treating corners[rot] as the top-left corner. corners must hold four points.
func (s Sampler) Sample(frame *imaging.Frame, corners []detection.Point, rot int, dst []float64) []float64 {
	n := s.Size * s.Size
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	var q [4]detection.Point
	for i := 0; i < 4; i++ {
		q[i] = corners[(i+rot)%4]
	}
	t := squareToQuad(q)

	border := (1 - s.Ratio) / 2
	span := s.Ratio / float64(s.Size)
	sub := s.Sub
	if sub < 1 {
		sub = 1
	}
	inv := 1 / float64(sub*sub)

	for row := 0; row < s.Size; row++ {
		for col := 0; col < s.Size; col++ {
			var sum float64
			for sy := 0; sy < sub; sy++ {
				fy := 0.5 + s.Fill*((float64(sy)+0.5)/float64(sub)-0.5)
				v := border + (float64(row)+fy)*span
				for sx := 0; sx < sub; sx++ {
					fx := 0.5 + s.Fill*((float64(sx)+0.5)/float64(sub)-0.5)
					u := border + (float64(col)+fx)*span
					x, y := t.apply(u, v)
					sum += bilinear(frame, x, y)
				}
			}
			dst[row*s.Size+col] = sum * inv
		}
	}
	return dst
}

// bilinear interpolates the luminance proxy at continuous raster position
// (x, y), where pixel centres sit at half-integer coordinates.
func bilinear(frame *imaging.Frame, x, y float64) float64 {
	fx, fy := x-0.5, y-0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	ax, ay := fx-x0, fy-y0
	ix, iy := int(x0), int(y0)

	v00 := frame.LuminanceAt(ix, iy)
	v10 := frame.LuminanceAt(ix+1, iy)
	v01 := frame.LuminanceAt(ix, iy+1)
	v11 := frame.LuminanceAt(ix+1, iy+1)

	top := v00 + (v10-v00)*ax
	bottom := v01 + (v11-v01)*ax
	return top + (bottom-top)*ay
}
