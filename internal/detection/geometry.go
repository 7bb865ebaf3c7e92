package detection

import "math"

// Point is a subpixel position in raster coordinates. Pixel (x, y) covers
// the area [x, x+1) × [y, y+1), so its centre is (x+0.5, y+0.5).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// pixel is an integer raster position used while tracing.
type pixel struct {
	x, y int
}

func (p pixel) center() Point { return Point{X: float64(p.x) + 0.5, Y: float64(p.y) + 0.5} }

// line is a normalized implicit line a*x + b*y = c with a²+b² = 1.
type line struct {
	a, b, c float64
}

// fitLine fits a line through points by total least squares (principal axis
// of the point covariance). It returns false for fewer than two distinct points.
func fitLine(pts []Point) (line, bool) {
	n := float64(len(pts))
	if len(pts) < 2 {
		return line{}, false
	}
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= n
	my /= n

	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := p.X-mx, p.Y-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx+syy < 1e-12 {
		return line{}, false
	}

	// Direction of the principal eigenvector of [[sxx sxy] [sxy syy]].
	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
	dirX, dirY := math.Cos(theta), math.Sin(theta)
	a, b := -dirY, dirX
	return line{a: a, b: b, c: a*mx + b*my}, true
}

// shiftAway moves the line by d along its normal, away from point p.
func (l line) shiftAway(p Point, d float64) line {
	side := l.a*p.X + l.b*p.Y - l.c
	if side > 0 {
		return line{a: l.a, b: l.b, c: l.c - d}
	}
	return line{a: l.a, b: l.b, c: l.c + d}
}

// intersect returns the crossing point of two lines; false when parallel.
func intersect(l1, l2 line) (Point, bool) {
	det := l1.a*l2.b - l2.a*l1.b
	if math.Abs(det) < 1e-9 {
		return Point{}, false
	}
	return Point{
		X: (l1.c*l2.b - l2.c*l1.b) / det,
		Y: (l1.a*l2.c - l2.a*l1.c) / det,
	}, true
}

// polygonArea returns the signed shoelace area; positive for clockwise
// order in raster coordinates (y down).
func polygonArea(pts []Point) float64 {
	var s float64
	n := len(pts)
	for i := 0; i < n; i++ {
		p, q := pts[i], pts[(i+1)%n]
		s += p.X*q.Y - q.X*p.Y
	}
	return s / 2
}

// isConvex reports whether the polygon turns the same way at every vertex.
func isConvex(pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if math.Abs(cross) < 1e-9 {
			return false
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// distSqToLineScaled returns the squared distance of p from the infinite line
// through a and b, multiplied by |b-a|².
func distSqToLineScaled(p, a, b pixel) int {
	dx, dy := b.x-a.x, b.y-a.y
	cross := dx*(p.y-a.y) - dy*(p.x-a.x)
	return cross * cross
}
