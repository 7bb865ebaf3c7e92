package detection

import (
	"math"
	"sort"

	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
)

// DefaultMaxCandidates is the default bound on candidate squares per frame.
const DefaultMaxCandidates = 300

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// (X1, Y1) is the top-left pixel and (X2, Y2) the bottom-right pixel, both inclusive.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Candidate is an unverified quadrilateral found in a binary raster.
//
// Corners holds the subpixel corner positions in clockwise order (raster
// coordinates, y down). The detector always emits four corners; other
// producers (tests, occlusion handling) may hand fewer to the matcher, which
// rejects them. Direction is the index of the corner that is the marker's
// top-left; the detector leaves it at 0 and the matcher fills it in.
type Candidate struct {
	Corners   []Point `json:"corners"`
	Direction int     `json:"direction"`

	// Area is the quadrilateral's area in square pixels.
	Area float64 `json:"area"`

	// PixelArea is the number of pixels in the traced region.
	PixelArea int `json:"pixel_area"`

	// Bounds is the bounding box of the traced region.
	Bounds Bounds `json:"bounds"`
}

// Ordered returns the corners rotated so the marker's top-left comes first.
func (c Candidate) Ordered() []Point {
	n := len(c.Corners)
	out := make([]Point, n)
	for i := range c.Corners {
		out[i] = c.Corners[(i+c.Direction)%n]
	}
	return out
}

// DetectorConfig tunes candidate extraction.
type DetectorConfig struct {
	// MaxCandidates bounds the number of returned squares. Excess squares
	// are dropped smallest first. Default 300.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`

	// MinArea is the minimum number of pixels in a region. Default 64.
	MinArea int `yaml:"min_area" json:"min_area"`

	// MaxAreaFraction is the largest region, as a fraction of the raster
	// area, still considered. Default 0.9.
	MaxAreaFraction float64 `yaml:"max_area_fraction" json:"max_area_fraction"`

	// VertexTolerance is the minimum deviation, relative to the contour's
	// longest chord, for a contour point to count as a corner. Default 0.05.
	VertexTolerance float64 `yaml:"vertex_tolerance" json:"vertex_tolerance"`

	// MinSide is the minimum side length of an accepted quad in pixels. Default 8.
	MinSide float64 `yaml:"min_side" json:"min_side"`
}

// DefaultDetectorConfig returns the standard detector settings.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxCandidates:   DefaultMaxCandidates,
		MinArea:         64,
		MaxAreaFraction: 0.9,
		VertexTolerance: 0.05,
		MinSide:         8,
	}
}

// Normalize replaces out-of-range values with defaults.
func (c *DetectorConfig) Normalize() {
	d := DefaultDetectorConfig()
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.MinArea <= 0 {
		c.MinArea = d.MinArea
	}
	if c.MaxAreaFraction <= 0 || c.MaxAreaFraction > 1 {
		c.MaxAreaFraction = d.MaxAreaFraction
	}
	if c.VertexTolerance <= 0 || c.VertexTolerance >= 0.5 {
		c.VertexTolerance = d.VertexTolerance
	}
	if c.MinSide <= 0 {
		c.MinSide = d.MinSide
	}
}

// Stats reports what happened during one detection pass.
type Stats struct {
	Components int `json:"components"`
	Traced     int `json:"traced"`
	Squares    int `json:"squares"`
	Dropped    int `json:"dropped"`
}

// Detector finds candidate squares in binary rasters. It keeps its work
// buffers between calls and is not safe for concurrent use.
type Detector struct {
	cfg     DetectorConfig
	labels  labeler
	contour []pixel
	out     []Candidate
}

// NewDetector creates a detector; zero config fields take defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	cfg.Normalize()
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// Detect returns candidate squares for the dark regions of b.
//
// # Algorithm
//
//  1. Run-length encode background runs and join them into 8-connected regions
//  2. Skip regions touching the raster edge or outside the area limits
//  3. Trace each region's outer boundary (Moore-neighbour)
//  4. Seed two corners with farthest-point search, then split the contour
//     recursively at points of maximum deviation; exactly four corners must remain
//  5. Reject non-convex or undersized quads
//  6. Refine each corner by intersecting least-squares lines fitted to the
//     two adjacent sides
//
// The output is sorted by area (largest first) and then by position, and is
// truncated to MaxCandidates. The returned slice is reused by the next call.
func (d *Detector) Detect(b *imaging.BinaryRaster) ([]Candidate, Stats) {
	var st Stats
	d.out = d.out[:0]
	if b == nil || b.Width < 3 || b.Height < 3 {
		return d.out, st
	}

	comps := d.labels.label(b)
	st.Components = len(comps)
	maxArea := int(d.cfg.MaxAreaFraction * float64(b.Width*b.Height))

	for _, c := range comps {
		if c.area < d.cfg.MinArea || c.area > maxArea {
			continue
		}
		if c.minX == 0 || c.minY == 0 || c.maxX == b.Width-1 || c.maxY == b.Height-1 {
			continue
		}
		bw, bh := c.maxX-c.minX+1, c.maxY-c.minY+1
		if float64(bw) < d.cfg.MinSide || float64(bh) < d.cfg.MinSide {
			continue
		}

		st.Traced++
		d.contour = traceBoundary(b, c.start, 4*c.area+8, d.contour)
		corners, ok := d.fitQuad(d.contour)
		if !ok {
			continue
		}
		area := polygonArea(corners)
		d.out = append(d.out, Candidate{
			Corners:   corners,
			Area:      area,
			PixelArea: c.area,
			Bounds:    Bounds{X1: c.minX, Y1: c.minY, X2: c.maxX, Y2: c.maxY},
		})
	}

	sort.SliceStable(d.out, func(i, j int) bool {
		a, b := d.out[i], d.out[j]
		if a.Area != b.Area {
			return a.Area > b.Area
		}
		if a.Bounds.Y1 != b.Bounds.Y1 {
			return a.Bounds.Y1 < b.Bounds.Y1
		}
		return a.Bounds.X1 < b.Bounds.X1
	})

	st.Squares = len(d.out)
	if len(d.out) > d.cfg.MaxCandidates {
		st.Dropped = len(d.out) - d.cfg.MaxCandidates
		d.out = d.out[:d.cfg.MaxCandidates]
	}
	return d.out, st
}

// Detect runs a one-off detection with default settings.
func Detect(b *imaging.BinaryRaster) ([]Candidate, Stats) {
	out, st := NewDetector(DefaultDetectorConfig()).Detect(b)
	return append([]Candidate(nil), out...), st
}

// fitQuad reduces a closed contour to four refined corners.
func (d *Detector) fitQuad(contour []pixel) ([]Point, bool) {
	n := len(contour)
	if n < 8 {
		return nil, false
	}

	// The farthest point from any point of a convex polygon is a vertex,
	// so a and b are corners regardless of where tracing started.
	a := farthest(contour, contour[0])
	b := farthest(contour, contour[a])
	if a == b {
		return nil, false
	}

	at := func(k int) pixel { return contour[(a+k)%n] }
	bk := (b - a + n) % n

	chord := math.Sqrt(float64(sqDist(contour[a], contour[b])))
	tol := math.Max(2.0, d.cfg.VertexTolerance*chord)
	tolSq := tol * tol

	verts := make([]int, 0, 5)
	verts = append(verts, 0)
	if !splitContour(at, 0, bk, tolSq, &verts) {
		return nil, false
	}
	verts = append(verts, bk)
	if !splitContour(at, bk, n, tolSq, &verts) {
		return nil, false
	}
	if len(verts) != 4 {
		return nil, false
	}

	raw := make([]Point, 4)
	for i, k := range verts {
		raw[i] = at(k).center()
	}
	if !isConvex(raw) || polygonArea(raw) <= 0 {
		return nil, false
	}
	for i := 0; i < 4; i++ {
		if raw[i].Dist(raw[(i+1)%4]) < d.cfg.MinSide {
			return nil, false
		}
	}

	return refineCorners(at, verts, n, raw), true
}

// splitContour finds contour vertices strictly between indices s and e
// (offsets along the contour) and appends them in order. It gives up once
// more than four vertices exist, since the result can no longer be a quad.
func splitContour(at func(int) pixel, s, e int, tolSq float64, verts *[]int) bool {
	if e-s < 2 {
		return true
	}
	ps, pe := at(s), at(e)
	chordSq := float64(sqDist(ps, pe))

	best, bestK := 0.0, -1
	for k := s + 1; k < e; k++ {
		var dSq float64
		if chordSq == 0 {
			dSq = float64(sqDist(at(k), ps))
		} else {
			dSq = float64(distSqToLineScaled(at(k), ps, pe)) / chordSq
		}
		if dSq > best {
			best, bestK = dSq, k
		}
	}
	if bestK < 0 || best <= tolSq {
		return true
	}
	if !splitContour(at, s, bestK, tolSq, verts) {
		return false
	}
	*verts = append(*verts, bestK)
	if len(*verts) > 4 {
		return false
	}
	return splitContour(at, bestK, e, tolSq, verts)
}

// refineCorners fits a line to the interior points of each side and returns
// the intersections of adjacent lines. Lines are pushed half a pixel outward
// because boundary pixel centres sit inside the true edge. A corner whose
// refinement fails or lands implausibly far away keeps its pixel position.
func refineCorners(at func(int) pixel, verts []int, n int, raw []Point) []Point {
	var cx, cy float64
	for _, p := range raw {
		cx += p.X / 4
		cy += p.Y / 4
	}
	centre := Point{X: cx, Y: cy}

	lines := make([]line, 4)
	okLine := make([]bool, 4)
	for i := 0; i < 4; i++ {
		s := verts[i]
		e := n
		if i < 3 {
			e = verts[i+1]
		}
		length := e - s
		margin := length / 10
		if margin < 1 {
			margin = 1
		}
		pts := make([]Point, 0, length)
		for k := s + margin; k <= e-margin; k++ {
			pts = append(pts, at(k).center())
		}
		if len(pts) < 2 {
			pts = pts[:0]
			for k := s; k <= e; k++ {
				pts = append(pts, at(k).center())
			}
		}
		l, ok := fitLine(pts)
		if ok {
			lines[i] = l.shiftAway(centre, 0.5)
			okLine[i] = true
		}
	}

	out := make([]Point, 4)
	for i := 0; i < 4; i++ {
		prev := (i + 3) % 4
		out[i] = raw[i]
		if !okLine[prev] || !okLine[i] {
			continue
		}
		p, ok := intersect(lines[prev], lines[i])
		if !ok {
			continue
		}
		side := math.Min(raw[i].Dist(raw[(i+1)%4]), raw[i].Dist(raw[prev]))
		if p.Dist(raw[i]) > math.Max(3, 0.15*side) {
			continue
		}
		out[i] = p
	}
	return out
}

func farthest(contour []pixel, from pixel) int {
	best, bestI := -1, 0
	for i, p := range contour {
		if d := sqDist(p, from); d > best {
			best, bestI = d, i
		}
	}
	return bestI
}

func sqDist(p, q pixel) int {
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}
