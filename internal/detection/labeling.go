package detection

import "github.com/ironsheep/marker-tools-mcp/internal/imaging"

// run is a horizontal span of background pixels [x0, x1) on row y.
type run struct {
	y, x0, x1 int
}

// component summarizes one 8-connected region of background pixels.
type component struct {
	area                   int
	minX, minY, maxX, maxY int
	// start is the first pixel of the region in raster order; it always lies
	// on the outer boundary and is where tracing begins.
	start pixel
}

// labeler groups background pixels into connected components using run-length
// encoding and union-find over runs. Buffers are reused between frames.
type labeler struct {
	runs     []run
	rowStart []int
	parent   []int
	compOf   []int
	comps    []component
}

func (l *labeler) find(i int) int {
	for l.parent[i] != i {
		l.parent[i] = l.parent[l.parent[i]]
		i = l.parent[i]
	}
	return i
}

func (l *labeler) union(i, j int) {
	ri, rj := l.find(i), l.find(j)
	if ri == rj {
		return
	}
	// Keep the earlier run as root so roots stay in raster order.
	if ri < rj {
		l.parent[rj] = ri
	} else {
		l.parent[ri] = rj
	}
}

// label scans the raster and returns the components in raster order of their
// first pixel. The returned slice is owned by the labeler.
func (l *labeler) label(b *imaging.BinaryRaster) []component {
	w, h := b.Width, b.Height
	l.runs = l.runs[:0]
	if cap(l.rowStart) < h+1 {
		l.rowStart = make([]int, h+1)
	}
	l.rowStart = l.rowStart[:h+1]

	for y := 0; y < h; y++ {
		l.rowStart[y] = len(l.runs)
		row := b.Pix[y*w : (y+1)*w]
		x := 0
		for x < w {
			if row[x] != 0 {
				x++
				continue
			}
			x0 := x
			for x < w && row[x] == 0 {
				x++
			}
			l.runs = append(l.runs, run{y: y, x0: x0, x1: x})
		}
	}
	l.rowStart[h] = len(l.runs)

	n := len(l.runs)
	if cap(l.parent) < n {
		l.parent = make([]int, n)
		l.compOf = make([]int, n)
	}
	l.parent = l.parent[:n]
	l.compOf = l.compOf[:n]
	for i := range l.parent {
		l.parent[i] = i
		l.compOf[i] = -1
	}

	// Join runs on consecutive rows that touch, diagonals included.
	for y := 1; y < h; y++ {
		i, iEnd := l.rowStart[y-1], l.rowStart[y]
		j, jEnd := l.rowStart[y], l.rowStart[y+1]
		for i < iEnd && j < jEnd {
			p, c := l.runs[i], l.runs[j]
			if c.x0 <= p.x1 && p.x0 <= c.x1 {
				l.union(i, j)
			}
			if p.x1 < c.x1 {
				i++
			} else {
				j++
			}
		}
	}

	l.comps = l.comps[:0]
	for i, r := range l.runs {
		root := l.find(i)
		ci := l.compOf[root]
		if ci < 0 {
			ci = len(l.comps)
			l.compOf[root] = ci
			l.comps = append(l.comps, component{
				minX: r.x0, maxX: r.x1 - 1, minY: r.y, maxY: r.y,
				start: pixel{x: r.x0, y: r.y},
			})
		}
		c := &l.comps[ci]
		c.area += r.x1 - r.x0
		if r.x0 < c.minX {
			c.minX = r.x0
		}
		if r.x1-1 > c.maxX {
			c.maxX = r.x1 - 1
		}
		if r.y > c.maxY {
			c.maxY = r.y
		}
	}
	return l.comps
}
