package detection

import "github.com/ironsheep/marker-tools-mcp/internal/imaging"

// neighbours in clockwise order for raster coordinates (y grows downward),
// starting east.
var neighbours = [8]pixel{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// traceBoundary follows the outer boundary of the background region that
// contains start using Moore-neighbour tracing, appending boundary pixels to
// dst in clockwise order. start must be the region's first pixel in raster
// order, so its west and northern neighbours are known to be foreground.
//
// Tracing stops when the walk re-enters start in the direction of its first
// step (Jacob's criterion) or after maxSteps moves.
func traceBoundary(b *imaging.BinaryRaster, start pixel, maxSteps int, dst []pixel) []pixel {
	dst = append(dst[:0], start)

	isBackground := func(p pixel) bool { return b.At(p.x, p.y) == 0 }

	cur := start
	// Pretend we arrived moving east so the search begins north-west.
	dir := 0
	firstDir := -1

	for step := 0; step < maxSteps; step++ {
		next, nextDir, ok := nextBoundaryPixel(cur, dir, isBackground)
		if !ok {
			// Isolated pixel.
			return dst
		}
		if cur == start {
			if firstDir < 0 {
				firstDir = nextDir
			} else if nextDir == firstDir {
				return dst
			}
		}
		cur, dir = next, nextDir
		if cur != start {
			dst = append(dst, cur)
		}
	}
	return dst
}

// nextBoundaryPixel scans clockwise around cur, starting just after the
// pixel we came from, and returns the first background neighbour.
func nextBoundaryPixel(cur pixel, dir int, isBackground func(pixel) bool) (pixel, int, bool) {
	first := (dir + 5) % 8
	for i := 0; i < 8; i++ {
		d := (first + i) % 8
		n := pixel{x: cur.x + neighbours[d].x, y: cur.y + neighbours[d].y}
		if isBackground(n) {
			return n, d, true
		}
	}
	return pixel{}, 0, false
}
