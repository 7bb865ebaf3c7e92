package pattern

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/transform"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
)

const (
	// IDGridSize is the number of cells along each side of an ID marker,
	// including the one-cell dark border.
	IDGridSize = 6

	// MaxID is the largest encodable marker number.
	MaxID = 255

	// DefaultMinContrast is the smallest luminance spread between the
	// darkest and brightest cell for an ID marker to be decoded.
	DefaultMinContrast = 40.0

	dataSize = IDGridSize - 2
)

// isOrientationCell reports whether data cell (r, c) is one of the four
// corner cells that fix the marker's rotation. Only (0, 0) is dark.
func isOrientationCell(r, c int) bool {
	return (r == 0 || r == dataSize-1) && (c == 0 || c == dataSize-1)
}

// EncodeID returns the 4×4 data cells of an ID marker, row-major from the
// top-left, true meaning light.
//
// Layout: the top-left corner cell is dark and the other three corners are
// light. The remaining twelve cells in row-major order carry the 8-bit id
// (most significant bit first) followed by a 4-bit check equal to the XOR of
// the id's two nibbles.
func EncodeID(id int) ([dataSize * dataSize]bool, error) {
	var cells [dataSize * dataSize]bool
	if id < 0 || id > MaxID {
		return cells, fmt.Errorf("marker id %d out of range 0-%d", id, MaxID)
	}
	check := (id & 0x0F) ^ (id >> 4)
	word := id<<4 | check

	bit := 11
	for r := 0; r < dataSize; r++ {
		for c := 0; c < dataSize; c++ {
			i := r*dataSize + c
			if isOrientationCell(r, c) {
				cells[i] = !(r == 0 && c == 0)
				continue
			}
			cells[i] = word>>bit&1 == 1
			bit--
		}
	}
	return cells, nil
}

// decodeGrid interprets a sampled IDGridSize×IDGridSize grid that is already
// in marker orientation. It returns the id and a confidence in [0, 1].
func decodeGrid(v []float64, minContrast float64) (int, float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	contrast := hi - lo
	if contrast < minContrast {
		return 0, 0, false
	}
	mid := (lo + hi) / 2
	light := func(r, c int) bool { return v[r*IDGridSize+c] > mid }

	for i := 0; i < IDGridSize; i++ {
		if light(0, i) || light(IDGridSize-1, i) || light(i, 0) || light(i, IDGridSize-1) {
			return 0, 0, false
		}
	}

	if light(1, 1) || !light(1, dataSize) || !light(dataSize, dataSize) || !light(dataSize, 1) {
		return 0, 0, false
	}

	word := 0
	for r := 0; r < dataSize; r++ {
		for c := 0; c < dataSize; c++ {
			if isOrientationCell(r, c) {
				continue
			}
			word <<= 1
			if light(r+1, c+1) {
				word |= 1
			}
		}
	}
	id, check := word>>4, word&0x0F
	if check != (id&0x0F)^(id>>4) {
		return 0, 0, false
	}

	half := contrast / 2
	var conf float64
	for _, x := range v {
		conf += math.Min(1, math.Abs(x-mid)/half)
	}
	return id, conf / float64(len(v)), true
}

// IDMatcher decodes self-identifying ID markers: a dark border one cell wide
// around a 4×4 grid of data cells.
type IDMatcher struct {
	// MinContrast is the smallest accepted luminance spread across cells.
	MinContrast float64

	sampler Sampler
	grid    []float64
}

// NewIDMatcher creates an ID matcher with default contrast requirements.
func NewIDMatcher() *IDMatcher {
	return &IDMatcher{
		MinContrast: DefaultMinContrast,
		sampler:     Sampler{Size: IDGridSize, Ratio: 1, Sub: 3, Fill: 0.5},
	}
}

// Match tries the four corner assignments and returns the one whose grid
// decodes. The orientation cells make at most one assignment valid.
func (m *IDMatcher) Match(frame *imaging.Frame, c detection.Candidate) (Match, bool) {
	if len(c.Corners) != 4 {
		return Match{}, false
	}
	for rot := 0; rot < 4; rot++ {
		m.grid = m.sampler.Sample(frame, c.Corners, rot, m.grid)
		if id, conf, ok := decodeGrid(m.grid, m.MinContrast); ok {
			return Match{Code: id, Rotation: rot, Confidence: conf}, true
		}
	}
	return Match{}, false
}

// RenderIDMarker draws an ID marker with cellPx pixels per cell, surrounded
// by a light quiet zone one cell wide. The marker itself occupies the centred
// IDGridSize×cellPx square of the returned image.
func RenderIDMarker(id, cellPx int) (image.Image, error) {
	if cellPx <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %d", cellPx)
	}
	cells, err := EncodeID(id)
	if err != nil {
		return nil, err
	}

	const n = IDGridSize + 2
	small := image.NewGray(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := uint8(255)
			switch {
			case x == 0 || y == 0 || x == n-1 || y == n-1:
			case x == 1 || y == 1 || x == n-2 || y == n-2:
				v = 0
			default:
				if !cells[(y-2)*dataSize+(x-2)] {
					v = 0
				}
			}
			small.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return transform.Resize(small, n*cellPx, n*cellPx, transform.NearestNeighbor), nil
}
