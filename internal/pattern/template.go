package pattern

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
)

const (
	// DefaultTemplateSize is the patch resolution used for template markers.
	DefaultTemplateSize = 16

	// DefaultPatternRatio is the centred share of the marker width occupied
	// by the pattern; the remainder is the dark border.
	DefaultPatternRatio = 0.5
)

// Template is a reference appearance pattern.
//
// Values are stored mean-subtracted together with their Euclidean norm so a
// match only needs one dot product per candidate rotation.
type Template struct {
	Name string
	Size int

	values []float64
	norm   float64
}

// NewTemplate builds a template from Size×Size row-major luminance values (0-255).
//
// Returns an error if the value count does not match size or the pattern is
// a single flat colour, which cannot be correlated.
func NewTemplate(name string, values []float64, size int) (*Template, error) {
	if size <= 0 || len(values) != size*size {
		return nil, fmt.Errorf("template %q: expected %d values, got %d", name, size*size, len(values))
	}
	t := &Template{Name: name, Size: size, values: make([]float64, len(values))}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for i, v := range values {
		d := v - mean
		t.values[i] = d
		sq += d * d
	}
	t.norm = math.Sqrt(sq)
	if t.norm < 1e-6 {
		return nil, fmt.Errorf("template %q has no contrast", name)
	}
	return t, nil
}

// Correlate returns the normalized correlation between the template and a
// sampled patch of the same size, clamped to [0, 1]. A flat patch scores 0.
func (t *Template) Correlate(patch []float64) float64 {
	if len(patch) != len(t.values) {
		return 0
	}
	mean := 0.0
	for _, v := range patch {
		mean += v
	}
	mean /= float64(len(patch))

	var dot, sq float64
	for i, v := range patch {
		d := v - mean
		dot += d * t.values[i]
		sq += d * d
	}
	if sq < 1e-6 {
		return 0
	}
	score := dot / (math.Sqrt(sq) * t.norm)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// TemplateFromImage builds a template from a picture of the whole marker
// (border included). The centred ratio of the image is cropped, resized to
// size×size and converted to grayscale.
func TemplateFromImage(name string, img image.Image, size int, ratio float64) (*Template, error) {
	if size <= 0 {
		size = DefaultTemplateSize
	}
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultPatternRatio
	}
	b := img.Bounds()
	cw := int(math.Round(float64(b.Dx()) * ratio))
	ch := int(math.Round(float64(b.Dy()) * ratio))
	if cw <= 0 || ch <= 0 {
		return nil, fmt.Errorf("template %q: image too small", name)
	}

	inner := imaging.CropCenter(img, cw, ch)
	small := imaging.Resize(inner, size, size, imaging.Box)
	gray := imaging.Grayscale(small)

	values := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := gray.PixOffset(x, y)
			r, g, bb := gray.Pix[i], gray.Pix[i+1], gray.Pix[i+2]
			values[y*size+x] = float64(int(r)+int(g)+int(bb)) / 3
		}
	}
	return NewTemplate(name, values, size)
}

// LoadTemplateImage opens an image file and builds a template from it.
func LoadTemplateImage(path string, size int, ratio float64) (*Template, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern image: %w", err)
	}
	return TemplateFromImage(path, img, size, ratio)
}

// LoadPatt reads an ARToolKit-style pattern file.
//
// The file holds four orientations of the pattern, each as three blocks
// (blue, green, red) of size×size whitespace-separated integers. Only the
// first orientation is used; the matcher tries rotations itself.
func LoadPatt(path string, size int) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern file: %w", err)
	}
	defer f.Close()

	t, err := ParsePatt(path, f, size)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}
	return t, nil
}

// ParsePatt parses pattern file content from r; see LoadPatt.
func ParsePatt(name string, r io.Reader, size int) (*Template, error) {
	if size <= 0 {
		size = DefaultTemplateSize
	}
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	n := size * size
	values := make([]float64, n)
	for ch := 0; ch < 3; ch++ {
		for i := 0; i < n; i++ {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("unexpected end of data after %d values", ch*n+i)
			}
			v, err := strconv.Atoi(sc.Text())
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", sc.Text(), err)
			}
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("value %d out of range 0-255", v)
			}
			values[i] += float64(v) / 3
		}
	}
	return NewTemplate(name, values, size)
}

// Library is an ordered collection of templates. The index of a template is
// its pattern code.
type Library struct {
	templates []*Template
}

// Add appends a template and returns its code. All templates in a library
// must share one size.
func (l *Library) Add(t *Template) (int, error) {
	if len(l.templates) > 0 && l.templates[0].Size != t.Size {
		return -1, fmt.Errorf("template %q is %dx%d, library uses %dx%d",
			t.Name, t.Size, t.Size, l.templates[0].Size, l.templates[0].Size)
	}
	l.templates = append(l.templates, t)
	return len(l.templates) - 1, nil
}

// Len returns the number of templates.
func (l *Library) Len() int { return len(l.templates) }

// At returns the template with the given code.
func (l *Library) At(code int) *Template { return l.templates[code] }
