package imaging

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a destination raster does not have
// the same dimensions as the frame being binarized.
var ErrDimensionMismatch = errors.New("raster dimensions do not match frame")

// BinaryRaster is a one-byte-per-pixel binary image. A value of 1 marks a
// foreground (bright) pixel, 0 a background (dark) pixel. Marker borders are
// printed dark, so the square detector traces the 0 regions.
type BinaryRaster struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBinaryRaster allocates a zeroed raster.
func NewBinaryRaster(width, height int) *BinaryRaster {
	return &BinaryRaster{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At returns the value at (x, y), treating out-of-range coordinates as foreground
// so contours never leak past the raster edge.
func (b *BinaryRaster) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 1
	}
	return b.Pix[y*b.Width+x]
}

// Count returns the number of foreground pixels.
func (b *BinaryRaster) Count() int {
	n := 0
	for _, v := range b.Pix {
		n += int(v)
	}
	return n
}

// Binarize thresholds a frame into a freshly allocated raster.
//
// A pixel becomes foreground (1) when its luminance proxy (see Frame.Luminance)
// is strictly greater than threshold. Because the comparison is strict and the
// proxy does not depend on threshold, the foreground set can only shrink as
// threshold grows.
func Binarize(frame *Frame, threshold uint8) *BinaryRaster {
	dst := NewBinaryRaster(frame.Width, frame.Height)
	// Dimensions match by construction.
	_ = BinarizeInto(frame, threshold, dst)
	return dst
}

// BinarizeInto thresholds frame into a pre-allocated raster, reusing its buffer.
//
// Each pixel layout has its own inner loop; all of them compare the same
// channel sum, so the result is identical for the same picture in any layout.
//
// # Errors
//
//   - ErrDimensionMismatch if dst is nil or sized differently from frame
//   - an error for a pixel layout without a fast path
func BinarizeInto(frame *Frame, threshold uint8, dst *BinaryRaster) error {
	if dst == nil || dst.Width != frame.Width || dst.Height != frame.Height || len(dst.Pix) != frame.Width*frame.Height {
		return ErrDimensionMismatch
	}

	// floor(sum/3) > t  <=>  sum > 3t+2
	t3 := 3*int(threshold) + 2
	w, h := frame.Width, frame.Height

	switch frame.Format {
	case FormatGray8:
		t := threshold
		for y := 0; y < h; y++ {
			src := frame.Pix[y*frame.Stride : y*frame.Stride+w]
			out := dst.Pix[y*w : (y+1)*w]
			for x, v := range src {
				if v > t {
					out[x] = 1
				} else {
					out[x] = 0
				}
			}
		}
	case FormatRGB24, FormatBGR24:
		binarizePacked(frame, dst, 3, 0, t3)
	case FormatRGBA32, FormatBGRA32:
		binarizePacked(frame, dst, 4, 0, t3)
	case FormatARGB32:
		binarizePacked(frame, dst, 4, 1, t3)
	default:
		return fmt.Errorf("no binarization path for pixel format %s", frame.Format)
	}
	return nil
}

// binarizePacked handles every layout whose three colour bytes are contiguous
// starting at byte first of each pixel. Channel order does not matter for a sum.
func binarizePacked(frame *Frame, dst *BinaryRaster, bpp, first, t3 int) {
	w, h := frame.Width, frame.Height
	for y := 0; y < h; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w*bpp]
		out := dst.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			i := x*bpp + first
			sum := int(row[i]) + int(row[i+1]) + int(row[i+2])
			if sum > t3 {
				out[x] = 1
			} else {
				out[x] = 0
			}
		}
	}
}

// Histogram returns the 256-bin histogram of the frame's luminance proxy.
func Histogram(frame *Frame) [256]int {
	var hist [256]int
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			hist[frame.Luminance(x, y)]++
		}
	}
	return hist
}

// OtsuThreshold picks the threshold that maximizes between-class variance of
// the luminance histogram. Uniform frames return 127.
func OtsuThreshold(frame *Frame) uint8 {
	hist := Histogram(frame)
	total := frame.Width * frame.Height
	if total == 0 {
		return 127
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var (
		sumB    float64
		wB      int
		best    float64
		bestT   = -1
		lastMax = -1
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			bestT = t
			lastMax = t
		} else if between == best && lastMax == t-1 {
			// Plateau: the split is equally good anywhere between the two modes.
			lastMax = t
		}
	}
	if bestT < 0 {
		return 127
	}
	return uint8((bestT + lastMax) / 2)
}
