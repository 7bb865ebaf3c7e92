package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// BinaryImageResult contains a binarized frame encoded as base64 PNG.
//
// Foreground (1) pixels are white (255) and background (0) pixels black.
type BinaryImageResult struct {
	// Width of the output image in pixels (same as input).
	Width int `json:"width"`

	// Height of the output image in pixels (same as input).
	Height int `json:"height"`

	// Threshold is the luminance threshold that produced the raster.
	Threshold int `json:"threshold"`

	// ForegroundPercent is the share of foreground pixels (0-100).
	ForegroundPercent float64 `json:"foreground_percent"`

	// ImageBase64 is the raster encoded as base64 PNG.
	ImageBase64 string `json:"image_base64"`

	// MimeType is always "image/png".
	MimeType string `json:"mime_type"`
}

// EncodeBinaryPNG renders a binary raster as a grayscale PNG.
//
// Parameters:
//   - raster: The raster to encode. Must not be nil.
//   - threshold: The threshold reported back in the result.
//
// Returns:
//   - *BinaryImageResult: Base64 PNG plus foreground statistics.
//   - error: Non-nil if PNG encoding fails.
func EncodeBinaryPNG(raster *BinaryRaster, threshold uint8) (*BinaryImageResult, error) {
	img := image.NewGray(image.Rect(0, 0, raster.Width, raster.Height))
	for i, v := range raster.Pix {
		if v != 0 {
			img.Pix[i] = 255
		}
	}

	encoded, err := encodePNGBase64(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binary image: %w", err)
	}

	total := raster.Width * raster.Height
	percent := 0.0
	if total > 0 {
		percent = float64(raster.Count()) / float64(total) * 100
	}

	return &BinaryImageResult{
		Width:             raster.Width,
		Height:            raster.Height,
		Threshold:         int(threshold),
		ForegroundPercent: percent,
		ImageBase64:       encoded,
		MimeType:          "image/png",
	}, nil
}

// RasterToGray converts a binary raster to an *image.Gray (0 or 255 per pixel).
func RasterToGray(raster *BinaryRaster) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, raster.Width, raster.Height))
	for i, v := range raster.Pix {
		if v != 0 {
			img.Pix[i] = 255
		}
	}
	return img
}

func encodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// setClipped writes a pixel only when it falls inside the image.
func setClipped(img *image.NRGBA, x, y int, c color.NRGBA) {
	if (image.Point{X: x, Y: y}).In(img.Rect) {
		img.SetNRGBA(x, y, c)
	}
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
