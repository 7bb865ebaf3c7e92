package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageResult contains an encoded image.
type ImageResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodeImage scales img and encodes it as base64 PNG. Scaling uses
// nearest-neighbour sampling so marker cells keep hard edges; a scale of 1
// or less than or equal to 0 leaves the image as is.
func EncodeImage(img image.Image, scale float64) (*ImageResult, error) {
	out := img
	if scale > 0 && scale != 1.0 {
		w := int(float64(img.Bounds().Dx()) * scale)
		h := int(float64(img.Bounds().Dy()) * scale)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("scale %v leaves an empty image", scale)
		}
		out = imaging.Resize(img, w, h, imaging.NearestNeighbor)
	}

	encoded, err := encodePNGBase64(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &ImageResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// CropFrame extracts the region [x1, x2) × [y1, y2) of a frame, clipped to
// the frame, and encodes it with EncodeImage.
func CropFrame(frame *Frame, x1, y1, x2, y2 int, scale float64) (*ImageResult, error) {
	x1, x2 = clamp(x1, 0, frame.Width), clamp(x2, 0, frame.Width)
	y1, y2 = clamp(y1, 0, frame.Height), clamp(y2, 0, frame.Height)
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside frame %dx%d",
			x1, y1, x2, y2, frame.Width, frame.Height)
	}

	cropped := imaging.Crop(frame.ToImage(), image.Rect(x1, y1, x2, y2))
	return EncodeImage(cropped, scale)
}

// SaveImage writes img to path. The format follows the file extension.
func SaveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
