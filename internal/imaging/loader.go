package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sync"
)

// FrameCache provides thread-safe caching of decoded still images converted
// to frames, so repeated tool calls on the same capture do not hit the disk.
//
// Frames are keyed by file path and pixel layout. Once a frame is loaded,
// subsequent Load() calls for the same key return the cached copy.
//
// # Memory Management
//
// Cached frames remain in memory until explicitly removed via Evict() or Clear().
//
// # Example Usage
//
//	cache := imaging.NewFrameCache()
//	frame, err := cache.Load("/path/to/capture.png", imaging.FormatRGBA32)
//	if err != nil {
//	    return err
//	}
type FrameCache struct {
	mu     sync.RWMutex
	frames map[frameKey]*Frame
}

type frameKey struct {
	path   string
	format PixelFormat
}

// NewFrameCache creates and initializes a new empty frame cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{
		frames: make(map[frameKey]*Frame),
	}
}

// Load retrieves a frame from the cache or decodes it from disk.
//
// Parameters:
//   - path: Path to a PNG, JPEG, or GIF image.
//   - format: Pixel layout the frame should be converted to.
//
// Returns:
//   - *Frame: The decoded frame. Callers must not modify its pixels.
//   - error: Non-nil if the file cannot be opened, decoded, or converted.
func (c *FrameCache) Load(path string, format PixelFormat) (*Frame, error) {
	key := frameKey{path: path, format: format}
	c.mu.RLock()
	if f, ok := c.frames[key]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	frame, err := FrameFromImage(img, format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}

	c.mu.Lock()
	c.frames[key] = frame
	c.mu.Unlock()

	return frame, nil
}

// Clear removes all frames from the cache.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[frameKey]*Frame)
	c.mu.Unlock()
}

// Evict removes every cached layout of the given path.
func (c *FrameCache) Evict(path string) {
	c.mu.Lock()
	for k := range c.frames {
		if k.path == path {
			delete(c.frames, k)
		}
	}
	c.mu.Unlock()
}

// Len reports the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// DecodeFile opens and decodes a single image file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// FrameInfo describes a frame loaded from disk.
type FrameInfo struct {
	// Width is the frame width in pixels.
	Width int `json:"width"`

	// Height is the frame height in pixels.
	Height int `json:"height"`

	// Format is the file format derived from the extension: "png", "jpeg", "gif", or "unknown".
	Format string `json:"format"`

	// PixelFormat is the in-memory layout the frame was converted to.
	PixelFormat string `json:"pixel_format"`

	// OtsuThreshold is the automatic binarization threshold for this frame.
	OtsuThreshold int `json:"otsu_threshold"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadFrameInfo loads a frame through the cache and reports its metadata.
func LoadFrameInfo(cache *FrameCache, path string, format PixelFormat) (*FrameInfo, error) {
	frame, err := cache.Load(path, format)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fileFormat := "unknown"
	switch filepath.Ext(path) {
	case ".png":
		fileFormat = "png"
	case ".jpg", ".jpeg":
		fileFormat = "jpeg"
	case ".gif":
		fileFormat = "gif"
	}

	return &FrameInfo{
		Width:         frame.Width,
		Height:        frame.Height,
		Format:        fileFormat,
		PixelFormat:   frame.Format.String(),
		OtsuThreshold: int(OtsuThreshold(frame)),
		FileSizeBytes: stat.Size(),
	}, nil
}
