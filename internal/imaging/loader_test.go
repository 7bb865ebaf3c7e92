package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// createTestImage writes a solid-colour PNG into the test's temp dir and
// returns its path.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return writePNG(t, "test-image.png", img)
}

func writePNG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func TestNewFrameCache(t *testing.T) {
	cache := NewFrameCache()
	if cache == nil {
		t.Fatal("NewFrameCache returned nil")
	}
	if cache.frames == nil {
		t.Fatal("NewFrameCache did not initialize frames map")
	}
}

func TestFrameCache_Load(t *testing.T) {
	cache := NewFrameCache()
	imgPath := createTestImage(t, 100, 80, color.RGBA{255, 0, 0, 255})

	f1, err := cache.Load(imgPath, FormatRGB24)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f1.Width != 100 || f1.Height != 80 {
		t.Errorf("unexpected dimensions: got %dx%d, want 100x80", f1.Width, f1.Height)
	}
	if f1.Format != FormatRGB24 {
		t.Errorf("Format: got %s, want rgb24", f1.Format)
	}
	if r, g, b := f1.RGB(10, 10); r != 255 || g != 0 || b != 0 {
		t.Errorf("pixel: got (%d,%d,%d), want (255,0,0)", r, g, b)
	}

	f2, err := cache.Load(imgPath, FormatRGB24)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if f1 != f2 {
		t.Error("second Load did not return cached frame")
	}

	f3, err := cache.Load(imgPath, FormatBGRA32)
	if err != nil {
		t.Fatalf("Load in second layout failed: %v", err)
	}
	if f3 == f1 || f3.Format != FormatBGRA32 {
		t.Error("a different layout must produce its own frame")
	}
	if cache.Len() != 2 {
		t.Errorf("Len: got %d, want 2", cache.Len())
	}
}

func TestFrameCache_Load_Errors(t *testing.T) {
	cache := NewFrameCache()
	if _, err := cache.Load("/nonexistent/path/to/image.png", FormatRGB24); err == nil {
		t.Error("Load should fail for non-existent file")
	}

	bad := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load(bad, FormatRGB24); err == nil {
		t.Error("Load should fail for invalid image data")
	}

	good := createTestImage(t, 4, 4, color.White)
	if _, err := cache.Load(good, PixelFormat(42)); err == nil {
		t.Error("Load should fail for an unknown pixel format")
	}
	if cache.Len() != 0 {
		t.Errorf("failed loads were cached: Len = %d", cache.Len())
	}
}

func TestFrameCache_ClearAndEvict(t *testing.T) {
	cache := NewFrameCache()
	a := createTestImage(t, 20, 20, color.RGBA{0, 255, 0, 255})
	b := createTestImage(t, 20, 20, color.RGBA{0, 0, 255, 255})

	for _, p := range []string{a, b} {
		if _, err := cache.Load(p, FormatRGB24); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}
	if _, err := cache.Load(a, FormatGray8); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cache.Evict(a)
	if cache.Len() != 1 {
		t.Errorf("Evict left %d frames, want 1", cache.Len())
	}
	cache.Evict("/nonexistent/path")

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear left %d frames", cache.Len())
	}
}

func TestFrameCache_ConcurrentAccess(t *testing.T) {
	cache := NewFrameCache()
	imgPath := createTestImage(t, 50, 50, color.RGBA{128, 128, 128, 255})

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(imgPath, FormatRGBA32); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
}

func TestLoadFrameInfo(t *testing.T) {
	cache := NewFrameCache()
	imgPath := createTestImage(t, 200, 150, color.RGBA{255, 128, 64, 255})

	info, err := LoadFrameInfo(cache, imgPath, FormatBGR24)
	if err != nil {
		t.Fatalf("LoadFrameInfo failed: %v", err)
	}
	if info.Width != 200 || info.Height != 150 {
		t.Errorf("dimensions: got %dx%d, want 200x150", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}
	if info.PixelFormat != "bgr24" {
		t.Errorf("PixelFormat: got %s, want bgr24", info.PixelFormat)
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}
}

func TestLoadFrameInfo_FormatDetection(t *testing.T) {
	cache := NewFrameCache()
	tests := []struct {
		ext    string
		format string
	}{
		{".png", "png"},
		{".jpg", "jpeg"},
		{".jpeg", "jpeg"},
		{".gif", "gif"},
		{".xyz", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			// A valid PNG regardless of extension.
			path := writePNG(t, "test-format"+tt.ext, image.NewRGBA(image.Rect(0, 0, 10, 10)))
			info, err := LoadFrameInfo(cache, path, FormatRGB24)
			if err != nil {
				t.Fatalf("LoadFrameInfo failed: %v", err)
			}
			if info.Format != tt.format {
				t.Errorf("Format for %s: got %s, want %s", tt.ext, info.Format, tt.format)
			}
		})
	}
}

func TestLoadFrameInfo_NonExistent(t *testing.T) {
	if _, err := LoadFrameInfo(NewFrameCache(), "/nonexistent/image.png", FormatRGB24); err == nil {
		t.Error("LoadFrameInfo should fail for non-existent file")
	}
}
