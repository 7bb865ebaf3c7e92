// Package imaging provides the frame model and pixel-level operations for
// marker tracking.
//
// A Frame is a raw capture buffer in one of several packed layouts (RGB24,
// BGR24, RGBA32, ARGB32, BGRA32, Gray8). Frames are read-only to every
// consumer; operations that produce pixels write into separate buffers.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Pixel (x, y) covers the continuous square [x, x+1) × [y, y+1)
//
// # Luminance
//
// Thresholding and sampling use a luminance proxy: the integer mean of the
// three colour channels (alpha ignored). It does not depend on channel order,
// so every layout binarizes identically.
//
// # Binarization
//
// BinarizeInto writes a BinaryRaster: 1 where the proxy is strictly above the
// threshold, 0 otherwise. Raising the threshold can only remove foreground
// pixels. OtsuThreshold picks a threshold from the frame histogram.
//
// # Thread Safety
//
// FrameCache is safe for concurrent use. Other functions are stateless and
// may run concurrently on different destinations.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Unknown pixel layouts or buffers too short for their geometry
//   - Destination rasters whose size differs from the frame (ErrDimensionMismatch)
//   - File I/O and decoding errors during image loading
//   - Encoding errors during PNG output
package imaging
