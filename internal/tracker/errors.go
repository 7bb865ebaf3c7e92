package tracker

import "errors"

// Configuration errors. Callers test for them with errors.Is; the returned
// errors wrap these with details.
var (
	// ErrNotInitialized is returned when a call needs Init to have happened first.
	ErrNotInitialized = errors.New("tracker not initialized")

	// ErrAlreadyInitialized is returned by Init and by pre-init settings
	// (clip planes, resolution) once the tracker is initialized.
	ErrAlreadyInitialized = errors.New("tracker already initialized")

	// ErrUnsupportedFormat is returned when a frame's pixel layout differs
	// from the one the tracker was configured for.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrBusy is returned when the tracker is re-entered during a frame pass.
	ErrBusy = errors.New("tracker busy processing a frame")

	// ErrDuplicateMarker is returned when a marker code is associated twice.
	ErrDuplicateMarker = errors.New("marker already associated")

	// ErrUnknownMarker is returned for operations on an id that was never issued.
	ErrUnknownMarker = errors.New("unknown marker id")

	// ErrInvalidConfig is returned for out-of-range parameters and malformed
	// configuration or marker description files.
	ErrInvalidConfig = errors.New("invalid configuration")
)
