package tracker

import (
	"fmt"

	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
)

// GroupIDBase is the first id issued to composite markers by IDCodeTracker.
// Lower ids are the marker codes themselves.
const GroupIDBase = pattern.MaxID + 1

// IDCodeTracker tracks self-identifying ID markers. A single marker's id is
// its code, so callers can query IsFound(5) for the marker printed with code 5.
type IDCodeTracker struct {
	*core
	decoder     *pattern.IDMatcher
	nextGroupID int
}

// NewIDCodeTracker creates an uninitialized ID-code tracker.
func NewIDCodeTracker(opts Options) *IDCodeTracker {
	m := pattern.NewIDMatcher()
	return &IDCodeTracker{
		core:        newCore(FamilyIDCode, opts, m),
		decoder:     m,
		nextGroupID: GroupIDBase,
	}
}

// SetMinContrast sets the smallest cell contrast accepted when decoding.
func (t *IDCodeTracker) SetMinContrast(v float64) {
	if v > 0 {
		t.decoder.MinContrast = v
	}
}

// AssociateMarker registers the marker with the given code and physical
// side length. The returned id equals code. The association takes effect
// from the next processed frame.
func (t *IDCodeTracker) AssociateMarker(code int, size float64) (int, error) {
	if t.busy.Load() {
		return -1, ErrBusy
	}
	if code < 0 || code > pattern.MaxID {
		return -1, fmt.Errorf("%w: marker code %d outside 0-%d", ErrInvalidConfig, code, pattern.MaxID)
	}
	if !(size > 0) {
		return -1, fmt.Errorf("%w: marker size must be positive, got %v", ErrInvalidConfig, size)
	}
	if _, ok := t.byID[code]; ok {
		return -1, fmt.Errorf("%w: code %d", ErrDuplicateMarker, code)
	}
	t.addRecord(&record{
		id:      code,
		name:    fmt.Sprintf("id-%d", code),
		kind:    kindSingle,
		minConf: t.opts.MinConfidence,
		code:    code,
		size:    size,
	})
	t.log.Info("tracker: marker associated", "id", code, "size", size)
	return code, nil
}

// AssociateGroup registers a composite marker made of ID markers.
func (t *IDCodeTracker) AssociateGroup(spec GroupSpec) (int, error) {
	if t.busy.Load() {
		return -1, ErrBusy
	}
	r, err := t.newGroupRecord(t.nextGroupID, spec, func(m SubMarker) (int, error) {
		if m.Code < 0 || m.Code > pattern.MaxID {
			return 0, fmt.Errorf("%w: marker code %d outside 0-%d", ErrInvalidConfig, m.Code, pattern.MaxID)
		}
		return m.Code, nil
	})
	if err != nil {
		return -1, err
	}
	t.nextGroupID++
	t.addRecord(r)
	t.log.Info("tracker: group associated", "id", r.id, "name", r.name, "markers", len(r.subs), "policy", r.policy.String())
	return r.id, nil
}

// AssociateMultiMarkerFile registers a composite marker from an XML description.
func (t *IDCodeTracker) AssociateMultiMarkerFile(path string) (int, error) {
	spec, err := LoadMultiMarker(path)
	if err != nil {
		return -1, err
	}
	return t.AssociateGroup(spec)
}
