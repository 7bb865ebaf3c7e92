package tracker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
)

// TemplateTracker tracks markers identified by appearance templates. Every
// association, single or group, receives the next id in sequence. A pattern
// registered more than once (by file path or by the same *pattern.Template)
// keeps one library entry, so every id using it stays findable.
type TemplateTracker struct {
	*core
	lib        *pattern.Library
	byPath     map[string]int
	byTemplate map[*pattern.Template]int
	nextID     int
	tplSize    int
}

// NewTemplateTracker creates an uninitialized template tracker. Templates
// are sampled at pattern.DefaultTemplateSize with the classic half-width
// pattern area.
func NewTemplateTracker(opts Options) *TemplateTracker {
	lib := &pattern.Library{}
	m := pattern.NewTemplateMatcher(lib, pattern.DefaultTemplateSize, pattern.DefaultPatternRatio)
	return &TemplateTracker{
		core:       newCore(FamilyTemplate, opts, m),
		lib:        lib,
		byPath:     make(map[string]int),
		byTemplate: make(map[*pattern.Template]int),
		tplSize:    pattern.DefaultTemplateSize,
	}
}

// AssociatePattern registers a template with the given physical side length
// and returns the issued id. The same template may be associated at several
// sizes.
func (t *TemplateTracker) AssociatePattern(tpl *pattern.Template, size float64) (int, error) {
	if t.busy.Load() {
		return -1, ErrBusy
	}
	if !(size > 0) {
		return -1, fmt.Errorf("%w: marker size must be positive, got %v", ErrInvalidConfig, size)
	}
	code, err := t.codeForTemplate(tpl)
	if err != nil {
		return -1, err
	}
	return t.associateSingle(code, size), nil
}

// AssociatePatternFile loads a template from a .patt file or an image of
// the marker and registers it. A file already loaded, by a single marker or
// a group, is reused.
func (t *TemplateTracker) AssociatePatternFile(path string, size float64) (int, error) {
	if t.busy.Load() {
		return -1, ErrBusy
	}
	if !(size > 0) {
		return -1, fmt.Errorf("%w: marker size must be positive, got %v", ErrInvalidConfig, size)
	}
	code, err := t.codeForFile(path)
	if err != nil {
		return -1, err
	}
	return t.associateSingle(code, size), nil
}

func (t *TemplateTracker) associateSingle(code int, size float64) int {
	name := t.lib.At(code).Name
	id := t.nextID
	t.nextID++
	t.addRecord(&record{
		id:      id,
		name:    name,
		kind:    kindSingle,
		minConf: t.opts.MinConfidence,
		code:    code,
		size:    size,
	})
	t.log.Info("tracker: pattern associated", "id", id, "name", name, "code", code, "size", size)
	return id
}

// codeForTemplate returns the library code of tpl, adding it on first use.
func (t *TemplateTracker) codeForTemplate(tpl *pattern.Template) (int, error) {
	if tpl == nil {
		return 0, fmt.Errorf("%w: nil template", ErrInvalidConfig)
	}
	if code, ok := t.byTemplate[tpl]; ok {
		return code, nil
	}
	code, err := t.lib.Add(tpl)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	t.byTemplate[tpl] = code
	return code, nil
}

func (t *TemplateTracker) loadTemplate(path string) (*pattern.Template, error) {
	var (
		tpl *pattern.Template
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".patt") {
		tpl, err = pattern.LoadPatt(path, t.tplSize)
	} else {
		tpl, err = pattern.LoadTemplateImage(path, t.tplSize, pattern.DefaultPatternRatio)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return tpl, nil
}

// codeForFile returns the library code for a pattern file, loading it on
// first use so groups sharing a pattern share one template.
func (t *TemplateTracker) codeForFile(path string) (int, error) {
	key := filepath.Clean(path)
	if code, ok := t.byPath[key]; ok {
		return code, nil
	}
	tpl, err := t.loadTemplate(path)
	if err != nil {
		return 0, err
	}
	code, err := t.codeForTemplate(tpl)
	if err != nil {
		return 0, err
	}
	t.byPath[key] = code
	return code, nil
}

// AssociateGroup registers a composite marker. Each sub-marker names its
// pattern file.
func (t *TemplateTracker) AssociateGroup(spec GroupSpec) (int, error) {
	if t.busy.Load() {
		return -1, ErrBusy
	}
	r, err := t.newGroupRecord(t.nextID, spec, func(m SubMarker) (int, error) {
		if m.Pattern == "" {
			return 0, fmt.Errorf("%w: template sub-marker needs a pattern file", ErrInvalidConfig)
		}
		return t.codeForFile(m.Pattern)
	})
	if err != nil {
		return -1, err
	}
	t.nextID++
	t.addRecord(r)
	t.log.Info("tracker: group associated", "id", r.id, "name", r.name, "markers", len(r.subs), "policy", r.policy.String())
	return r.id, nil
}

// AssociateMultiMarkerFile registers a composite marker from an XML description.
func (t *TemplateTracker) AssociateMultiMarkerFile(path string) (int, error) {
	spec, err := LoadMultiMarker(path)
	if err != nil {
		return -1, err
	}
	return t.AssociateGroup(spec)
}
