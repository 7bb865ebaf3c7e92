package tracker

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/marker-tools-mcp/internal/fusion"
)

// DefaultPatternSize is the physical side length used for sub-markers whose
// description gives none.
const DefaultPatternSize = 80.0

// SubMarker places one physical marker on a group.
type SubMarker struct {
	// Code is the ID-code number. Ignored by template trackers.
	Code int `yaml:"code" json:"code"`

	// Pattern is the template file for template trackers.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Size is the physical side length.
	Size float64 `yaml:"size" json:"size"`

	// X, Y locate the marker centre on the group plane; Rotation turns it
	// about the plane normal, in degrees.
	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Rotation float64 `yaml:"rotation" json:"rotation"`
}

// GroupSpec describes a composite marker: several physical markers at known
// places on one rigid object.
type GroupSpec struct {
	Name    string        `yaml:"name" json:"name"`
	Policy  fusion.Policy `yaml:"policy" json:"policy"`
	Markers []SubMarker   `yaml:"markers" json:"markers"`

	// MinConfidence applies to every sub-marker. Zero means the tracker default.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// Custom combines sub-marker poses when Policy is fusion.Custom.
	Custom fusion.CombineFunc `yaml:"-" json:"-"`
}

// Validate checks the group description.
func (g *GroupSpec) Validate() error {
	if len(g.Markers) == 0 {
		return fmt.Errorf("%w: group %q has no markers", ErrInvalidConfig, g.Name)
	}
	if g.Policy < fusion.Average || g.Policy > fusion.Custom {
		return fmt.Errorf("%w: group %q: unknown policy %d", ErrInvalidConfig, g.Name, int(g.Policy))
	}
	if g.Policy == fusion.Custom && g.Custom == nil {
		return fmt.Errorf("%w: group %q uses the custom policy without a combine function", ErrInvalidConfig, g.Name)
	}
	if g.MinConfidence < 0 || g.MinConfidence > 1 {
		return fmt.Errorf("%w: group %q: min confidence %v outside [0, 1]", ErrInvalidConfig, g.Name, g.MinConfidence)
	}
	for i, m := range g.Markers {
		if !(m.Size > 0) {
			return fmt.Errorf("%w: group %q marker %d: size must be positive", ErrInvalidConfig, g.Name, i)
		}
	}
	return nil
}

// xmlMultiMarker is the multi-marker description file layout:
//
//	<multimarker name="board" policy="best-confidence" patternSize="40">
//	  <marker patternId="3" center="-25,0"/>
//	  <marker patternId="4" patternSize="40" center="25,0" rotation="90"/>
//	  <marker pattern="hiro.patt" center="0,30"/>
//	</multimarker>
type xmlMultiMarker struct {
	XMLName       xml.Name    `xml:"multimarker"`
	Name          string      `xml:"name,attr"`
	Policy        string      `xml:"policy,attr"`
	PatternSize   string      `xml:"patternSize,attr"`
	MinConfidence string      `xml:"minConfidence,attr"`
	Markers       []xmlMarker `xml:"marker"`
}

type xmlMarker struct {
	PatternID   string `xml:"patternId,attr"`
	Pattern     string `xml:"pattern,attr"`
	PatternSize string `xml:"patternSize,attr"`
	Center      string `xml:"center,attr"`
	Rotation    string `xml:"rotation,attr"`
}

// LoadMultiMarker reads a multi-marker description file. Relative pattern
// paths are resolved against the file's directory.
func LoadMultiMarker(path string) (GroupSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return GroupSpec{}, fmt.Errorf("failed to open multi-marker file: %w", err)
	}
	defer f.Close()

	spec, err := ParseMultiMarker(f)
	if err != nil {
		return GroupSpec{}, fmt.Errorf("failed to parse multi-marker file %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	dir := filepath.Dir(path)
	for i := range spec.Markers {
		if p := spec.Markers[i].Pattern; p != "" && !filepath.IsAbs(p) {
			spec.Markers[i].Pattern = filepath.Join(dir, p)
		}
	}
	return spec, nil
}

// ParseMultiMarker decodes a multi-marker description.
//
// Optional attributes and their defaults: policy "average", patternSize
// the group's patternSize or else DefaultPatternSize, center "0,0",
// rotation 0, minConfidence 0 (tracker default). Each marker needs a
// patternId or a pattern file.
func ParseMultiMarker(r io.Reader) (GroupSpec, error) {
	var doc xmlMultiMarker
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return GroupSpec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	spec := GroupSpec{Name: doc.Name, Policy: fusion.Average}
	if doc.Policy != "" {
		p, err := fusion.ParsePolicy(doc.Policy)
		if err != nil {
			return GroupSpec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		spec.Policy = p
	}
	groupSize, err := floatAttr("patternSize", doc.PatternSize, DefaultPatternSize)
	if err != nil {
		return GroupSpec{}, err
	}
	if spec.MinConfidence, err = floatAttr("minConfidence", doc.MinConfidence, 0); err != nil {
		return GroupSpec{}, err
	}

	for i, m := range doc.Markers {
		sub := SubMarker{Code: -1, Pattern: strings.TrimSpace(m.Pattern)}
		if m.PatternID != "" {
			code, err := strconv.Atoi(strings.TrimSpace(m.PatternID))
			if err != nil {
				return GroupSpec{}, fmt.Errorf("%w: marker %d: bad patternId %q", ErrInvalidConfig, i, m.PatternID)
			}
			sub.Code = code
		}
		if sub.Code < 0 && sub.Pattern == "" {
			return GroupSpec{}, fmt.Errorf("%w: marker %d needs patternId or pattern", ErrInvalidConfig, i)
		}
		if sub.Size, err = floatAttr("patternSize", m.PatternSize, groupSize); err != nil {
			return GroupSpec{}, err
		}
		if sub.X, sub.Y, err = parseCenter(m.Center); err != nil {
			return GroupSpec{}, fmt.Errorf("%w: marker %d: %v", ErrInvalidConfig, i, err)
		}
		if sub.Rotation, err = floatAttr("rotation", m.Rotation, 0); err != nil {
			return GroupSpec{}, err
		}
		spec.Markers = append(spec.Markers, sub)
	}

	if len(spec.Markers) == 0 {
		return GroupSpec{}, fmt.Errorf("%w: no <marker> elements", ErrInvalidConfig)
	}
	return spec, nil
}

func floatAttr(name, v string, def float64) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: attribute %s=%q is not a number", ErrInvalidConfig, name, v)
	}
	return f, nil
}

// parseCenter reads "x,y" (spaces allowed). An empty value is the origin.
func parseCenter(v string) (float64, float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, nil
	}
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("center %q is not \"x,y\"", v)
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("center %q: %v", v, err)
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("center %q: %v", v, err)
	}
	return x, y, nil
}
