package pattern

import (
	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
)

// Match is the outcome of matching one candidate square.
type Match struct {
	// Code identifies the pattern: a library index for templates, the
	// decoded number for ID markers.
	Code int `json:"code"`

	// Rotation is the index of the candidate corner that is the marker's
	// top-left corner.
	Rotation int `json:"rotation"`

	// Confidence is the match quality in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Matcher identifies the marker inside a candidate square.
//
// Match returns false when the candidate cannot be any known marker, including
// when it does not have exactly four corners. Acceptance thresholds are the
// caller's business.
type Matcher interface {
	Match(frame *imaging.Frame, c detection.Candidate) (Match, bool)
}

// TemplateMatcher compares candidates against a library of appearance templates.
type TemplateMatcher struct {
	lib     *Library
	sampler Sampler
	patches [4][]float64
}

// NewTemplateMatcher creates a matcher for lib. size is the patch resolution
// and ratio the pattern's share of the marker width.
func NewTemplateMatcher(lib *Library, size int, ratio float64) *TemplateMatcher {
	if size <= 0 {
		size = DefaultTemplateSize
	}
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultPatternRatio
	}
	return &TemplateMatcher{
		lib:     lib,
		sampler: Sampler{Size: size, Ratio: ratio, Sub: 3, Fill: 1},
	}
}

// Library returns the template library being matched against.
func (m *TemplateMatcher) Library() *Library { return m.lib }

// Match samples the candidate under all four corner assignments and scores
// every template against every rotation.
//
// Ties are broken deterministically: a later (pattern, rotation) pair only
// replaces the best when its score is strictly higher, and patterns are
// visited in index order with rotations 0..3 inside, so equal scores resolve
// to the lowest pattern index and then the lowest rotation.
func (m *TemplateMatcher) Match(frame *imaging.Frame, c detection.Candidate) (Match, bool) {
	if len(c.Corners) != 4 || m.lib == nil || m.lib.Len() == 0 {
		return Match{}, false
	}
	for rot := 0; rot < 4; rot++ {
		m.patches[rot] = m.sampler.Sample(frame, c.Corners, rot, m.patches[rot])
	}

	best := Match{Code: -1, Confidence: -1}
	for code, t := range m.lib.templates {
		if t.Size != m.sampler.Size {
			continue
		}
		for rot := 0; rot < 4; rot++ {
			score := t.Correlate(m.patches[rot])
			if score > best.Confidence {
				best = Match{Code: code, Rotation: rot, Confidence: score}
			}
		}
	}
	// A best score of zero means no pattern correlated at all.
	if best.Code < 0 || best.Confidence <= 0 {
		return Match{}, false
	}
	return best, true
}
