// Package pattern identifies which marker, if any, a candidate square shows.
//
// A candidate from the detection package is only a dark quadrilateral. The
// matchers here resample its interior with a perspective-correct grid
// (Sampler) and compare the result against what a marker should look like.
//
// # Matchers
//
// TemplateMatcher holds a Library of appearance templates. The centred half
// of the marker is sampled at 16×16, once for each of the four possible corner
// assignments, and scored against every template with mean-normalized
// correlation. The best (template, rotation) pair wins; ties go to the lowest
// template index and then the lowest rotation.
//
// Templates are built from ARToolKit-style .patt files (LoadPatt), from a
// picture of the marker (LoadTemplateImage, TemplateFromImage) or from raw
// values (NewTemplate).
//
// IDMatcher decodes self-identifying markers. The whole marker is sampled as a
// 6×6 grid: a dark border ring around 4×4 data cells. Three data corners are
// light and one is dark, which fixes the rotation; the other twelve cells
// hold an 8-bit id and a 4-bit check. RenderIDMarker draws these markers for
// printing and for tests.
//
// # Rotation
//
// Match.Rotation is the index into Candidate.Corners of the marker's top-left
// corner. Together with the clockwise corner order this is enough for pose
// estimation to tell which way up the marker is.
package pattern
