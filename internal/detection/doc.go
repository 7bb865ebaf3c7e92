// Package detection finds candidate marker squares in binary rasters.
//
// Fiducial markers are printed with a thick dark border. After binarization
// the border becomes a connected region of background (0) pixels whose outer
// boundary is a quadrilateral under perspective projection. This package
// locates those quadrilaterals.
//
// # Pipeline
//
//  1. Labelling: background pixels are run-length encoded row by row and
//     runs are joined with union-find into 8-connected regions
//  2. Filtering: regions touching the raster edge, or outside the area
//     limits, are skipped without tracing
//  3. Tracing: the outer boundary of each remaining region is followed with
//     Moore-neighbour tracing, starting at the region's first pixel
//  4. Corner extraction: two corners are seeded by farthest-point search and
//     the contour is split recursively at points of maximum deviation; a
//     region is a candidate only if exactly four corners remain
//  5. Validation: the quad must be convex with every side at least MinSide
//  6. Refinement: each side is fitted with a total-least-squares line and
//     adjacent lines are intersected to give subpixel corners
//
// # Coordinate System
//
// Corner coordinates are continuous raster coordinates: pixel (x, y) spans
// [x, x+1) × [y, y+1). Corners are listed clockwise on screen (y down).
//
// # Determinism
//
// No step is randomized. Candidates are ordered by area (largest first), then
// by the top-left of their bounding box, so the same raster always yields the
// same list in the same order.
//
// # Capacity
//
// At most DetectorConfig.MaxCandidates squares are returned per pass. When
// more are found the smallest are dropped and the count is reported in
// Stats.Dropped rather than treated as an error.
package detection
