// Package tracker ties the marker pipeline together behind one facade per
// camera.
//
// # Families
//
// Two tracker families share one pipeline (threshold, detect, match,
// estimate, fuse, publish) and differ only in how a candidate square is
// identified:
//
//   - IDCodeTracker decodes the marker number from the cell grid. A single
//     marker's id is its code; groups get ids from GroupIDBase up.
//   - TemplateTracker compares against appearance templates loaded from
//     pattern files or images. Every association gets the next id in sequence.
//
// Both implement MarkerTracker. Ids are never reused within one tracker.
//
// # Lifecycle
//
//	Uninitialized --Init--> Initialized --ProcessFrame--> Tracking
//
// Clip planes and resolution can only be set while Uninitialized. The first
// ProcessFrame allocates frame-sized buffers; they are kept until the frame
// size changes. Markers may be associated at any time and take effect with
// the next frame.
//
// # Results
//
// Every frame replaces the whole result table: each association is found or
// not found for that frame alone. Queries read the most recent table and
// report not found before the first frame.
//
// For each code only the most confident candidate is used, and it must reach
// the marker's minimum confidence. In continuous pose mode a marker found in
// the previous frame seeds its own pose solve; after a frame without it the
// next solve starts from scratch.
//
// # Concurrency
//
// A tracker is single-threaded. Calling into a tracker while it is processing
// a frame returns ErrBusy. Use one tracker per camera.
//
// # Configuration
//
// Config is the YAML form (LoadConfig); New builds, initializes and populates
// a tracker from it. Composite markers can also be described in XML
// (LoadMultiMarker):
//
//	<multimarker name="board" policy="best-confidence" patternSize="40">
//	  <marker patternId="1" center="-25,0"/>
//	  <marker patternId="2" center="25,0" rotation="90"/>
//	</multimarker>
package tracker
