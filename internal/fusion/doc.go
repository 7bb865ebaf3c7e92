// Package fusion combines the poses of several physical markers that belong
// to one rigid object into a single pose for the object.
//
// Each sub-marker sits at a known place on the group. Its Offset takes group
// coordinates into the sub-marker's own coordinates, so observed pose times
// offset is the group pose as that one sub-marker sees it. Combine merges
// these adjusted poses with a Policy. A group with no usable observation is
// simply not found for the frame.
package fusion
