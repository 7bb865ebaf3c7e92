// Package pose recovers camera-relative marker poses.
//
// # Camera Model
//
// Camera holds pinhole intrinsics plus an optional lens Distortion model
// (None, BrownConrady or ARToolKitV2). Calibrations are read from ARToolKit
// binary parameter files (.dat) or YAML (LoadCalibration). Camera.Projection
// derives the OpenGL projection matrix for rendering over the video.
//
// # Frames
//
// Marker coordinates put the marker centre at the origin with corners
// top-left (-s/2, -s/2, 0), top-right (s/2, -s/2, 0), bottom-right
// (s/2, s/2, 0) and bottom-left (-s/2, s/2, 0). The camera frame has x right,
// y down and z forward, so a visible marker has a positive z translation and
// a marker facing the camera squarely has the identity rotation. ToGL converts
// a pose to OpenGL camera convention.
//
// # Estimation
//
// Estimator.Estimate solves the planar homography between model and image
// corners, decomposes it into rotation and translation and refines the result
// with Levenberg-Marquardt on the reprojection error.
//
// In continuous mode the previous frame's pose seeds the refinement instead.
// Callers should only pass a previous pose when the marker was found in the
// frame immediately before; a seeded result that does not fit the corners is
// thrown away and the pose is recomputed from scratch.
package pose
