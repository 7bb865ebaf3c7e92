// Package server implements the MCP (Model Context Protocol) server for
// fiducial marker tracking tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the tracking
// pipeline through the MCP protocol, so an MCP client can inspect frames,
// tune thresholds, generate markers and recover marker poses from still
// images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Frame Information:
//   - frame_info: Size, pixel layout and suggested threshold of a frame
//
// Pipeline Stages:
//   - marker_binarize: The binary raster the detector sees, as PNG
//   - marker_detect_squares: Candidate squares with subpixel corners
//   - marker_track: Full pass returning every marker's pose and confidence
//
// Generation and Camera:
//   - marker_render_id: Printable ID-code marker
//   - camera_projection: Intrinsics, field of view and projection matrix
//
// Every marker_track call builds a new tracker from its arguments or a YAML
// configuration file, so calls never share tracking state. Without a
// calibration the tracker gets a pinhole camera with f equal to the frame
// width and the principal point at the frame centre.
//
// # Frame Caching
//
// Frames are decoded once per path and pixel layout and reused across tool
// calls for the lifetime of the process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
package server
