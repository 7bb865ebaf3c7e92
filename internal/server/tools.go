package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the frame image file",
	}
}

func pixelFormatProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Pixel layout the frame is converted to before processing",
		"enum":        []string{"rgb24", "bgr24", "rgba32", "argb32", "bgra32", "gray8"},
		"default":     "rgb24",
	}
}

func thresholdProperties() map[string]interface{} {
	return map[string]interface{}{
		"threshold": map[string]interface{}{
			"type":        "integer",
			"description": "Binarization threshold 0-255. Pixels brighter than this are foreground. Default 100",
			"minimum":     0,
			"maximum":     255,
		},
		"auto_threshold": map[string]interface{}{
			"type":        "boolean",
			"description": "Pick the threshold with Otsu's method instead",
			"default":     false,
		},
	}
}

func cameraProperties() map[string]interface{} {
	return map[string]interface{}{
		"calibration": map[string]interface{}{
			"type":        "string",
			"description": "Camera calibration file (.dat ARToolKit binary or .yaml)",
		},
		"fx": map[string]interface{}{"type": "number", "description": "Focal length x in pixels"},
		"fy": map[string]interface{}{"type": "number", "description": "Focal length y in pixels"},
		"cx": map[string]interface{}{"type": "number", "description": "Principal point x in pixels"},
		"cy": map[string]interface{}{"type": "number", "description": "Principal point y in pixels"},
	}
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Frame Information
		{
			Name:        "frame_info",
			Description: "Load an image file as a capture frame and report its size, pixel layout and the Otsu threshold suggested for it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"pixel_format": pixelFormatProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Pipeline Stages
		{
			Name:        "marker_binarize",
			Description: "Binarize a frame the way the tracker does and return the result as base64-encoded PNG. Use this to tune the threshold for a lighting setup.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":         pathProperty(),
					"pixel_format": pixelFormatProperty(),
				}, thresholdProperties()),
				"required": []string{"path"},
			},
		},
		{
			Name:        "marker_detect_squares",
			Description: "Find candidate marker squares (dark quadrilateral borders) in a frame. Returns subpixel corners in clockwise order, largest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":         pathProperty(),
					"pixel_format": pixelFormatProperty(),
					"max_candidates": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of squares returned. Default 300",
					},
					"min_area": map[string]interface{}{
						"type":        "integer",
						"description": "Minimum region size in pixels. Default 64",
					},
				}, thresholdProperties()),
				"required": []string{"path"},
			},
		},
		{
			Name:        "marker_track",
			Description: "Run a full tracking pass on a frame: detect, identify and estimate the 3D pose of every configured marker and marker group. Each call uses a fresh tracker.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path": pathProperty(),
					"config": map[string]interface{}{
						"type":        "string",
						"description": "YAML tracker configuration file. When given, the marker and camera arguments below are ignored",
					},
					"family": map[string]interface{}{
						"type":        "string",
						"description": "Tracker family",
						"enum":        []string{"idcode", "template"},
						"default":     "idcode",
					},
					"pixel_format": pixelFormatProperty(),
					"markers": map[string]interface{}{
						"type":        "array",
						"description": "Markers to track",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"code":           map[string]interface{}{"type": "integer", "description": "ID-code marker number"},
								"pattern":        map[string]interface{}{"type": "string", "description": "Template pattern file"},
								"size":           map[string]interface{}{"type": "number", "description": "Marker edge length in world units"},
								"min_confidence": map[string]interface{}{"type": "number"},
							},
							"required": []string{"size"},
						},
					},
					"multimarker_files": map[string]interface{}{
						"type":        "array",
						"description": "Multi-marker XML files describing marker groups",
						"items":       map[string]interface{}{"type": "string"},
					},
					"min_confidence": map[string]interface{}{
						"type":        "number",
						"description": "Default acceptance confidence in [0, 1]. Default 0.5",
					},
					"overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return the frame with found markers outlined, as base64-encoded PNG",
						"default":     false,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Overlay colour in hex. Default: one hue per marker",
					},
				}, thresholdProperties(), cameraProperties()),
				"required": []string{"path"},
			},
		},

		// Marker Generation
		{
			Name:        "marker_render_id",
			Description: "Render a printable ID-code marker as base64-encoded PNG, optionally saving it to a file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "integer",
						"description": "Marker number 0-255",
					},
					"cell_size": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels per grid cell. Default 20",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to save the PNG",
					},
				},
				"required": []string{"id"},
			},
		},

		// Camera
		{
			Name:        "camera_projection",
			Description: "Load a camera calibration and report its intrinsics, field of view and the OpenGL projection matrix for the given clip planes.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"calibration": map[string]interface{}{
						"type":        "string",
						"description": "Camera calibration file (.dat ARToolKit binary or .yaml)",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Optional frame width to scale the calibration to",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Optional frame height to scale the calibration to",
					},
					"near": map[string]interface{}{
						"type":        "number",
						"description": "Near clip plane. Default 0.1",
					},
					"far": map[string]interface{}{
						"type":        "number",
						"description": "Far clip plane. Default 1000",
					},
				},
				"required": []string{"calibration"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
