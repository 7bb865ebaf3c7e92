package server

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
	"github.com/ironsheep/marker-tools-mcp/internal/pose"
	"github.com/ironsheep/marker-tools-mcp/internal/tracker"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "marker_track", "frame_info").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads frames from cache as needed
//  4. Calls the appropriate imaging/detection/tracker function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "frame_info":
		return s.handleFrameInfo(args)
	case "marker_binarize":
		return s.handleMarkerBinarize(args)
	case "marker_detect_squares":
		return s.handleMarkerDetectSquares(args)
	case "marker_track":
		return s.handleMarkerTrack(args)
	case "marker_render_id":
		return s.handleMarkerRenderID(args)
	case "camera_projection":
		return s.handleCameraProjection(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// pixelFormat parses an optional layout name, defaulting to RGB24.
func pixelFormat(name string) (imaging.PixelFormat, error) {
	if name == "" {
		return imaging.FormatRGB24, nil
	}
	return imaging.ParsePixelFormat(name)
}

// thresholdArgs are shared by the tools that binarize.
type thresholdArgs struct {
	Threshold     *int `json:"threshold"`
	AutoThreshold bool `json:"auto_threshold"`
}

func (a thresholdArgs) resolve(frame *imaging.Frame) (uint8, error) {
	if a.AutoThreshold {
		return imaging.OtsuThreshold(frame), nil
	}
	if a.Threshold == nil {
		return tracker.DefaultThreshold, nil
	}
	if *a.Threshold < 0 || *a.Threshold > 255 {
		return 0, fmt.Errorf("threshold %d outside 0-255", *a.Threshold)
	}
	return uint8(*a.Threshold), nil
}

// loadFrame reads path through the cache in the named layout.
func (s *Server) loadFrame(path, format string) (*imaging.Frame, error) {
	pf, err := pixelFormat(format)
	if err != nil {
		return nil, err
	}
	return s.cache.Load(path, pf)
}

// === Frame Information ===

type frameInfoArgs struct {
	Path        string `json:"path"`
	PixelFormat string `json:"pixel_format"`
}

func (s *Server) handleFrameInfo(args json.RawMessage) (interface{}, error) {
	var a frameInfoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	pf, err := pixelFormat(a.PixelFormat)
	if err != nil {
		return nil, err
	}
	return imaging.LoadFrameInfo(s.cache, a.Path, pf)
}

// === Pipeline Stages ===

type markerBinarizeArgs struct {
	Path        string `json:"path"`
	PixelFormat string `json:"pixel_format"`
	thresholdArgs
}

func (s *Server) handleMarkerBinarize(args json.RawMessage) (interface{}, error) {
	var a markerBinarizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a.Path, a.PixelFormat)
	if err != nil {
		return nil, err
	}
	threshold, err := a.resolve(frame)
	if err != nil {
		return nil, err
	}
	return imaging.EncodeBinaryPNG(imaging.Binarize(frame, threshold), threshold)
}

type markerDetectSquaresArgs struct {
	Path          string  `json:"path"`
	PixelFormat   string  `json:"pixel_format"`
	MaxCandidates int     `json:"max_candidates"`
	MinArea       int     `json:"min_area"`
	Crops         bool    `json:"crops"`
	CropScale     float64 `json:"crop_scale"`
	thresholdArgs
}

// DetectSquaresResult lists the candidate squares found in a frame.
type DetectSquaresResult struct {
	Threshold  int                   `json:"threshold"`
	Count      int                   `json:"count"`
	Candidates []detection.Candidate `json:"candidates"`
	Stats      detection.Stats       `json:"stats"`

	// Crops holds one image per candidate, in candidate order, when requested.
	Crops []*imaging.ImageResult `json:"crops,omitempty"`
}

// cropPadding is the margin kept around a candidate's bounds in crops.
const cropPadding = 4

func (s *Server) handleMarkerDetectSquares(args json.RawMessage) (interface{}, error) {
	var a markerDetectSquaresArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.CropScale == 0 {
		a.CropScale = 1.0
	}
	frame, err := s.loadFrame(a.Path, a.PixelFormat)
	if err != nil {
		return nil, err
	}
	threshold, err := a.resolve(frame)
	if err != nil {
		return nil, err
	}

	cfg := detection.DefaultDetectorConfig()
	if a.MaxCandidates > 0 {
		cfg.MaxCandidates = a.MaxCandidates
	}
	if a.MinArea > 0 {
		cfg.MinArea = a.MinArea
	}
	cands, stats := detection.NewDetector(cfg).Detect(imaging.Binarize(frame, threshold))
	if cands == nil {
		cands = []detection.Candidate{}
	}

	res := &DetectSquaresResult{
		Threshold:  int(threshold),
		Count:      len(cands),
		Candidates: cands,
		Stats:      stats,
	}
	if a.Crops {
		for _, c := range cands {
			b := c.Bounds
			crop, err := imaging.CropFrame(frame, b.X1-cropPadding, b.Y1-cropPadding, b.X2+1+cropPadding, b.Y2+1+cropPadding, a.CropScale)
			if err != nil {
				return nil, err
			}
			res.Crops = append(res.Crops, crop)
		}
	}
	return res, nil
}

// === Tracking ===

type markerTrackArgs struct {
	Path             string                 `json:"path"`
	Config           string                 `json:"config"`
	Family           string                 `json:"family"`
	PixelFormat      string                 `json:"pixel_format"`
	Markers          []tracker.MarkerConfig `json:"markers"`
	MultiMarkerFiles []string               `json:"multimarker_files"`
	MinConfidence    float64                `json:"min_confidence"`
	Calibration      string                 `json:"calibration"`
	Fx               float64                `json:"fx"`
	Fy               float64                `json:"fy"`
	Cx               *float64               `json:"cx"`
	Cy               *float64               `json:"cy"`
	Overlay          bool                   `json:"overlay"`
	Color            string                 `json:"color"`
	thresholdArgs
}

// TrackResult is the outcome of one tracking pass.
type TrackResult struct {
	Stats   tracker.Stats          `json:"stats"`
	Markers []tracker.MarkerResult `json:"markers"`

	// Projection is the column-major OpenGL projection matrix.
	Projection mgl64.Mat4 `json:"projection"`

	Overlay *imaging.OverlayResult `json:"overlay,omitempty"`
}

// trackerConfig builds the tracker configuration from a file or from the
// inline arguments.
func (a *markerTrackArgs) trackerConfig() (*tracker.Config, error) {
	if a.Config != "" {
		return tracker.LoadConfig(a.Config)
	}

	cfg := tracker.DefaultConfig()
	if a.Family != "" {
		f, err := tracker.ParseFamily(a.Family)
		if err != nil {
			return nil, err
		}
		cfg.Family = f
	}
	pf, err := pixelFormat(a.PixelFormat)
	if err != nil {
		return nil, err
	}
	cfg.PixelFormat = pf
	if a.Threshold != nil {
		cfg.Threshold = *a.Threshold
	}
	cfg.AutoThreshold = a.AutoThreshold
	if a.MinConfidence > 0 {
		cfg.MinConfidence = a.MinConfidence
	}
	cfg.Calibration = a.Calibration
	cfg.Markers = a.Markers
	cfg.MultiMarkerFiles = a.MultiMarkerFiles
	if len(cfg.Markers) == 0 && len(cfg.MultiMarkerFiles) == 0 {
		return nil, fmt.Errorf("no markers to track: give markers, multimarker_files or a config file")
	}
	return &cfg, nil
}

// defaultCamera is used when no calibration is given: a pinhole with the
// principal point at the frame centre and a focal length equal to the frame
// width (about 53° horizontal field of view).
func (a *markerTrackArgs) defaultCamera(frame *imaging.Frame) pose.Camera {
	cam := pose.Camera{
		Width:  frame.Width,
		Height: frame.Height,
		Fx:     float64(frame.Width),
		Fy:     float64(frame.Width),
		Cx:     float64(frame.Width) / 2,
		Cy:     float64(frame.Height) / 2,
	}
	if a.Fx > 0 {
		cam.Fx = a.Fx
		cam.Fy = a.Fx
	}
	if a.Fy > 0 {
		cam.Fy = a.Fy
	}
	if a.Cx != nil {
		cam.Cx = *a.Cx
	}
	if a.Cy != nil {
		cam.Cy = *a.Cy
	}
	return cam
}

func (s *Server) handleMarkerTrack(args json.RawMessage) (interface{}, error) {
	var a markerTrackArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := a.trackerConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logger = s.log

	frame, err := s.cache.Load(a.Path, cfg.PixelFormat)
	if err != nil {
		return nil, err
	}

	mt, err := tracker.New(*cfg)
	if err != nil {
		return nil, err
	}
	if mt.State() == tracker.Uninitialized {
		if err := mt.Init(a.defaultCamera(frame)); err != nil {
			return nil, err
		}
	}
	if err := mt.ProcessFrame(frame); err != nil {
		return nil, err
	}

	proj, err := mt.ProjectionMatrix()
	if err != nil {
		return nil, err
	}
	res := &TrackResult{
		Stats:      mt.Stats(),
		Markers:    mt.Markers(),
		Projection: proj,
	}
	if a.Overlay {
		res.Overlay, err = imaging.DrawOverlay(frame, outlines(res.Markers), a.Color)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// outlines converts the found single markers into overlay outlines labelled
// with their id (and name, when they have one).
func outlines(markers []tracker.MarkerResult) []imaging.Outline {
	var out []imaging.Outline
	for _, m := range markers {
		if !m.Found || len(m.Corners) == 0 {
			continue
		}
		label := strconv.Itoa(m.ID)
		if m.Name != "" {
			label += " " + m.Name
		}
		o := imaging.Outline{Label: label}
		for _, p := range m.Corners {
			o.Points = append(o.Points, [2]float64{p.X, p.Y})
		}
		out = append(out, o)
	}
	return out
}

// === Marker Generation ===

type markerRenderIDArgs struct {
	ID         *int   `json:"id"`
	CellSize   int    `json:"cell_size"`
	OutputPath string `json:"output_path"`
}

// RenderIDResult contains a rendered ID marker.
type RenderIDResult struct {
	ID int `json:"id"`
	imaging.ImageResult
	SavedTo string `json:"saved_to,omitempty"`
}

func (s *Server) handleMarkerRenderID(args json.RawMessage) (interface{}, error) {
	var a markerRenderIDArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ID == nil {
		return nil, fmt.Errorf("id is required")
	}
	if a.CellSize == 0 {
		a.CellSize = 20
	}
	img, err := pattern.RenderIDMarker(*a.ID, a.CellSize)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodeImage(img, 1.0)
	if err != nil {
		return nil, err
	}

	res := &RenderIDResult{ID: *a.ID, ImageResult: *enc}
	if a.OutputPath != "" {
		if err := imaging.SaveImage(img, a.OutputPath); err != nil {
			return nil, err
		}
		res.SavedTo = a.OutputPath
	}
	return res, nil
}

// === Camera ===

type cameraProjectionArgs struct {
	Calibration string  `json:"calibration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Near        float64 `json:"near"`
	Far         float64 `json:"far"`
}

// CameraProjectionResult describes a calibrated camera.
type CameraProjectionResult struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Fx         float64    `json:"fx"`
	Fy         float64    `json:"fy"`
	Cx         float64    `json:"cx"`
	Cy         float64    `json:"cy"`
	Distortion string     `json:"distortion"`
	FovX       float64    `json:"fov_x_degrees"`
	FovY       float64    `json:"fov_y_degrees"`
	Near       float64    `json:"near"`
	Far        float64    `json:"far"`
	Projection mgl64.Mat4 `json:"projection"`
}

func (s *Server) handleCameraProjection(args json.RawMessage) (interface{}, error) {
	var a cameraProjectionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Near == 0 {
		a.Near = pose.DefaultNear
	}
	if a.Far == 0 {
		a.Far = pose.DefaultFar
	}
	if !(a.Far > a.Near) || !(a.Near > 0) {
		return nil, fmt.Errorf("invalid clip planes near=%v far=%v", a.Near, a.Far)
	}

	cam, err := pose.LoadCalibration(a.Calibration)
	if err != nil {
		return nil, err
	}
	if a.Width > 0 || a.Height > 0 {
		if a.Width <= 0 || a.Height <= 0 {
			return nil, fmt.Errorf("width and height must be given together")
		}
		scaled := cam.Scaled(a.Width, a.Height)
		cam = &scaled
	}

	model := pose.ModelNone
	if cam.Distortion != nil {
		model = cam.Distortion.Model()
	}
	fovX, fovY := cam.FieldOfView()
	return &CameraProjectionResult{
		Width:      cam.Width,
		Height:     cam.Height,
		Fx:         cam.Fx,
		Fy:         cam.Fy,
		Cx:         cam.Cx,
		Cy:         cam.Cy,
		Distortion: model,
		FovX:       fovX,
		FovY:       fovY,
		Near:       a.Near,
		Far:        a.Far,
		Projection: cam.Projection(a.Near, a.Far),
	}, nil
}
