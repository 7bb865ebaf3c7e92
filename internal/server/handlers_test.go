package server

import (
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
)

// createTestImageFile creates a solid test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return writeTestPNG(t, "solid.png", img)
}

func writeTestPNG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// createMarkerFile renders ID marker id with 15px cells onto a white 320×240
// frame with its quiet zone at (100, 60). The dark border spans
// [115, 205) × [75, 165), centred on the frame.
func createMarkerFile(t *testing.T, id int) string {
	t.Helper()
	marker, err := pattern.RenderIDMarker(id, 15)
	if err != nil {
		t.Fatalf("RenderIDMarker error: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(100, 60, 220, 180), marker, marker.Bounds().Min, draw.Src)
	return writeTestPNG(t, "marker.png", img)
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) {
	t.Helper()
	resp := callToolResponse(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %+v", name, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v", content[0]["type"])
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("%s: result is not JSON: %v\n%s", name, err, text)
	}
}

func callToolResponse(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	paramsJSON, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

func expectToolError(t *testing.T, s *Server, name string, args map[string]interface{}) {
	t.Helper()
	resp := callToolResponse(t, s, name, args)
	if resp.Error == nil {
		t.Fatalf("%s(%v): expected error", name, args)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
}

func TestHandleToolsCall_FrameInfo(t *testing.T) {
	s := quietServer()
	path := createTestImageFile(t, 100, 80, color.RGBA{255, 0, 0, 255})

	var info imaging.FrameInfo
	callTool(t, s, "frame_info", map[string]interface{}{"path": path, "pixel_format": "bgra32"}, &info)

	if info.Width != 100 || info.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", info.Width, info.Height)
	}
	if info.PixelFormat != "bgra32" {
		t.Errorf("PixelFormat: got %s, want bgra32", info.PixelFormat)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}

	expectToolError(t, s, "frame_info", map[string]interface{}{"path": path, "pixel_format": "yuv420"})
	expectToolError(t, s, "frame_info", map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing.png")})
}

func TestHandleToolsCall_MarkerBinarize(t *testing.T) {
	s := quietServer()

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	draw.Draw(img, image.Rect(20, 0, 40, 20), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, 20, 20), image.NewUniform(color.Black), image.Point{}, draw.Src)
	path := writeTestPNG(t, "half.png", img)

	var res imaging.BinaryImageResult
	callTool(t, s, "marker_binarize", map[string]interface{}{"path": path, "threshold": 128}, &res)
	if res.Threshold != 128 {
		t.Errorf("Threshold: got %d, want 128", res.Threshold)
	}
	if res.ForegroundPercent != 50 {
		t.Errorf("ForegroundPercent: got %v, want 50", res.ForegroundPercent)
	}

	var def imaging.BinaryImageResult
	callTool(t, s, "marker_binarize", map[string]interface{}{"path": path}, &def)
	if def.Threshold != 100 {
		t.Errorf("default Threshold: got %d, want 100", def.Threshold)
	}

	var auto imaging.BinaryImageResult
	callTool(t, s, "marker_binarize", map[string]interface{}{"path": path, "auto_threshold": true}, &auto)
	if auto.ForegroundPercent != 50 {
		t.Errorf("auto ForegroundPercent: got %v, want 50", auto.ForegroundPercent)
	}

	expectToolError(t, s, "marker_binarize", map[string]interface{}{"path": path, "threshold": 300})
}

func TestHandleToolsCall_MarkerDetectSquares(t *testing.T) {
	s := quietServer()
	path := createMarkerFile(t, 5)

	var res DetectSquaresResult
	callTool(t, s, "marker_detect_squares", map[string]interface{}{"path": path, "crops": true}, &res)

	if res.Count == 0 || len(res.Candidates) != res.Count {
		t.Fatalf("Count: got %d with %d candidates", res.Count, len(res.Candidates))
	}
	// Largest first: the marker border.
	b := res.Candidates[0].Bounds
	if b.X1 != 115 || b.Y1 != 75 || b.X2 != 204 || b.Y2 != 164 {
		t.Errorf("Bounds: got %+v", b)
	}
	if len(res.Candidates[0].Corners) != 4 {
		t.Errorf("Corners: got %d", len(res.Candidates[0].Corners))
	}
	if len(res.Crops) != res.Count {
		t.Fatalf("Crops: got %d, want %d", len(res.Crops), res.Count)
	}
	if res.Crops[0].Width != 90+2*cropPadding {
		t.Errorf("crop width: got %d, want %d", res.Crops[0].Width, 90+2*cropPadding)
	}

	var capped DetectSquaresResult
	callTool(t, s, "marker_detect_squares", map[string]interface{}{"path": path, "max_candidates": 1}, &capped)
	if capped.Count != 1 || capped.Crops != nil {
		t.Errorf("capped: Count %d, %d crops", capped.Count, len(capped.Crops))
	}
}

func TestHandleToolsCall_MarkerDetectSquaresBlank(t *testing.T) {
	s := quietServer()
	path := createTestImageFile(t, 64, 64, color.White)

	var res DetectSquaresResult
	callTool(t, s, "marker_detect_squares", map[string]interface{}{"path": path}, &res)
	if res.Count != 0 || res.Candidates == nil {
		t.Errorf("blank frame: Count %d, Candidates %v", res.Count, res.Candidates)
	}
}

func assertCentredMarker(t *testing.T, res TrackResult, id int) {
	t.Helper()
	var found bool
	for _, m := range res.Markers {
		if m.ID != id {
			continue
		}
		found = true
		if !m.Found {
			t.Fatalf("marker %d not found; stats %+v", id, res.Stats)
		}
		tr := m.Pose.Col(3)
		// 90 px wide at f = 320 for a size-10 marker.
		wantZ := 320.0 * 10 / 90
		if math.Abs(tr.Z()-wantZ) > 0.2 {
			t.Errorf("z: got %v, want %v", tr.Z(), wantZ)
		}
		if math.Abs(tr.X()) > 0.1 || math.Abs(tr.Y()) > 0.1 {
			t.Errorf("centred marker off axis: x %v y %v", tr.X(), tr.Y())
		}
	}
	if !found {
		t.Fatalf("marker %d missing from results %+v", id, res.Markers)
	}
}

func TestHandleToolsCall_MarkerTrack(t *testing.T) {
	s := quietServer()
	path := createMarkerFile(t, 5)

	var res TrackResult
	callTool(t, s, "marker_track", map[string]interface{}{
		"path": path,
		"markers": []map[string]interface{}{
			{"code": 5, "size": 10},
			{"code": 6, "size": 10},
		},
		"overlay": true,
	}, &res)

	if len(res.Markers) != 2 {
		t.Fatalf("Markers: got %d, want 2", len(res.Markers))
	}
	assertCentredMarker(t, res, res.Markers[0].ID)
	if res.Markers[1].Found {
		t.Error("marker 6 reported on a frame showing only 5")
	}
	if res.Stats.Found != 1 || res.Stats.Frames != 1 {
		t.Errorf("Stats: got %+v", res.Stats)
	}
	if res.Projection[0] == 0 || res.Projection[15] != 0 {
		t.Errorf("Projection: got %v", res.Projection)
	}
	if res.Overlay == nil || res.Overlay.Outlines != 1 {
		t.Errorf("Overlay: got %+v", res.Overlay)
	}
}

func TestHandleToolsCall_MarkerTrackConfigFile(t *testing.T) {
	s := quietServer()
	path := createMarkerFile(t, 9)

	dir := t.TempDir()
	calib := `width: 320
height: 240
fx: 320
fy: 320
cx: 160
cy: 120
`
	if err := os.WriteFile(filepath.Join(dir, "camera.yaml"), []byte(calib), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := `family: idcode
calibration: camera.yaml
markers:
  - code: 9
    size: 10
`
	cfgPath := filepath.Join(dir, "tracker.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	var res TrackResult
	callTool(t, s, "marker_track", map[string]interface{}{"path": path, "config": cfgPath}, &res)
	if len(res.Markers) != 1 {
		t.Fatalf("Markers: got %d, want 1", len(res.Markers))
	}
	assertCentredMarker(t, res, res.Markers[0].ID)
	if res.Overlay != nil {
		t.Error("overlay returned without being requested")
	}
}

func TestHandleToolsCall_MarkerTrackErrors(t *testing.T) {
	s := quietServer()
	path := createMarkerFile(t, 5)
	markers := []map[string]interface{}{{"code": 5, "size": 10}}

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"no markers", map[string]interface{}{"path": path}},
		{"bad family", map[string]interface{}{"path": path, "family": "qr", "markers": markers}},
		{"bad size", map[string]interface{}{"path": path, "markers": []map[string]interface{}{{"code": 5, "size": 0}}}},
		{"bad code", map[string]interface{}{"path": path, "markers": []map[string]interface{}{{"code": 999, "size": 10}}}},
		{"missing config", map[string]interface{}{"path": path, "config": filepath.Join(t.TempDir(), "none.yaml")}},
		{"missing calibration", map[string]interface{}{"path": path, "markers": markers, "calibration": filepath.Join(t.TempDir(), "none.yaml")}},
		{"missing frame", map[string]interface{}{"path": filepath.Join(t.TempDir(), "none.png"), "markers": markers}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectToolError(t, s, "marker_track", tt.args)
		})
	}
}

func TestHandleToolsCall_MarkerRenderID(t *testing.T) {
	s := quietServer()
	out := filepath.Join(t.TempDir(), "marker.png")

	var res RenderIDResult
	callTool(t, s, "marker_render_id", map[string]interface{}{"id": 0, "output_path": out}, &res)
	if res.ID != 0 {
		t.Errorf("ID: got %d, want 0", res.ID)
	}
	if want := (pattern.IDGridSize + 2) * 20; res.Width != want || res.Height != want {
		t.Errorf("dimensions: got %dx%d, want %d", res.Width, res.Height, want)
	}
	if res.SavedTo != out {
		t.Errorf("SavedTo: got %q", res.SavedTo)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("marker not saved: %v", err)
	}

	expectToolError(t, s, "marker_render_id", map[string]interface{}{})
	expectToolError(t, s, "marker_render_id", map[string]interface{}{"id": pattern.MaxID + 1})
	expectToolError(t, s, "marker_render_id", map[string]interface{}{"id": 1, "cell_size": -2})
}

func TestHandleToolsCall_CameraProjection(t *testing.T) {
	s := quietServer()
	path := filepath.Join(t.TempDir(), "camera.yaml")
	calib := `width: 640
height: 480
fx: 500
fy: 500
cx: 320
cy: 240
`
	if err := os.WriteFile(path, []byte(calib), 0o644); err != nil {
		t.Fatal(err)
	}

	var res CameraProjectionResult
	callTool(t, s, "camera_projection", map[string]interface{}{"calibration": path}, &res)
	if res.Near != 0.1 || res.Far != 1000 {
		t.Errorf("clip planes: got %v, %v", res.Near, res.Far)
	}
	if res.Distortion != "none" {
		t.Errorf("Distortion: got %s", res.Distortion)
	}
	wantFov := 2 * math.Atan(320.0/500) * 180 / math.Pi
	if math.Abs(res.FovX-wantFov) > 1e-9 {
		t.Errorf("FovX: got %v, want %v", res.FovX, wantFov)
	}
	if math.Abs(res.Projection[0]-2*500.0/640) > 1e-12 {
		t.Errorf("Projection[0]: got %v", res.Projection[0])
	}

	var scaled CameraProjectionResult
	callTool(t, s, "camera_projection", map[string]interface{}{"calibration": path, "width": 320, "height": 240}, &scaled)
	if scaled.Fx != 250 || scaled.Cx != 160 || scaled.Width != 320 {
		t.Errorf("scaled: got fx %v cx %v width %d", scaled.Fx, scaled.Cx, scaled.Width)
	}
	if math.Abs(scaled.FovX-wantFov) > 1e-9 {
		t.Errorf("scaling changed the field of view: %v", scaled.FovX)
	}

	expectToolError(t, s, "camera_projection", map[string]interface{}{"calibration": path, "width": 320})
	expectToolError(t, s, "camera_projection", map[string]interface{}{"calibration": path, "near": 10, "far": 5})
	expectToolError(t, s, "camera_projection", map[string]interface{}{"calibration": filepath.Join(t.TempDir(), "none.yaml")})
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	expectToolError(t, quietServer(), "image_crop", map[string]interface{}{})
}
