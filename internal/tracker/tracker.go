package tracker

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/fusion"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
	"github.com/ironsheep/marker-tools-mcp/internal/pose"
)

// State is the lifecycle stage of a tracker.
type State int

const (
	// Uninitialized trackers accept settings and marker associations but
	// cannot process frames.
	Uninitialized State = iota
	// Initialized trackers have a camera bound but have not seen a frame.
	Initialized
	// Tracking trackers have processed at least one frame.
	Tracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Tracking:
		return "tracking"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultThreshold is the binarization threshold used when none is configured.
const DefaultThreshold = 100

// DefaultMinConfidence is the acceptance threshold for a pattern match.
const DefaultMinConfidence = 0.5

// MarkerTracker is the capability set shared by every tracker family.
//
// A tracker serves exactly one camera. It is not safe for concurrent use:
// run one instance per video source.
type MarkerTracker interface {
	// Init binds the camera. It may be called once.
	Init(cam pose.Camera) error

	// SetClipPlanes sets the projection near and far planes. Only before Init.
	SetClipPlanes(near, far float64) error

	// SetResolution declares the frame size the camera will be used at. Only
	// before Init.
	SetResolution(width, height int) error

	// ProcessFrame runs one detection pass and publishes its results.
	ProcessFrame(frame *imaging.Frame) error

	// AssociateGroup registers a composite marker and returns its id.
	AssociateGroup(spec GroupSpec) (int, error)

	// AssociateMultiMarkerFile registers a composite marker described in XML.
	AssociateMultiMarkerFile(path string) (int, error)

	// SetMinConfidence changes the acceptance threshold of a marker or group.
	SetMinConfidence(id int, minConfidence float64) error

	IsFound(id int) bool
	GetPose(id int) (mgl64.Mat4, bool)
	Confidence(id int) float64
	Result(id int) (MarkerResult, bool)

	// Markers returns the latest result of every associated marker and group,
	// ordered by id.
	Markers() []MarkerResult

	ProjectionMatrix() (mgl64.Mat4, error)
	Stats() Stats
	State() State
	Family() Family
	ID() uuid.UUID
}

// Options configure a tracker at construction.
type Options struct {
	// Format is the pixel layout every frame must have.
	Format imaging.PixelFormat

	// Threshold is the fixed binarization threshold.
	Threshold uint8

	// AutoThreshold picks a threshold per frame with Otsu's method instead.
	AutoThreshold bool

	// MinConfidence is the default acceptance threshold for new markers.
	MinConfidence float64

	Detector  detection.DetectorConfig
	Estimator pose.EstimatorConfig

	// Logger receives lifecycle and per-frame diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the standard tracker options for format.
func DefaultOptions(format imaging.PixelFormat) Options {
	return Options{
		Format:        format,
		Threshold:     DefaultThreshold,
		MinConfidence: DefaultMinConfidence,
		Detector:      detection.DefaultDetectorConfig(),
		Estimator:     pose.DefaultEstimatorConfig(),
	}
}

// MarkerResult is the published outcome for one marker or group.
type MarkerResult struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Group bool   `json:"group"`
	Found bool   `json:"found"`

	// Pose is the camera-relative transform; zero when not found.
	Pose       mgl64.Mat4 `json:"pose"`
	Confidence float64    `json:"confidence"`

	// Corners are the image corners, top-left first. Singles only.
	Corners []detection.Point `json:"corners,omitempty"`

	// ReprojectionError is the RMS corner error in pixels. Singles only.
	ReprojectionError float64 `json:"reprojection_error,omitempty"`

	// Seeded reports that the previous frame's pose seeded the solve.
	Seeded bool `json:"seeded,omitempty"`

	// Used is the number of sub-markers fused. Groups only.
	Used int `json:"used,omitempty"`
}

// Stats summarizes the most recent frame pass.
type Stats struct {
	TrackerID  string `json:"tracker_id"`
	State      string `json:"state"`
	Frames     uint64 `json:"frames"`
	Threshold  uint8  `json:"threshold"`
	Candidates int    `json:"candidates"`
	Dropped    int    `json:"dropped"`
	Matched    int    `json:"matched"`
	Found      int    `json:"found"`
}

type recordKind int

const (
	kindSingle recordKind = iota
	kindGroup
)

type subRecord struct {
	code   int
	size   float64
	offset mgl64.Mat4
}

// record is one association: a single marker or a group.
type record struct {
	id      int
	name    string
	kind    recordKind
	minConf float64

	// single
	code int
	size float64

	// group
	policy fusion.Policy
	custom fusion.CombineFunc
	subs   []subRecord
}

// codeSize identifies a pose solve: the same code can be associated at
// more than one physical size.
type codeSize struct {
	code int
	size float64
}

type solved struct {
	ok      bool
	pose    pose.Result
	corners []detection.Point
	conf    float64
}

type hit struct {
	cand detection.Candidate
	conf float64
}

// core is the pipeline shared by every tracker family: threshold, detect,
// match, estimate, fuse, publish.
type core struct {
	id      uuid.UUID
	family  Family
	opts    Options
	log     *slog.Logger
	matcher pattern.Matcher

	state      State
	near, far  float64
	resW, resH int
	camera     pose.Camera // as calibrated, scaled to the declared resolution
	frameCam   pose.Camera // scaled to the current frame size
	projection mgl64.Mat4
	estimator  *pose.Estimator
	detector   *detection.Detector

	busy atomic.Bool

	records []*record
	byID    map[int]*record

	raster *imaging.BinaryRaster

	// Per-frame scratch, reused between passes.
	best   map[int]hit
	solves map[codeSize]solved

	// front holds the published results; back is filled during a pass and
	// swapped in at the end. prevPoses/curPoses do the same for the poses
	// used as continuous-mode seeds.
	front, back         map[int]MarkerResult
	prevPoses, curPoses map[codeSize]mgl64.Mat4

	stats Stats
}

func newCore(family Family, opts Options, matcher pattern.Matcher) *core {
	opts.Detector.Normalize()
	opts.Estimator.Normalize()
	if opts.MinConfidence <= 0 || opts.MinConfidence > 1 {
		opts.MinConfidence = DefaultMinConfidence
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	c := &core{
		id:        id,
		family:    family,
		opts:      opts,
		log:       logger.With("tracker", id.String(), "family", family.String()),
		matcher:   matcher,
		near:      pose.DefaultNear,
		far:       pose.DefaultFar,
		estimator: pose.NewEstimator(opts.Estimator),
		detector:  detection.NewDetector(opts.Detector),
		byID:      make(map[int]*record),
		best:      make(map[int]hit),
		solves:    make(map[codeSize]solved),
		front:     make(map[int]MarkerResult),
		back:      make(map[int]MarkerResult),
		prevPoses: make(map[codeSize]mgl64.Mat4),
		curPoses:  make(map[codeSize]mgl64.Mat4),
	}
	c.stats.TrackerID = id.String()
	return c
}

func (c *core) ID() uuid.UUID  { return c.id }
func (c *core) State() State   { return c.state }
func (c *core) Family() Family { return c.family }

// Init binds the camera and derives the projection matrix.
func (c *core) Init(cam pose.Camera) error {
	if c.busy.Load() {
		return ErrBusy
	}
	if c.state != Uninitialized {
		return ErrAlreadyInitialized
	}
	if err := cam.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.resW > 0 && c.resH > 0 {
		cam = cam.Scaled(c.resW, c.resH)
	}
	c.camera = cam
	c.frameCam = cam
	c.projection = cam.Projection(c.near, c.far)
	c.state = Initialized

	hfov, vfov := cam.FieldOfView()
	c.log.Info("tracker: initialized",
		"width", cam.Width, "height", cam.Height,
		"fov_h", hfov, "fov_v", vfov,
		"format", c.opts.Format.String(),
		"continuous", c.opts.Estimator.Continuous)
	return nil
}

// SetClipPlanes sets the projection clip planes.
func (c *core) SetClipPlanes(near, far float64) error {
	if c.state != Uninitialized {
		return fmt.Errorf("cannot change clip planes: %w", ErrAlreadyInitialized)
	}
	if !(near > 0) || !(far > near) {
		return fmt.Errorf("%w: clip planes near=%v far=%v", ErrInvalidConfig, near, far)
	}
	c.near, c.far = near, far
	return nil
}

// SetResolution declares the frame size used for the calibration.
func (c *core) SetResolution(width, height int) error {
	if c.state != Uninitialized {
		return fmt.Errorf("cannot change resolution: %w", ErrAlreadyInitialized)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, width, height)
	}
	c.resW, c.resH = width, height
	return nil
}

// ProjectionMatrix returns the OpenGL projection derived at Init.
func (c *core) ProjectionMatrix() (mgl64.Mat4, error) {
	if c.state == Uninitialized {
		return mgl64.Mat4{}, ErrNotInitialized
	}
	return c.projection, nil
}

// Camera returns the bound camera as scaled for the most recent frame.
func (c *core) Camera() (pose.Camera, error) {
	if c.state == Uninitialized {
		return pose.Camera{}, ErrNotInitialized
	}
	return c.frameCam, nil
}

func (c *core) addRecord(r *record) {
	c.records = append(c.records, r)
	c.byID[r.id] = r
}

// SetMinConfidence changes a marker's acceptance threshold.
func (c *core) SetMinConfidence(id int, minConfidence float64) error {
	if c.busy.Load() {
		return ErrBusy
	}
	r, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMarker, id)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return fmt.Errorf("%w: min confidence %v outside [0, 1]", ErrInvalidConfig, minConfidence)
	}
	r.minConf = minConfidence
	return nil
}

func (c *core) minConfidence(v float64) float64 {
	if v > 0 {
		return v
	}
	return c.opts.MinConfidence
}

// newGroupRecord validates spec and converts its sub-markers with resolve,
// which maps a sub-marker to a pattern code.
func (c *core) newGroupRecord(id int, spec GroupSpec, resolve func(SubMarker) (int, error)) (*record, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	r := &record{
		id:      id,
		name:    spec.Name,
		kind:    kindGroup,
		minConf: c.minConfidence(spec.MinConfidence),
		policy:  spec.Policy,
		custom:  spec.Custom,
	}
	for i, m := range spec.Markers {
		code, err := resolve(m)
		if err != nil {
			return nil, fmt.Errorf("group %q marker %d: %w", spec.Name, i, err)
		}
		r.subs = append(r.subs, subRecord{
			code:   code,
			size:   m.Size,
			offset: fusion.OffsetFromPlacement(m.X, m.Y, m.Rotation),
		})
	}
	return r, nil
}

// ProcessFrame runs threshold, detection, matching, pose estimation and
// fusion on frame, then publishes the results.
//
// The frame's layout must match the configured format; a mismatch is
// rejected before any pixel is read. Individual markers that cannot be
// resolved are published as not found; that is never an error.
func (c *core) ProcessFrame(frame *imaging.Frame) error {
	if c.state == Uninitialized {
		return ErrNotInitialized
	}
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidConfig)
	}
	if frame.Format != c.opts.Format {
		return fmt.Errorf("%w: frame is %s, tracker expects %s", ErrUnsupportedFormat, frame.Format, c.opts.Format)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	if c.raster == nil || c.raster.Width != frame.Width || c.raster.Height != frame.Height {
		c.raster = imaging.NewBinaryRaster(frame.Width, frame.Height)
		c.frameCam = c.camera.Scaled(frame.Width, frame.Height)
		c.log.Debug("tracker: frame buffers allocated", "width", frame.Width, "height", frame.Height)
	}
	c.state = Tracking

	threshold := c.opts.Threshold
	if c.opts.AutoThreshold {
		threshold = imaging.OtsuThreshold(frame)
	}
	if err := imaging.BinarizeInto(frame, threshold, c.raster); err != nil {
		return fmt.Errorf("failed to binarize frame: %w", err)
	}

	candidates, dstats := c.detector.Detect(c.raster)
	matched := c.matchCandidates(frame, candidates)

	clear(c.solves)
	clear(c.back)
	clear(c.curPoses)
	found := 0
	for _, r := range c.records {
		var res MarkerResult
		if r.kind == kindGroup {
			res = c.resolveGroup(r)
		} else {
			res = c.resolveSingle(r)
		}
		if res.Found {
			found++
		}
		c.back[r.id] = res
	}

	c.front, c.back = c.back, c.front
	c.prevPoses, c.curPoses = c.curPoses, c.prevPoses

	c.stats.Frames++
	c.stats.Threshold = threshold
	c.stats.Candidates = len(candidates)
	c.stats.Dropped = dstats.Dropped
	c.stats.Matched = matched
	c.stats.Found = found

	if dstats.Dropped > 0 {
		c.log.Warn("tracker: candidate capacity exceeded", "dropped", dstats.Dropped, "kept", len(candidates))
	}
	c.log.Debug("tracker: frame processed",
		"frame", c.stats.Frames, "threshold", threshold,
		"candidates", len(candidates), "matched", matched, "found", found)
	return nil
}

// matchCandidates keeps, for every associated code, the most confident
// candidate. It returns the number of candidates that matched anything.
func (c *core) matchCandidates(frame *imaging.Frame, candidates []detection.Candidate) int {
	clear(c.best)
	wanted := c.wantedCodes()
	matched := 0
	for _, cand := range candidates {
		m, ok := c.matcher.Match(frame, cand)
		if !ok {
			continue
		}
		matched++
		if _, ok := wanted[m.Code]; !ok {
			continue
		}
		if prev, ok := c.best[m.Code]; ok && prev.conf >= m.Confidence {
			continue
		}
		cand.Direction = m.Rotation
		cand.Corners = append([]detection.Point(nil), cand.Corners...)
		c.best[m.Code] = hit{cand: cand, conf: m.Confidence}
	}
	return matched
}

func (c *core) wantedCodes() map[int]struct{} {
	w := make(map[int]struct{}, len(c.records))
	for _, r := range c.records {
		if r.kind == kindSingle {
			w[r.code] = struct{}{}
			continue
		}
		for _, s := range r.subs {
			w[s.code] = struct{}{}
		}
	}
	return w
}

// solve estimates the pose of one code at one size, at most once per frame.
func (c *core) solve(code int, size, minConf float64) solved {
	h, ok := c.best[code]
	if !ok || h.conf < minConf {
		return solved{}
	}
	key := codeSize{code, size}
	if s, ok := c.solves[key]; ok {
		return s
	}

	var seed *mgl64.Mat4
	if p, ok := c.prevPoses[key]; ok {
		seed = &p
	}
	corners := h.cand.Ordered()
	res, ok := c.estimator.Estimate(corners, size, &c.frameCam, seed)
	s := solved{ok: ok, pose: res, corners: corners, conf: h.conf}
	c.solves[key] = s
	if ok {
		c.curPoses[key] = res.Pose
	}
	return s
}

func (c *core) resolveSingle(r *record) MarkerResult {
	out := MarkerResult{ID: r.id, Name: r.name}
	s := c.solve(r.code, r.size, r.minConf)
	if !s.ok {
		return out
	}
	out.Found = true
	out.Pose = s.pose.Pose
	out.Confidence = s.conf
	out.Corners = s.corners
	out.ReprojectionError = s.pose.ReprojectionError
	out.Seeded = s.pose.Seeded
	return out
}

func (c *core) resolveGroup(r *record) MarkerResult {
	out := MarkerResult{ID: r.id, Name: r.name, Group: true}
	obs := make([]fusion.Observation, 0, len(r.subs))
	for _, sub := range r.subs {
		s := c.solve(sub.code, sub.size, r.minConf)
		if !s.ok {
			continue
		}
		obs = append(obs, fusion.Observation{
			SubID:      sub.code,
			Offset:     sub.offset,
			Pose:       s.pose.Pose,
			Confidence: s.conf,
		})
	}
	fused, ok := fusion.Combine(obs, r.policy, r.custom)
	if !ok {
		return out
	}
	out.Found = true
	out.Pose = fused.Pose
	out.Confidence = fused.Confidence
	out.Used = fused.Used
	return out
}

// IsFound reports whether id was found in the most recent frame.
func (c *core) IsFound(id int) bool {
	return c.front[id].Found
}

// GetPose returns the camera-relative pose of id from the most recent frame.
func (c *core) GetPose(id int) (mgl64.Mat4, bool) {
	r, ok := c.front[id]
	if !ok || !r.Found {
		return mgl64.Mat4{}, false
	}
	return r.Pose, true
}

// Confidence returns the match confidence of id, or 0 when not found.
func (c *core) Confidence(id int) float64 {
	return c.front[id].Confidence
}

// Result returns the full published result for id.
func (c *core) Result(id int) (MarkerResult, bool) {
	r, ok := c.front[id]
	return r, ok
}

// Markers returns the latest result of every association, ordered by id.
// Before the first frame every entry is reported as not found.
func (c *core) Markers() []MarkerResult {
	out := make([]MarkerResult, 0, len(c.records))
	for _, r := range c.records {
		res, ok := c.front[r.id]
		if !ok {
			res = MarkerResult{ID: r.id, Name: r.name, Group: r.kind == kindGroup}
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the counters of the most recent frame pass.
func (c *core) Stats() Stats {
	s := c.stats
	s.State = c.state.String()
	return s
}
