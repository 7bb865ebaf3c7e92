package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
)

// EstimatorConfig tunes pose estimation.
type EstimatorConfig struct {
	// Continuous seeds refinement with the previous frame's pose when one is
	// supplied. When false the previous pose is ignored.
	Continuous bool `yaml:"continuous" json:"continuous"`

	// MinArea is the smallest quad area in square pixels accepted for a solve.
	// Default 16.
	MinArea float64 `yaml:"min_area" json:"min_area"`

	// MinCornerSine is the smallest sine of any corner angle. Quads with a
	// flatter corner are treated as collinear. Default 0.05.
	MinCornerSine float64 `yaml:"min_corner_sine" json:"min_corner_sine"`

	// MaxIterations bounds Levenberg-Marquardt refinement. Default 20.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// MaxReprojectionError is the RMS corner error in pixels above which a
	// seeded solve is discarded in favour of a fresh one. Default 2.
	MaxReprojectionError float64 `yaml:"max_reprojection_error" json:"max_reprojection_error"`
}

// DefaultEstimatorConfig returns single-shot estimation with standard limits.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		MinArea:              16,
		MinCornerSine:        0.05,
		MaxIterations:        20,
		MaxReprojectionError: 2,
	}
}

// Normalize replaces out-of-range values with defaults.
func (c *EstimatorConfig) Normalize() {
	d := DefaultEstimatorConfig()
	if c.MinArea <= 0 {
		c.MinArea = d.MinArea
	}
	if c.MinCornerSine <= 0 || c.MinCornerSine >= 1 {
		c.MinCornerSine = d.MinCornerSine
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxReprojectionError <= 0 {
		c.MaxReprojectionError = d.MaxReprojectionError
	}
}

// Result is a solved marker pose.
type Result struct {
	// Pose maps marker coordinates into the camera frame (x right, y down,
	// z forward).
	Pose mgl64.Mat4

	// ReprojectionError is the RMS distance in pixels between the observed
	// corners and the projected model corners.
	ReprojectionError float64

	// Iterations is the number of accepted refinement steps.
	Iterations int

	// Seeded reports whether the previous pose was used as the starting point.
	Seeded bool
}

// Estimator solves marker poses from four corner correspondences. It holds
// no per-frame state and may be shared by every marker of one tracker.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator creates an estimator; zero config fields take defaults.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	cfg.Normalize()
	return &Estimator{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Estimator) Config() EstimatorConfig { return e.cfg }

// MarkerCorners returns the model corners of a square marker of the given
// side length, in the order top-left, top-right, bottom-right, bottom-left.
func MarkerCorners(size float64) [4]mgl64.Vec3 {
	h := size / 2
	return [4]mgl64.Vec3{{-h, -h, 0}, {h, -h, 0}, {h, h, 0}, {-h, h, 0}}
}

// Estimate computes the pose of a square marker of side size whose corners
// (top-left first, clockwise on screen) were observed at corners.
//
// ok is false when the correspondence geometry is degenerate or no solution
// puts the marker in front of the camera. previous is only consulted in
// continuous mode; a seeded solve that reprojects worse than
// MaxReprojectionError is discarded and the pose is recomputed from scratch.
//
// # Algorithm
//
//  1. Reject quads with tiny area or a nearly straight corner
//  2. Undistort the corners and convert them to normalized image coordinates
//  3. Solve the plane-to-image homography by SVD
//  4. Decompose it into rotation and translation; project the rotation onto
//     the nearest orthonormal matrix
//  5. Refine by Levenberg-Marquardt on the reprojection error
func (e *Estimator) Estimate(corners []detection.Point, size float64, cam *Camera, previous *mgl64.Mat4) (Result, bool) {
	if len(corners) != 4 || !(size > 0) || cam == nil {
		return Result{}, false
	}
	if !e.wellShaped(corners) {
		return Result{}, false
	}

	var obs [4][2]float64
	var norm [4][2]float64
	for i, p := range corners {
		x, y := cam.Undistort(p.X, p.Y)
		obs[i] = [2]float64{x, y}
		norm[i][0], norm[i][1] = cam.Normalize(x, y)
	}
	model := MarkerCorners(size)
	p := problem{cam: cam, model: model, obs: obs}

	if e.cfg.Continuous && previous != nil {
		rot, t := splitPose(*previous)
		if t.Z() > 0 {
			rot, t, iters := p.refine(rot, t, e.cfg.MaxIterations)
			if errRMS := p.rms(rot, t); t.Z() > 0 && errRMS <= e.cfg.MaxReprojectionError {
				return Result{Pose: joinPose(rot, t), ReprojectionError: errRMS, Iterations: iters, Seeded: true}, true
			}
		}
	}

	rot, t, ok := homographyPose(norm, size)
	if !ok {
		return Result{}, false
	}
	rot, t, iters := p.refine(rot, t, e.cfg.MaxIterations)
	if t.Z() <= 0 {
		return Result{}, false
	}
	return Result{Pose: joinPose(rot, t), ReprojectionError: p.rms(rot, t), Iterations: iters}, true
}

// wellShaped applies the degeneracy gate.
func (e *Estimator) wellShaped(c []detection.Point) bool {
	var area float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		area += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	if math.Abs(area)/2 < e.cfg.MinArea {
		return false
	}
	for i := 0; i < 4; i++ {
		a := c[(i+3)%4].Sub(c[i])
		b := c[(i+1)%4].Sub(c[i])
		la, lb := math.Hypot(a.X, a.Y), math.Hypot(b.X, b.Y)
		if la == 0 || lb == 0 {
			return false
		}
		if math.Abs(a.X*b.Y-a.Y*b.X)/(la*lb) < e.cfg.MinCornerSine {
			return false
		}
	}
	return true
}

// homographyPose solves the initial pose from normalized image coordinates.
func homographyPose(norm [4][2]float64, size float64) (mgl64.Mat3, mgl64.Vec3, bool) {
	// Model corners in units of half the side keep the system well conditioned.
	unit := [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	a := mat.NewDense(8, 9, nil)
	for i := 0; i < 4; i++ {
		X, Y := unit[i][0], unit[i][1]
		x, y := norm[i][0], norm[i][1]
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -x * X, -x * Y, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -y * X, -y * Y, -y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return mgl64.Mat3{}, mgl64.Vec3{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	// An 8×9 system has a one-dimensional null space: the last column of V.
	h := v.ColView(8)

	k := 2 / size
	h1 := mgl64.Vec3{h.AtVec(0) * k, h.AtVec(3) * k, h.AtVec(6) * k}
	h2 := mgl64.Vec3{h.AtVec(1) * k, h.AtVec(4) * k, h.AtVec(7) * k}
	h3 := mgl64.Vec3{h.AtVec(2), h.AtVec(5), h.AtVec(8)}

	n1, n2 := h1.Len(), h2.Len()
	if n1 < 1e-12 || n2 < 1e-12 {
		return mgl64.Mat3{}, mgl64.Vec3{}, false
	}
	lambda := 2 / (n1 + n2)
	if h3.Z() < 0 {
		lambda = -lambda
	}
	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	t := h3.Mul(lambda)
	r3 := r1.Cross(r2)

	rot, ok := orthonormalize(mgl64.Mat3FromCols(r1, r2, r3))
	return rot, t, ok
}

// orthonormalize returns the rotation closest to m in the Frobenius norm.
func orthonormalize(m mgl64.Mat3) (mgl64.Mat3, bool) {
	d := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			d.Set(r, c, m.At(r, c))
		}
	}
	var svd mat.SVD
	if !svd.Factorize(d, mat.SVDFull) {
		return mgl64.Mat3{}, false
	}
	var u, v, out mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	out.Mul(&u, v.T())
	if mat.Det(&out) < 0 {
		for r := 0; r < 3; r++ {
			u.Set(r, 2, -u.At(r, 2))
		}
		out.Mul(&u, v.T())
	}

	var rot mgl64.Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rot.Set(r, c, out.At(r, c))
		}
	}
	return rot, true
}

// problem is the reprojection error of one marker observation.
type problem struct {
	cam   *Camera
	model [4]mgl64.Vec3
	obs   [4][2]float64 // ideal pixel positions
}

// failResidual stands in for a corner projected behind the camera.
const failResidual = 1e6

func (p *problem) residuals(rot mgl64.Mat3, t mgl64.Vec3, dst []float64) {
	for i, m := range p.model {
		x, y, ok := p.cam.ProjectIdeal(rot.Mul3x1(m).Add(t))
		if !ok {
			dst[2*i], dst[2*i+1] = failResidual, failResidual
			continue
		}
		dst[2*i] = x - p.obs[i][0]
		dst[2*i+1] = y - p.obs[i][1]
	}
}

func (p *problem) cost(rot mgl64.Mat3, t mgl64.Vec3) float64 {
	var r [8]float64
	p.residuals(rot, t, r[:])
	var s float64
	for _, v := range r {
		s += v * v
	}
	return s
}

func (p *problem) rms(rot mgl64.Mat3, t mgl64.Vec3) float64 {
	return math.Sqrt(p.cost(rot, t) / 4)
}

// perturb applies a parameter step: a rotation vector composed on the left of
// rot and a translation offset.
func perturb(rot mgl64.Mat3, t mgl64.Vec3, d []float64) (mgl64.Mat3, mgl64.Vec3) {
	w := mgl64.Vec3{d[0], d[1], d[2]}
	if angle := w.Len(); angle > 1e-15 {
		rot = mgl64.HomogRotate3D(angle, w.Mul(1/angle)).Mat3().Mul3(rot)
	}
	return rot, t.Add(mgl64.Vec3{d[3], d[4], d[5]})
}

// refine minimizes the reprojection error with Levenberg-Marquardt using a
// forward-difference Jacobian over six parameters.
func (p *problem) refine(rot mgl64.Mat3, t mgl64.Vec3, maxIter int) (mgl64.Mat3, mgl64.Vec3, int) {
	const (
		nParams = 6
		nRes    = 8
	)
	var (
		res, shifted [nRes]float64
		step         [nParams]float64
	)
	jac := mat.NewDense(nRes, nParams, nil)
	jtj := mat.NewDense(nParams, nParams, nil)
	jtr := mat.NewVecDense(nParams, nil)
	lhs := mat.NewDense(nParams, nParams, nil)
	var delta mat.VecDense

	cost := p.cost(rot, t)
	lambda := 1e-3
	accepted := 0

	for iter := 0; iter < maxIter && cost > 1e-18; iter++ {
		p.residuals(rot, t, res[:])
		for k := 0; k < nParams; k++ {
			h := 1e-7
			if k >= 3 {
				h = 1e-7 * math.Max(1, math.Abs(t.Z()))
			}
			step = [nParams]float64{}
			step[k] = h
			r2, t2 := perturb(rot, t, step[:])
			p.residuals(r2, t2, shifted[:])
			for i := 0; i < nRes; i++ {
				jac.Set(i, k, (shifted[i]-res[i])/h)
			}
		}
		jtj.Mul(jac.T(), jac)
		jtr.MulVec(jac.T(), mat.NewVecDense(nRes, res[:]))

		improved := false
		for tries := 0; tries < 10; tries++ {
			lhs.Copy(jtj)
			for k := 0; k < nParams; k++ {
				lhs.Set(k, k, jtj.At(k, k)*(1+lambda)+1e-12)
			}
			if err := delta.SolveVec(lhs, jtr); err != nil {
				lambda *= 10
				continue
			}
			for k := 0; k < nParams; k++ {
				step[k] = -delta.AtVec(k)
			}
			r2, t2 := perturb(rot, t, step[:])
			if c := p.cost(r2, t2); c < cost {
				rot, t, cost = r2, t2, c
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
		accepted++
		if mat.Norm(&delta, 2) < 1e-12 {
			break
		}
	}
	return rot, t, accepted
}

// splitPose extracts rotation and translation from a rigid transform.
func splitPose(m mgl64.Mat4) (mgl64.Mat3, mgl64.Vec3) {
	return m.Mat3(), m.Col(3).Vec3()
}

// joinPose builds a rigid transform from rotation and translation.
func joinPose(rot mgl64.Mat3, t mgl64.Vec3) mgl64.Mat4 {
	m := rot.Mat4()
	m.SetCol(3, t.Vec4(1))
	return m
}
