package pose

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Default clip planes for the projection matrix, in the same units as marker sizes.
const (
	DefaultNear = 0.1
	DefaultFar  = 1000.0
)

// Camera holds pinhole intrinsics and lens distortion for one capture device.
//
// Pixel coordinates follow the raster convention used by detection: x right,
// y down, pixel (x, y) spans [x, x+1) × [y, y+1).
type Camera struct {
	Width  int
	Height int

	Fx, Fy float64
	Cx, Cy float64
	Skew   float64

	// Distortion maps between ideal (pinhole) and observed pixel positions.
	// Nil means no distortion.
	Distortion Distortion
}

// Validate reports whether the intrinsics describe a usable camera.
func (c *Camera) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.Width, c.Height)
	}
	if !(c.Fx > 0) || !(c.Fy > 0) {
		return fmt.Errorf("invalid focal length fx=%v fy=%v", c.Fx, c.Fy)
	}
	return nil
}

func (c *Camera) distortion() Distortion {
	if c.Distortion == nil {
		return None{}
	}
	return c.Distortion
}

// Undistort maps an observed pixel position to its ideal pinhole position.
func (c *Camera) Undistort(x, y float64) (float64, float64) {
	return c.distortion().ToIdeal(*c, x, y)
}

// Distort maps an ideal pinhole position to where the lens actually puts it.
func (c *Camera) Distort(x, y float64) (float64, float64) {
	return c.distortion().ToObserved(*c, x, y)
}

// Normalize converts an ideal pixel position to normalized image coordinates
// (x/z, y/z in the camera frame).
func (c *Camera) Normalize(x, y float64) (float64, float64) {
	yn := (y - c.Cy) / c.Fy
	xn := (x - c.Cx - c.Skew*yn) / c.Fx
	return xn, yn
}

// ProjectIdeal projects a camera-frame point to ideal pixel coordinates.
// ok is false for points at or behind the camera plane.
func (c *Camera) ProjectIdeal(p mgl64.Vec3) (x, y float64, ok bool) {
	if p.Z() <= 1e-12 {
		return 0, 0, false
	}
	xn, yn := p.X()/p.Z(), p.Y()/p.Z()
	return c.Fx*xn + c.Skew*yn + c.Cx, c.Fy*yn + c.Cy, true
}

// Project projects a camera-frame point to observed pixel coordinates.
func (c *Camera) Project(p mgl64.Vec3) (x, y float64, ok bool) {
	x, y, ok = c.ProjectIdeal(p)
	if !ok {
		return 0, 0, false
	}
	x, y = c.Distort(x, y)
	return x, y, true
}

// Scaled returns the camera adjusted for frames of a different resolution
// than the one it was calibrated at.
func (c *Camera) Scaled(width, height int) Camera {
	if width == c.Width && height == c.Height {
		return *c
	}
	sx := float64(width) / float64(c.Width)
	sy := float64(height) / float64(c.Height)
	return Camera{
		Width:      width,
		Height:     height,
		Fx:         c.Fx * sx,
		Fy:         c.Fy * sy,
		Cx:         c.Cx * sx,
		Cy:         c.Cy * sy,
		Skew:       c.Skew * sx,
		Distortion: c.distortion().Scale(sx, sy),
	}
}

// Projection returns the OpenGL-style projection matrix for this camera.
//
// The matrix expects points in OpenGL camera convention (see ToGL) and maps
// the visible frustum between near and far into clip space, with the image
// top-left at NDC (-1, 1).
func (c *Camera) Projection(near, far float64) mgl64.Mat4 {
	w, h := float64(c.Width), float64(c.Height)
	return mgl64.Mat4FromRows(
		mgl64.Vec4{2 * c.Fx / w, -2 * c.Skew / w, 1 - 2*c.Cx/w, 0},
		mgl64.Vec4{0, 2 * c.Fy / h, 2*c.Cy/h - 1, 0},
		mgl64.Vec4{0, 0, -(far + near) / (far - near), -2 * far * near / (far - near)},
		mgl64.Vec4{0, 0, -1, 0},
	)
}

// FieldOfView returns the horizontal and vertical field of view in degrees.
func (c *Camera) FieldOfView() (horizontal, vertical float64) {
	horizontal = 2 * math.Atan(float64(c.Width)/(2*c.Fx))
	vertical = 2 * math.Atan(float64(c.Height)/(2*c.Fy))
	return mgl64.RadToDeg(horizontal), mgl64.RadToDeg(vertical)
}

// Distortion is a lens model.
//
// Both directions work in pixel coordinates; models that are defined on
// normalized coordinates use the camera's intrinsics to get there.
type Distortion interface {
	// ToIdeal maps an observed pixel position to the ideal pinhole position.
	ToIdeal(c Camera, x, y float64) (float64, float64)

	// ToObserved maps an ideal pixel position to the observed one.
	ToObserved(c Camera, x, y float64) (float64, float64)

	// Scale adapts the model to a resolution change by (sx, sy).
	Scale(sx, sy float64) Distortion

	// Model returns the model name used in calibration files.
	Model() string
}

// None is a distortion-free lens.
type None struct{}

func (None) ToIdeal(_ Camera, x, y float64) (float64, float64)    { return x, y }
func (None) ToObserved(_ Camera, x, y float64) (float64, float64) { return x, y }
func (n None) Scale(_, _ float64) Distortion                     { return n }
func (None) Model() string                                        { return ModelNone }

// BrownConrady is the radial-tangential model used by OpenCV, defined on
// normalized image coordinates.
type BrownConrady struct {
	K1, K2, P1, P2, K3 float64
}

func (d BrownConrady) apply(xn, yn float64) (float64, float64) {
	r2 := xn*xn + yn*yn
	radial := 1 + r2*(d.K1+r2*(d.K2+r2*d.K3))
	xd := xn*radial + 2*d.P1*xn*yn + d.P2*(r2+2*xn*xn)
	yd := yn*radial + d.P1*(r2+2*yn*yn) + 2*d.P2*xn*yn
	return xd, yd
}

// ToObserved applies the model.
func (d BrownConrady) ToObserved(c Camera, x, y float64) (float64, float64) {
	xn, yn := c.Normalize(x, y)
	xd, yd := d.apply(xn, yn)
	return c.Fx*xd + c.Skew*yd + c.Cx, c.Fy*yd + c.Cy
}

// ToIdeal inverts the model by fixed-point iteration.
func (d BrownConrady) ToIdeal(c Camera, x, y float64) (float64, float64) {
	xd, yd := c.Normalize(x, y)
	xn, yn := xd, yd
	for i := 0; i < 20; i++ {
		r2 := xn*xn + yn*yn
		radial := 1 + r2*(d.K1+r2*(d.K2+r2*d.K3))
		if radial <= 0 {
			break
		}
		dx := 2*d.P1*xn*yn + d.P2*(r2+2*xn*xn)
		dy := d.P1*(r2+2*yn*yn) + 2*d.P2*xn*yn
		xn = (xd - dx) / radial
		yn = (yd - dy) / radial
	}
	return c.Fx*xn + c.Skew*yn + c.Cx, c.Fy*yn + c.Cy
}

// Scale returns d unchanged: the coefficients are resolution independent.
func (d BrownConrady) Scale(_, _ float64) Distortion { return d }

func (BrownConrady) Model() string { return ModelBrownConrady }

// ARToolKitV2 is the single-coefficient radial model stored in ARToolKit
// camera parameter files. (X0, Y0) is the distortion centre in pixels, Factor
// the radial coefficient scaled by 1e8 and Aspect the fourth stored value, a
// scale applied before the radial term (0 is read as 1).
type ARToolKitV2 struct {
	X0, Y0 float64
	Factor float64
	Aspect float64
}

const artkFactorUnit = 1e8

func (d ARToolKitV2) scale() float64 {
	if d.Aspect == 0 {
		return 1
	}
	return d.Aspect
}

// ToObserved applies the model.
func (d ARToolKitV2) ToObserved(_ Camera, x, y float64) (float64, float64) {
	s := d.scale()
	px := (x - d.X0) * s
	py := (y - d.Y0) * s
	k := 1 - d.Factor/artkFactorUnit*(px*px+py*py)
	return px*k + d.X0, py*k + d.Y0
}

// ToIdeal inverts the model with Newton's method on the radius.
func (d ARToolKitV2) ToIdeal(_ Camera, x, y float64) (float64, float64) {
	px, py := x-d.X0, y-d.Y0
	q := math.Hypot(px, py)
	if q == 0 {
		return d.X0, d.Y0
	}
	f := d.Factor / artkFactorUnit
	z := q
	for i := 0; i < 10; i++ {
		den := 1 - 3*f*z*z
		if den == 0 {
			break
		}
		next := z - (z*(1-f*z*z)-q)/den
		if math.Abs(next-z) < 1e-12 {
			z = next
			break
		}
		z = next
	}
	s := d.scale()
	return px*z/q/s + d.X0, py*z/q/s + d.Y0
}

// Scale adapts the model to a resolution change. The radial term uses the
// horizontal factor, as ARToolKit itself does.
func (d ARToolKitV2) Scale(sx, sy float64) Distortion {
	return ARToolKitV2{
		X0:     d.X0 * sx,
		Y0:     d.Y0 * sy,
		Factor: d.Factor / (sx * sx),
		Aspect: d.scale(),
	}
}

func (ARToolKitV2) Model() string { return ModelARToolKitV2 }

// Distortion model names used in calibration files.
const (
	ModelNone         = "none"
	ModelBrownConrady = "brown-conrady"
	ModelARToolKitV2  = "artoolkit-v2"
)
