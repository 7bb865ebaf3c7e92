package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// glFlip converts between the vision camera frame (y down, z forward) and
// the OpenGL camera frame (y up, looking down -z).
var glFlip = mgl64.Diag4(mgl64.Vec4{1, -1, -1, 1})

// ToGL converts a marker pose to OpenGL camera convention, suitable as a
// model-view matrix together with Camera.Projection.
func ToGL(m mgl64.Mat4) mgl64.Mat4 {
	return glFlip.Mul4(m)
}

// Translation returns the translation part of a rigid transform.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

// RigidInverse inverts a rotation-plus-translation transform.
func RigidInverse(m mgl64.Mat4) mgl64.Mat4 {
	rt := m.Mat3().Transpose()
	t := rt.Mul3x1(Translation(m)).Mul(-1)
	return joinPose(rt, t)
}

// RotationAngle returns the angle in degrees of the rotation taking a's
// orientation to b's.
func RotationAngle(a, b mgl64.Mat4) float64 {
	qa := mgl64.Mat4ToQuat(a).Normalize()
	qb := mgl64.Mat4ToQuat(b).Normalize()
	d := math.Min(1, math.Abs(qa.Dot(qb)))
	return mgl64.RadToDeg(2 * math.Acos(d))
}
