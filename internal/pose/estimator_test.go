package pose

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
)

func makePose(angleDeg float64, axis, t mgl64.Vec3) mgl64.Mat4 {
	rot := mgl64.HomogRotate3D(mgl64.DegToRad(angleDeg), axis.Normalize())
	return mgl64.Translate3D(t.X(), t.Y(), t.Z()).Mul4(rot)
}

// projectCorners renders the corners of a marker at pose m through cam.
func projectCorners(t *testing.T, cam *Camera, m mgl64.Mat4, size float64) []detection.Point {
	t.Helper()
	out := make([]detection.Point, 0, 4)
	for _, c := range MarkerCorners(size) {
		x, y, ok := cam.Project(m.Mul4x1(c.Vec4(1)).Vec3())
		if !ok {
			t.Fatalf("corner %v behind camera", c)
		}
		out = append(out, detection.Point{X: x, Y: y})
	}
	return out
}

func assertPose(t *testing.T, got, want mgl64.Mat4, posEps, angEps float64) {
	t.Helper()
	if d := Translation(got).Sub(Translation(want)).Len(); d > posEps {
		t.Errorf("translation %v, want %v (error %v)", Translation(got), Translation(want), d)
	}
	if a := RotationAngle(got, want); a > angEps {
		t.Errorf("rotation differs by %v degrees", a)
	}
}

func TestEstimateExact(t *testing.T) {
	tests := []struct {
		name string
		cam  *Camera
		pose mgl64.Mat4
	}{
		{"head on", testCamera(), makePose(0, mgl64.Vec3{0, 0, 1}, mgl64.Vec3{0, 0, 40})},
		{"tilted", testCamera(), makePose(35, mgl64.Vec3{1, 0.4, 0}, mgl64.Vec3{3, -2, 55})},
		{"rolled", testCamera(), makePose(120, mgl64.Vec3{0.1, 0, 1}, mgl64.Vec3{-5, 4, 70})},
		{"distorted lens", func() *Camera {
			c := testCamera()
			c.Distortion = BrownConrady{K1: -0.25, K2: 0.06}
			return c
		}(), makePose(20, mgl64.Vec3{0, 1, 0.2}, mgl64.Vec3{8, 6, 45})},
	}

	est := NewEstimator(DefaultEstimatorConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corners := projectCorners(t, tt.cam, tt.pose, 10)
			res, ok := est.Estimate(corners, 10, tt.cam, nil)
			if !ok {
				t.Fatal("Estimate returned not found")
			}
			assertPose(t, res.Pose, tt.pose, 1e-4, 1e-3)
			if res.ReprojectionError > 1e-4 {
				t.Errorf("reprojection error = %v", res.ReprojectionError)
			}
			if res.Seeded {
				t.Error("single-shot result reported as seeded")
			}
		})
	}
}

func TestEstimateDegenerate(t *testing.T) {
	cam := testCamera()
	est := NewEstimator(DefaultEstimatorConfig())

	tests := []struct {
		name    string
		corners []detection.Point
		size    float64
	}{
		{"three corners", []detection.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}}, 10},
		{"collinear", []detection.Point{{X: 100, Y: 100}, {X: 150, Y: 100}, {X: 200, Y: 100}, {X: 250, Y: 100}}, 10},
		{"tiny", []detection.Point{{X: 100, Y: 100}, {X: 102, Y: 100}, {X: 102, Y: 102}, {X: 100, Y: 102}}, 10},
		{"folded corner", []detection.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 300, Y: 100.5}, {X: 100, Y: 200}}, 10},
		{"zero size", []detection.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 200, Y: 200}, {X: 100, Y: 200}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := est.Estimate(tt.corners, tt.size, cam, nil); ok {
				t.Error("expected not found")
			}
		})
	}
}

func TestEstimateContinuous(t *testing.T) {
	cam := testCamera()
	truth := makePose(25, mgl64.Vec3{1, 1, 0}, mgl64.Vec3{2, 1, 50})
	corners := projectCorners(t, cam, truth, 10)

	cfg := DefaultEstimatorConfig()
	cfg.Continuous = true
	est := NewEstimator(cfg)

	t.Run("close seed", func(t *testing.T) {
		seed := makePose(26, mgl64.Vec3{1, 1, 0.05}, mgl64.Vec3{2.2, 0.9, 49})
		res, ok := est.Estimate(corners, 10, cam, &seed)
		if !ok {
			t.Fatal("not found")
		}
		if !res.Seeded {
			t.Error("expected seeded result")
		}
		assertPose(t, res.Pose, truth, 1e-4, 1e-3)
	})

	t.Run("seed behind camera", func(t *testing.T) {
		seed := makePose(0, mgl64.Vec3{0, 0, 1}, mgl64.Vec3{0, 0, -50})
		res, ok := est.Estimate(corners, 10, cam, &seed)
		if !ok {
			t.Fatal("not found")
		}
		if res.Seeded {
			t.Error("unusable seed should fall back to single-shot")
		}
		assertPose(t, res.Pose, truth, 1e-4, 1e-3)
	})

	t.Run("nil seed", func(t *testing.T) {
		res, ok := est.Estimate(corners, 10, cam, nil)
		if !ok || res.Seeded {
			t.Fatalf("ok=%v seeded=%v, want single-shot solve", ok, res.Seeded)
		}
	})

	t.Run("single-shot ignores seed", func(t *testing.T) {
		seed := truth
		res, ok := NewEstimator(DefaultEstimatorConfig()).Estimate(corners, 10, cam, &seed)
		if !ok || res.Seeded {
			t.Fatalf("ok=%v seeded=%v, want unseeded solve", ok, res.Seeded)
		}
	})
}

func TestEstimateDeterministic(t *testing.T) {
	cam := testCamera()
	corners := projectCorners(t, cam, makePose(40, mgl64.Vec3{0.3, 1, 0.2}, mgl64.Vec3{-1, 2, 60}), 8)
	est := NewEstimator(DefaultEstimatorConfig())

	a, okA := est.Estimate(corners, 8, cam, nil)
	b, okB := est.Estimate(corners, 8, cam, nil)
	if !okA || !okB {
		t.Fatal("not found")
	}
	if a.Pose != b.Pose {
		t.Errorf("poses differ between identical calls:\n%v\n%v", a.Pose, b.Pose)
	}
}

func TestTransforms(t *testing.T) {
	m := makePose(30, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1, -2, 10})

	gl := ToGL(m)
	if tr := Translation(gl); tr.Y() != 2 || tr.Z() != -10 {
		t.Errorf("ToGL translation = %v, want (1, 2, -10)", tr)
	}

	id := m.Mul4(RigidInverse(m))
	want := mgl64.Ident4()
	for i := range id {
		if math.Abs(id[i]-want[i]) > 1e-9 {
			t.Errorf("m * inverse(m) = %v", id)
			break
		}
	}

	if a := RotationAngle(m, m); a > 1e-4 {
		t.Errorf("RotationAngle(m, m) = %v", a)
	}
}
