package fusion

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Policy selects how sub-marker poses are combined into one group pose.
type Policy int

const (
	// Average is the unweighted mean of all adjusted sub-marker poses.
	Average Policy = iota
	// BestConfidence takes the adjusted pose of the most confident sub-marker.
	BestConfidence
	// WeightedAverage is the confidence-weighted mean of adjusted poses.
	WeightedAverage
	// Custom delegates to a caller-supplied CombineFunc.
	Custom
)

var policyNames = [...]string{"average", "best-confidence", "weighted-average", "custom"}

func (p Policy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps a policy name to a Policy. Underscores and case are ignored.
func ParsePolicy(name string) (Policy, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	switch n {
	case "best", "bestconfidence":
		return BestConfidence, nil
	case "weighted", "weightedaverage":
		return WeightedAverage, nil
	}
	for i, s := range policyNames {
		if s == n {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown fusion policy: %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Observation is one sub-marker seen in the current frame.
type Observation struct {
	SubID int

	// Offset maps group coordinates into the sub-marker's own coordinates.
	// It is the inverse of the sub-marker's placement on the group.
	Offset mgl64.Mat4

	// Pose is the sub-marker's observed camera-relative pose.
	Pose mgl64.Mat4

	Confidence float64
}

// Adjusted returns the group pose implied by this observation alone: the
// offset is applied first, then the observed pose.
func (o Observation) Adjusted() mgl64.Mat4 {
	return o.Pose.Mul4(o.Offset)
}

// OffsetFromPlacement returns the Offset of a sub-marker whose centre sits
// at (x, y) on the group plane, rotated by angleDeg about the plane normal.
func OffsetFromPlacement(x, y, angleDeg float64) mgl64.Mat4 {
	return mgl64.HomogRotate3DZ(-mgl64.DegToRad(angleDeg)).Mul4(mgl64.Translate3D(-x, -y, 0))
}

// CombineFunc is a caller-supplied combination of adjusted poses. The
// slices are parallel and non-empty. Returning false marks the group as not
// found for this frame.
type CombineFunc func(adjusted []mgl64.Mat4, confidences []float64) (mgl64.Mat4, bool)

// Result is a fused group pose.
type Result struct {
	Pose       mgl64.Mat4
	Confidence float64

	// Used is the number of observations that contributed.
	Used int
}

// Combine fuses observations of one group according to policy.
//
// ok is false when there is nothing to combine: no observations, a total
// weight of zero under WeightedAverage, a missing custom function, or a
// custom function that declines.
func Combine(obs []Observation, policy Policy, custom CombineFunc) (Result, bool) {
	if len(obs) == 0 {
		return Result{}, false
	}

	switch policy {
	case BestConfidence:
		best := 0
		for i := 1; i < len(obs); i++ {
			if obs[i].Confidence > obs[best].Confidence {
				best = i
			}
		}
		return Result{Pose: obs[best].Adjusted(), Confidence: obs[best].Confidence, Used: 1}, true

	case Average:
		weights := make([]float64, len(obs))
		var conf float64
		for i, o := range obs {
			weights[i] = 1
			conf += o.Confidence
		}
		m, ok := weightedMean(obs, weights)
		return Result{Pose: m, Confidence: conf / float64(len(obs)), Used: len(obs)}, ok

	case WeightedAverage:
		weights := make([]float64, len(obs))
		var total, conf float64
		for i, o := range obs {
			weights[i] = math.Max(0, o.Confidence)
			total += weights[i]
			conf += weights[i] * weights[i]
		}
		if total <= 0 {
			return Result{}, false
		}
		m, ok := weightedMean(obs, weights)
		return Result{Pose: m, Confidence: conf / total, Used: len(obs)}, ok

	case Custom:
		if custom == nil {
			return Result{}, false
		}
		adjusted := make([]mgl64.Mat4, len(obs))
		confs := make([]float64, len(obs))
		var conf float64
		for i, o := range obs {
			adjusted[i] = o.Adjusted()
			confs[i] = o.Confidence
			conf += o.Confidence
		}
		m, ok := custom(adjusted, confs)
		if !ok {
			return Result{}, false
		}
		return Result{Pose: m, Confidence: conf / float64(len(obs)), Used: len(obs)}, true
	}
	return Result{}, false
}

// weightedMean averages adjusted poses: translations linearly, rotations as
// quaternions flipped onto the first one's hemisphere and renormalized.
func weightedMean(obs []Observation, weights []float64) (mgl64.Mat4, bool) {
	var total float64
	var t mgl64.Vec3
	var q mgl64.Quat
	var ref mgl64.Quat

	for i, o := range obs {
		w := weights[i]
		if w <= 0 {
			continue
		}
		m := o.Adjusted()
		qi := mgl64.Mat4ToQuat(m).Normalize()
		if total == 0 {
			ref = qi
		} else if ref.Dot(qi) < 0 {
			qi = qi.Scale(-1)
		}
		q = q.Add(qi.Scale(w))
		t = t.Add(m.Col(3).Vec3().Mul(w))
		total += w
	}
	if total <= 0 || q.Len() < 1e-12 {
		return mgl64.Mat4{}, false
	}

	out := q.Normalize().Mat4()
	out.SetCol(3, t.Mul(1/total).Vec4(1))
	return out, true
}
