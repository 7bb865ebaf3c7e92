package pose

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// artkParams is the on-disk layout of an ARToolKit camera parameter file.
// All values are big-endian.
type artkParams struct {
	XSize, YSize int32
	Mat          [3][4]float64
	Dist         [4]float64
}

// calibrationFile is the YAML calibration layout.
type calibrationFile struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fx         float64 `yaml:"fx"`
	Fy         float64 `yaml:"fy"`
	Cx         float64 `yaml:"cx"`
	Cy         float64 `yaml:"cy"`
	Skew       float64 `yaml:"skew,omitempty"`
	Distortion struct {
		Model        string    `yaml:"model"`
		Coefficients []float64 `yaml:"coefficients,flow"`
	} `yaml:"distortion"`
}

// LoadCalibration reads a camera calibration file.
//
// Files ending in .dat are ARToolKit binary parameter files; .yaml and .yml
// files use the YAML layout written by WriteYAMLCalibration.
func LoadCalibration(path string) (*Camera, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer f.Close()

	var cam *Camera
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".dat":
		cam, err = ReadARToolKitParams(f)
	case ".yaml", ".yml":
		cam, err = ReadYAMLCalibration(f)
	default:
		return nil, fmt.Errorf("unsupported calibration file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration %s: %w", path, err)
	}
	return cam, nil
}

// ReadARToolKitParams decodes an ARToolKit camera parameter file.
func ReadARToolKitParams(r io.Reader) (*Camera, error) {
	var p artkParams
	if err := binary.Read(r, binary.BigEndian, &p); err != nil {
		return nil, err
	}
	// The matrix is homogeneous; intrinsics assume a unit bottom-right entry.
	if s := p.Mat[2][2]; s != 0 && s != 1 {
		for r := 0; r < 2; r++ {
			for c := range p.Mat[r] {
				p.Mat[r][c] /= s
			}
		}
	}
	cam := &Camera{
		Width:  int(p.XSize),
		Height: int(p.YSize),
		Fx:     p.Mat[0][0],
		Skew:   p.Mat[0][1],
		Cx:     p.Mat[0][2],
		Fy:     p.Mat[1][1],
		Cy:     p.Mat[1][2],
		Distortion: ARToolKitV2{
			X0:     p.Dist[0],
			Y0:     p.Dist[1],
			Factor: p.Dist[2],
			Aspect: p.Dist[3],
		},
	}
	if err := cam.Validate(); err != nil {
		return nil, err
	}
	return cam, nil
}

// WriteARToolKitParams encodes cam as an ARToolKit camera parameter file.
// Only the ARToolKitV2 model (or none) can be represented.
func WriteARToolKitParams(w io.Writer, cam *Camera) error {
	var dist ARToolKitV2
	switch d := cam.distortion().(type) {
	case ARToolKitV2:
		dist = d
	case None:
		dist = ARToolKitV2{X0: cam.Cx, Y0: cam.Cy, Aspect: 1}
	default:
		return fmt.Errorf("distortion model %q cannot be stored in a .dat file", d.Model())
	}
	p := artkParams{
		XSize: int32(cam.Width),
		YSize: int32(cam.Height),
		Mat: [3][4]float64{
			{cam.Fx, cam.Skew, cam.Cx, 0},
			{0, cam.Fy, cam.Cy, 0},
			{0, 0, 1, 0},
		},
		Dist: [4]float64{dist.X0, dist.Y0, dist.Factor, dist.scale()},
	}
	return binary.Write(w, binary.BigEndian, &p)
}

// ReadYAMLCalibration decodes a YAML calibration.
func ReadYAMLCalibration(r io.Reader) (*Camera, error) {
	var cf calibrationFile
	if err := yaml.NewDecoder(r).Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cam := &Camera{
		Width:  cf.Width,
		Height: cf.Height,
		Fx:     cf.Fx,
		Fy:     cf.Fy,
		Cx:     cf.Cx,
		Cy:     cf.Cy,
		Skew:   cf.Skew,
	}

	k := cf.Distortion.Coefficients
	coef := func(i int) float64 {
		if i < len(k) {
			return k[i]
		}
		return 0
	}
	switch model := strings.ToLower(cf.Distortion.Model); model {
	case "", ModelNone:
		cam.Distortion = None{}
	case ModelBrownConrady, "opencv":
		if len(k) < 4 || len(k) > 5 {
			return nil, fmt.Errorf("brown-conrady needs 4 or 5 coefficients, got %d", len(k))
		}
		cam.Distortion = BrownConrady{K1: coef(0), K2: coef(1), P1: coef(2), P2: coef(3), K3: coef(4)}
	case ModelARToolKitV2:
		if len(k) != 4 {
			return nil, fmt.Errorf("artoolkit-v2 needs 4 coefficients, got %d", len(k))
		}
		cam.Distortion = ARToolKitV2{X0: k[0], Y0: k[1], Factor: k[2], Aspect: k[3]}
	default:
		return nil, fmt.Errorf("unknown distortion model %q", cf.Distortion.Model)
	}

	if err := cam.Validate(); err != nil {
		return nil, err
	}
	return cam, nil
}

// WriteYAMLCalibration encodes cam in the YAML calibration layout.
func WriteYAMLCalibration(w io.Writer, cam *Camera) error {
	cf := calibrationFile{
		Width:  cam.Width,
		Height: cam.Height,
		Fx:     cam.Fx,
		Fy:     cam.Fy,
		Cx:     cam.Cx,
		Cy:     cam.Cy,
		Skew:   cam.Skew,
	}
	switch d := cam.distortion().(type) {
	case None:
		cf.Distortion.Model = ModelNone
	case BrownConrady:
		cf.Distortion.Model = ModelBrownConrady
		cf.Distortion.Coefficients = []float64{d.K1, d.K2, d.P1, d.P2, d.K3}
	case ARToolKitV2:
		cf.Distortion.Model = ModelARToolKitV2
		cf.Distortion.Coefficients = []float64{d.X0, d.Y0, d.Factor, d.scale()}
	default:
		return fmt.Errorf("unknown distortion model %q", d.Model())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cf); err != nil {
		return err
	}
	return enc.Close()
}
