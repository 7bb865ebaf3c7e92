package tracker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/marker-tools-mcp/internal/detection"
	"github.com/ironsheep/marker-tools-mcp/internal/imaging"
	"github.com/ironsheep/marker-tools-mcp/internal/pattern"
	"github.com/ironsheep/marker-tools-mcp/internal/pose"
)

// Family selects how markers are identified.
type Family int

const (
	// FamilyIDCode trackers decode the marker number from its cell grid.
	FamilyIDCode Family = iota
	// FamilyTemplate trackers compare markers against appearance templates.
	FamilyTemplate
)

func (f Family) String() string {
	switch f {
	case FamilyIDCode:
		return "idcode"
	case FamilyTemplate:
		return "template"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// ParseFamily maps a family name to a Family.
func ParseFamily(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "idcode", "id", "id-code":
		return FamilyIDCode, nil
	case "template", "pattern":
		return FamilyTemplate, nil
	}
	return 0, fmt.Errorf("unknown tracker family: %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Family) UnmarshalText(text []byte) error {
	v, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MarkerConfig associates one single marker.
type MarkerConfig struct {
	// Code is the ID-code number (ID-code family).
	Code int `yaml:"code" json:"code"`

	// Pattern is the template file (template family).
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	Size          float64 `yaml:"size" json:"size"`
	MinConfidence float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
}

// Config is the complete description of a tracker, usually loaded from YAML.
type Config struct {
	Family        Family              `yaml:"family"`
	PixelFormat   imaging.PixelFormat `yaml:"pixel_format"`
	Threshold     int                 `yaml:"threshold"`
	AutoThreshold bool                `yaml:"auto_threshold"`
	MinConfidence float64             `yaml:"min_confidence"`

	// MinContrast is the ID-code decoder's cell contrast floor.
	MinContrast float64 `yaml:"min_contrast"`

	Near float64 `yaml:"near"`
	Far  float64 `yaml:"far"`

	// Width and Height, when set, declare the frame size the calibration is
	// scaled to at Init.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Calibration is the camera file (.dat or .yaml). Without one, New
	// returns an uninitialized tracker and the caller must call Init.
	Calibration string `yaml:"calibration"`

	Detector  detection.DetectorConfig `yaml:"detector"`
	Estimator pose.EstimatorConfig     `yaml:"pose"`

	Markers          []MarkerConfig `yaml:"markers"`
	Groups           []GroupSpec    `yaml:"groups"`
	MultiMarkerFiles []string       `yaml:"multimarker_files"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns an ID-code tracker configuration for RGB24 frames.
func DefaultConfig() Config {
	return Config{
		Family:        FamilyIDCode,
		PixelFormat:   imaging.FormatRGB24,
		Threshold:     DefaultThreshold,
		MinConfidence: DefaultMinConfidence,
		MinContrast:   pattern.DefaultMinContrast,
		Near:          pose.DefaultNear,
		Far:           pose.DefaultFar,
		Detector:      detection.DefaultDetectorConfig(),
		Estimator:     pose.DefaultEstimatorConfig(),
	}
}

// Validate checks ranges and fills defaults for zero-valued tuning blocks.
func (c *Config) Validate() error {
	if c.Family != FamilyIDCode && c.Family != FamilyTemplate {
		return fmt.Errorf("%w: unknown family %d", ErrInvalidConfig, int(c.Family))
	}
	if c.PixelFormat.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: unknown pixel format %s", ErrInvalidConfig, c.PixelFormat)
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("%w: threshold %d outside 0-255", ErrInvalidConfig, c.Threshold)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %v outside [0, 1]", ErrInvalidConfig, c.MinConfidence)
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.MinContrast < 0 {
		return fmt.Errorf("%w: min_contrast %v is negative", ErrInvalidConfig, c.MinContrast)
	}
	if c.Near == 0 && c.Far == 0 {
		c.Near, c.Far = pose.DefaultNear, pose.DefaultFar
	}
	if !(c.Near > 0) || !(c.Far > c.Near) {
		return fmt.Errorf("%w: clip planes near=%v far=%v", ErrInvalidConfig, c.Near, c.Far)
	}
	if (c.Width == 0) != (c.Height == 0) || c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	c.Detector.Normalize()
	c.Estimator.Normalize()

	for i, m := range c.Markers {
		if !(m.Size > 0) {
			return fmt.Errorf("%w: marker %d: size must be positive", ErrInvalidConfig, i)
		}
		if c.Family == FamilyTemplate && m.Pattern == "" {
			return fmt.Errorf("%w: marker %d: template markers need a pattern file", ErrInvalidConfig, i)
		}
		if m.MinConfidence < 0 || m.MinConfidence > 1 {
			return fmt.Errorf("%w: marker %d: min_confidence outside [0, 1]", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Options derives the tracker construction options.
func (c *Config) Options() Options {
	return Options{
		Format:        c.PixelFormat,
		Threshold:     uint8(c.Threshold),
		AutoThreshold: c.AutoThreshold,
		MinConfidence: c.MinConfidence,
		Detector:      c.Detector,
		Estimator:     c.Estimator,
		Logger:        c.Logger,
	}
}

// LoadConfig reads a YAML tracker configuration. Unset fields keep their
// DefaultConfig values and relative file paths are resolved against the
// configuration file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	cfg.Calibration = rel(cfg.Calibration)
	for i := range cfg.Markers {
		cfg.Markers[i].Pattern = rel(cfg.Markers[i].Pattern)
	}
	for i := range cfg.Groups {
		for j := range cfg.Groups[i].Markers {
			cfg.Groups[i].Markers[j].Pattern = rel(cfg.Groups[i].Markers[j].Pattern)
		}
	}
	for i := range cfg.MultiMarkerFiles {
		cfg.MultiMarkerFiles[i] = rel(cfg.MultiMarkerFiles[i])
	}
	return &cfg, nil
}

// New builds a tracker of the configured family, initializes it from the
// calibration file when one is given and registers every configured marker.
func New(cfg Config) (MarkerTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		mt        MarkerTracker
		associate func(MarkerConfig) (int, error)
	)
	switch cfg.Family {
	case FamilyTemplate:
		t := NewTemplateTracker(cfg.Options())
		mt = t
		associate = func(m MarkerConfig) (int, error) { return t.AssociatePatternFile(m.Pattern, m.Size) }
	default:
		t := NewIDCodeTracker(cfg.Options())
		if cfg.MinContrast > 0 {
			t.SetMinContrast(cfg.MinContrast)
		}
		mt = t
		associate = func(m MarkerConfig) (int, error) { return t.AssociateMarker(m.Code, m.Size) }
	}

	if err := mt.SetClipPlanes(cfg.Near, cfg.Far); err != nil {
		return nil, err
	}
	if cfg.Width > 0 {
		if err := mt.SetResolution(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
	}
	if cfg.Calibration != "" {
		cam, err := pose.LoadCalibration(cfg.Calibration)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := mt.Init(*cam); err != nil {
			return nil, err
		}
	}

	for _, m := range cfg.Markers {
		id, err := associate(m)
		if err != nil {
			return nil, err
		}
		if m.MinConfidence > 0 {
			if err := mt.SetMinConfidence(id, m.MinConfidence); err != nil {
				return nil, err
			}
		}
	}
	for _, g := range cfg.Groups {
		if _, err := mt.AssociateGroup(g); err != nil {
			return nil, err
		}
	}
	for _, path := range cfg.MultiMarkerFiles {
		if _, err := mt.AssociateMultiMarkerFile(path); err != nil {
			return nil, err
		}
	}
	return mt, nil
}
