// Package config defines the node configuration: the fixed camera model, stream names and
// loop parameters.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/rimage/transform"
	"go.viam.com/segfront/vision"
)

// Default stream names.
const (
	DefaultInputTopic         = "camera_0/image"
	DefaultResultTopic        = "objects"
	DefaultVisualizationTopic = "result_images"
)

// MaxPollHz bounds poll_hz so that the tick period stays a positive duration.
const MaxPollHz = 1000

var (
	// camera0K and camera0D are the calibration of the front camera the node was built for.
	camera0K = []float64{
		1125.74141, 0., 917.19798,
		0., 1124.54648, 533.19051,
		0., 0., 1.,
	}
	camera0D = []float64{-0.164614, 0.004523, -0.010740, -0.000858, 0.042291, 0.358953, -0.192945, 0.076769}
)

// Config is the node configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	CameraMatrix     []float64 `json:"camera_matrix"`
	DistortionCoeffs []float64 `json:"distortion_coeffs"`

	PollHz        float64 `json:"poll_hz"`
	Visualization bool    `json:"visualization"`
	MinScore      float64 `json:"min_score,omitempty"`
	MinArea       int     `json:"min_area,omitempty"`
	StatsInterval int     `json:"stats_interval,omitempty"`

	InputTopic         string `json:"input_topic"`
	ResultTopic        string `json:"result_topic"`
	VisualizationTopic string `json:"visualization_topic"`
	ListenAddress      string `json:"listen_address,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CameraMatrix:       append([]float64(nil), camera0K...),
		DistortionCoeffs:   append([]float64(nil), camera0D...),
		PollHz:             100,
		Visualization:      true,
		StatsInterval:      11,
		InputTopic:         DefaultInputTopic,
		ResultTopic:        DefaultResultTopic,
		VisualizationTopic: DefaultVisualizationTopic,
		LogLevel:           "info",
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if len(c.CameraMatrix) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "camera_matrix")
	}
	if len(c.CameraMatrix) != 9 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("camera_matrix must have 9 values, got %d", len(c.CameraMatrix)))
	}
	if len(c.DistortionCoeffs) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "distortion_coeffs")
	}
	if n := len(c.DistortionCoeffs); n < 5 || n > 8 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("distortion_coeffs must have between 5 and 8 values, got %d", n))
	}
	if c.PollHz <= 0 || c.PollHz > MaxPollHz {
		return utils.NewConfigValidationError(path,
			errors.Errorf("poll_hz must be in (0, %d], got %v", MaxPollHz, c.PollHz))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return utils.NewConfigValidationError(path, errors.New("min_score must be between 0 and 1"))
	}
	if c.MinArea < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_area cannot be negative"))
	}
	if c.StatsInterval < 0 {
		return utils.NewConfigValidationError(path, errors.New("stats_interval cannot be negative"))
	}
	for name, topic := range map[string]string{
		"input_topic":         c.InputTopic,
		"result_topic":        c.ResultTopic,
		"visualization_topic": c.VisualizationTopic,
	} {
		if topic == "" {
			return utils.NewConfigValidationFieldRequiredError(path, name)
		}
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if _, err := c.CameraModel(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// CameraModel builds the immutable camera model from the calibration values.
func (c *Config) CameraModel() (*transform.PinholeCameraModel, error) {
	return transform.NewPinholeCameraModel(c.CameraMatrix, c.DistortionCoeffs)
}

// Postprocessor returns the score and mask area filters that are enabled, or nil.
func (c *Config) Postprocessor() vision.Postprocessor {
	var pps []vision.Postprocessor
	if c.MinScore > 0 {
		pps = append(pps, vision.NewScoreFilter(c.MinScore))
	}
	if c.MinArea > 0 {
		pps = append(pps, vision.NewAreaFilter(c.MinArea))
	}
	if len(pps) == 0 {
		return nil
	}
	return vision.Chain(pps...)
}

// Level returns the configured log level, INFO if unset.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

func (c *Config) String() string {
	return fmt.Sprintf("input=%s results=%s visualization=%s(%t) poll_hz=%v",
		c.InputTopic, c.ResultTopic, c.VisualizationTopic, c.Visualization, c.PollHz)
}
