// Package gicp aligns 3D point clouds with Generalized ICP.
package gicp

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Optimizer names accepted in Config.Optimizer
const (
	OptimizerGaussNewton        = "gauss_newton"
	OptimizerLevenbergMarquardt = "levenberg_marquardt"
)

// Config holds the registration settings.
// Distances are in the units of the input clouds.
type Config struct {
	Optimizer                 string  `yaml:"optimizer" json:"optimizer"`                                 // gauss_newton or levenberg_marquardt
	MaxIterations             int     `yaml:"maxIterations" json:"maxIterations"`                         // Outer iteration budget
	MaxInnerIterations        int     `yaml:"maxInnerIterations" json:"maxInnerIterations"`               // LM trust-region attempts per iteration
	Lambda                    float64 `yaml:"lambda" json:"lambda"`                                       // Fixed GN damping
	InitLambda                float64 `yaml:"initLambda" json:"initLambda"`                               // Initial LM damping
	LambdaFactor              float64 `yaml:"lambdaFactor" json:"lambdaFactor"`                           // LM damping growth/shrink factor
	MaxCorrespondenceDistance float64 `yaml:"maxCorrespondenceDistance" json:"maxCorrespondenceDistance"` // 0 disables distance rejection
	TranslationEps            float64 `yaml:"translationEps" json:"translationEps"`                       // Convergence threshold on the translation step
	RotationEps               float64 `yaml:"rotationEps" json:"rotationEps"`                             // Convergence threshold on the rotation step (radians)
	NumNeighbors              int     `yaml:"numNeighbors" json:"numNeighbors"`                           // Neighborhood size for covariance estimation
	NumWorkers                int     `yaml:"numWorkers" json:"numWorkers"`                               // <= 1 runs the reduction serially
	Verbose                   bool    `yaml:"verbose" json:"verbose"`                                     // Log per-iteration progress
}

// DefaultConfig returns sensible defaults for registration
func DefaultConfig() Config {
	return Config{
		Optimizer:                 OptimizerGaussNewton,
		MaxIterations:             20,
		MaxInnerIterations:        10,
		Lambda:                    1e-6,
		InitLambda:                1e-3,
		LambdaFactor:              10.0,
		MaxCorrespondenceDistance: 1.0,
		TranslationEps:            1e-3,
		RotationEps:               0.1 * math.Pi / 180.0,
		NumNeighbors:              20,
		NumWorkers:                1,
	}
}

// Validate checks that every setting is usable
func (c Config) Validate() error {
	switch c.Optimizer {
	case OptimizerGaussNewton, OptimizerLevenbergMarquardt:
	default:
		return fmt.Errorf("optimizer %q: %w", c.Optimizer, ErrUnknownOptimizer)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("maxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.Optimizer == OptimizerLevenbergMarquardt {
		if c.MaxInnerIterations <= 0 {
			return fmt.Errorf("maxInnerIterations must be positive, got %d", c.MaxInnerIterations)
		}
		if c.InitLambda <= 0 {
			return fmt.Errorf("initLambda must be positive, got %g", c.InitLambda)
		}
		if c.LambdaFactor <= 1 {
			return fmt.Errorf("lambdaFactor must be greater than 1, got %g", c.LambdaFactor)
		}
	}
	if c.Lambda < 0 {
		return fmt.Errorf("lambda must not be negative, got %g", c.Lambda)
	}
	if c.MaxCorrespondenceDistance < 0 {
		return fmt.Errorf("maxCorrespondenceDistance must not be negative, got %g", c.MaxCorrespondenceDistance)
	}
	if c.TranslationEps < 0 || c.RotationEps < 0 {
		return fmt.Errorf("convergence thresholds must not be negative")
	}
	if c.NumNeighbors < 3 {
		return fmt.Errorf("numNeighbors must be at least 3, got %d", c.NumNeighbors)
	}
	return nil
}

// LoadConfig loads the registration settings from a YAML file.
// Keys missing from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &config, nil
}

// SaveConfig saves the registration settings to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
