package pipeline

import (
	"fmt"
	"os"

	"github.com/milosgajdos/go-lfd/align"
	"github.com/milosgajdos/go-lfd/dmp"
	"github.com/milosgajdos/go-lfd/encode"
	"github.com/milosgajdos/go-lfd/gmcc"
	"gopkg.in/yaml.v3"
)

// GMCCConfig configures validation scoring
type GMCCConfig struct {
	// Tol is the motion onset tolerance used to match trajectory lengths
	Tol float64 `yaml:"tol"`
	// Seed seeds the transform search
	Seed uint64 `yaml:"seed"`
}

// Config configures the learning pipeline
type Config struct {
	// Align configures temporal alignment
	Align align.Config `yaml:"align"`
	// Encode configures probabilistic encoding
	Encode encode.Config `yaml:"encode"`
	// DMP configures DMP hyperparameter search
	DMP dmp.Config `yaml:"dmp"`
	// Params skips the hyperparameter search when set
	Params *dmp.Params `yaml:"params"`
	// GMCC configures validation
	GMCC GMCCConfig `yaml:"gmcc"`
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Align:  align.DefaultConfig(),
		Encode: encode.DefaultConfig(),
		DMP:    dmp.DefaultConfig(),
		GMCC: GMCCConfig{
			Tol:  gmcc.DefaultTol,
			Seed: 1,
		},
	}
}

// Validate validates the configuration of every stage
func (c Config) Validate() error {
	if err := c.Align.Validate(); err != nil {
		return fmt.Errorf("align: %w", err)
	}

	if err := c.Encode.Validate(); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if c.Params == nil {
		if err := c.DMP.Validate(); err != nil {
			return fmt.Errorf("dmp: %w", err)
		}
	} else if err := c.Params.Validate(len(c.Params.AlphaZ)); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	if c.GMCC.Tol < 0 {
		return fmt.Errorf("gmcc: invalid onset tolerance: %v", c.GMCC.Tol)
	}

	return nil
}

// LoadConfig reads YAML configuration from path.
// Settings missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}
