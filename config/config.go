// Package config provides YAML configuration of the scheduler.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when configuration fails validation.
var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

// Range is the number of worker chains of a pool.
type Range struct {
	Min int `yaml:"min" validate:"gte=0"`
	Max int `yaml:"max" validate:"gt=0,gtefield=Min"`
}

// Pool declares a pool spawned on start.
type Pool struct {
	Label   string   `yaml:"label" validate:"required"`
	Size    Range    `yaml:"size"`
	Effects []string `yaml:"effects" validate:"dive,oneof=volume lowpass bandpass spatial"`
}

// Graph configures the in-process graph.
type Graph struct {
	Capacity    int `yaml:"capacity" validate:"gt=0"`
	Backlog     int `yaml:"backlog" validate:"gt=0"`
	SampleRate  int `yaml:"sample_rate" validate:"gt=0"`
	BlockFrames int `yaml:"block_frames" validate:"gt=0"`
}

// Config is the scheduler configuration. Nil ranges disable the default
// pool and dynamic pools respectively.
type Config struct {
	DefaultPool *Range `yaml:"default_pool"`
	Dynamic     *Range `yaml:"dynamic"`
	Pools       []Pool `yaml:"pools" validate:"unique=Label,dive"`
	FrameRate   int    `yaml:"frame_rate" validate:"gt=0,lte=1000"`
	Graph       Graph  `yaml:"graph"`
}

// Default returns configuration used when no file is provided.
func Default() Config {
	return Config{
		DefaultPool: &Range{Min: 4, Max: 32},
		Dynamic:     &Range{Min: 4, Max: 32},
		FrameRate:   60,
		Graph: Graph{
			Capacity:    1024,
			Backlog:     64,
			SampleRate:  48000,
			BlockFrames: 512,
		},
	}
}

// Parse decodes YAML on top of the default configuration and validates
// the result.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Validate checks configuration values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
