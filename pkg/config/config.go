// Package config holds the engine's tunables: branch factor, base
// capacity, leaf bucket size, and optional bucket/value compression.
// Structure and loading follow the teacher's pkg/config (yaml+validate
// struct tags, a Default() baseline) and cmd/init.go's
// os.ReadFile-then-yaml.Unmarshal-with-ENOENT-fallback idiom, wiring the
// teacher's struct tags to a real validator since the teacher's own
// `validate` tags were never connected to one.
package config

import (
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Options are the recognized database options (spec section 6).
type Options struct {
	// BranchFactor is the number of leaf buckets per tree node; any value
	// of at least 2 is accepted (the default, 6, is not a power of two).
	BranchFactor uint8 `yaml:"branch_factor" validate:"required,min=2"`
	// BaseCapacity is the record capacity of level 0.
	BaseCapacity uint32 `yaml:"base_capacity" validate:"required,min=1"`
	// MaxBucket is the maximum number of records per leaf bucket.
	MaxBucket uint32 `yaml:"max_bucket" validate:"required,min=1"`
	// Compression is loaded from YAML but not read by any other package:
	// tree buckets are always stored uncompressed.
	Compression CompressionOptions `yaml:"compression"`
}

// CompressionOptions controls the optional compression path.
type CompressionOptions struct {
	Buckets bool `yaml:"buckets"`
}

var validate = validator.New()

// Default returns the engine's baseline configuration: branch factor 6,
// with base capacity and max bucket derived from it.
func Default() Options {
	return Options{
		BranchFactor: 6,
		BaseCapacity: 1024,
		MaxBucket:    8,
		Compression:  CompressionOptions{Buckets: false},
	}
}

// Load reads YAML options from path; a missing file returns Default().
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default options", "path", path)
			return opts, nil
		}
		return opts, err
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	if err := validate.Struct(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks opts against the struct's validation tags.
func Validate(opts Options) error {
	return validate.Struct(opts)
}
