package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the radixscan configuration file. Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Output    string `yaml:"output"`

	// Device
	Memory        string `yaml:"memory"`
	Concurrency   *int64 `yaml:"concurrency"`
	MemoryLimit   *int64 `yaml:"memory_limit"`
	MaxCohortSize *int64 `yaml:"max_cohort_size"`

	// Scan
	CohortSize            *int64 `yaml:"cohort_size"`
	Algorithm             string `yaml:"algorithm"`
	VectorWidth           *int64 `yaml:"vector_width"`
	BankConflictAvoidance *bool  `yaml:"bank_conflict_avoidance"`
	NumBanks              *int64 `yaml:"num_banks"`

	// Sort
	RadixBits     *int64 `yaml:"radix_bits"`
	KeysPerWorker *int64 `yaml:"keys_per_worker"`
	Layout        string `yaml:"layout"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "radixscan", "config.yaml")
}

// loadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config values into s for flags the user did not set.
func applyConfig(c *cli.Command, cfg Config, s *settings) {
	setString(c, "log-level", cfg.LogLevel, &s.logLevel)
	setString(c, "log-format", cfg.LogFormat, &s.logFormat)
	setString(c, "output", cfg.Output, &s.output)

	setString(c, "memory", cfg.Memory, &s.memory)
	setInt(c, "concurrency", cfg.Concurrency, &s.concurrency)
	setInt(c, "memory-limit", cfg.MemoryLimit, &s.memoryLimit)
	setInt(c, "max-cohort-size", cfg.MaxCohortSize, &s.maxCohortSize)

	setInt(c, "cohort-size", cfg.CohortSize, &s.cohortSize)
	setString(c, "algorithm", cfg.Algorithm, &s.algorithm)
	setInt(c, "vector-width", cfg.VectorWidth, &s.vectorWidth)
	setInt(c, "banks", cfg.NumBanks, &s.numBanks)
	if cfg.BankConflictAvoidance != nil && !c.IsSet("no-bank-avoidance") {
		s.noBankAvoidance = !*cfg.BankConflictAvoidance
	}
}

// applySortConfig is applyConfig for the sort-only flags.
func applySortConfig(c *cli.Command, cfg Config, s *sortSettings) {
	setInt(c, "radix-bits", cfg.RadixBits, &s.radixBits)
	setInt(c, "keys-per-worker", cfg.KeysPerWorker, &s.keysPerWorker)
	setString(c, "layout", cfg.Layout, &s.layout)
}

func setString(c *cli.Command, flag, v string, dst *string) {
	if v != "" && !c.IsSet(flag) {
		*dst = v
	}
}

func setInt(c *cli.Command, flag string, v *int64, dst *int64) {
	if v != nil && !c.IsSet(flag) {
		*dst = *v
	}
}
