// Package config loads and validates the job description a shuffle
// write or variance run is configured from: a typed struct, a
// ValidationError that collects every problem at once rather than
// failing on the first, and sane defaults applied before validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one shuffle-writer job.
type Config struct {
	JobID        string           `yaml:"jobId"`
	StageID      int              `yaml:"stageId"`
	WorkDir      string           `yaml:"workDir"`
	Input        InputConfig      `yaml:"input"`
	Output       OutputConfig     `yaml:"output"`
	Partitioning *PartitionConfig `yaml:"partitioning"`
	Compression  string           `yaml:"compression"`
	Registry     RegistryConfig   `yaml:"registry"`
	Log          LogConfig        `yaml:"log"`

	path string
}

// InputConfig names the Arrow IPC files that stand in for the
// upstream plan's output - one file per input partition. A real
// deployment wires the shuffle-writer node to a live physical plan
// instead; this is the CLI's way of driving it from data already on
// disk.
type InputConfig struct {
	Files []string `yaml:"files"`
}

// OutputConfig selects where shuffle output goes.
type OutputConfig struct {
	Kind      string           `yaml:"kind"` // "localDir" or "executors"
	Dir       string           `yaml:"dir"`
	Executors []ExecutorConfig `yaml:"executors"`

	// MaxPushQPS throttles Flight-sink pushes to this many batches per
	// second; 0 (the default) means unlimited.
	MaxPushQPS int `yaml:"maxPushQps"`
}

type ExecutorConfig struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

// PartitionConfig describes a hash partitioning; nil in the parsed
// Config means pass-through.
type PartitionConfig struct {
	Columns    []string `yaml:"columns"`
	Partitions int      `yaml:"partitions"`
}

// RegistryConfig points at the Redis instance the Partition Location
// Registry publishes to. Addr empty disables publishing.
type RegistryConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Dir    string `yaml:"dir"`
	Level  string `yaml:"level"`
	Prefix string `yaml:"prefix"`
}

// ValidationError collects every configuration problem found, instead
// of stopping at the first.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	for _, err := range e.Errors {
		b.WriteString("\n - ")
		b.WriteString(err)
	}
	return b.String()
}

// Load reads, parses, defaults, and validates a job config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}
	cfg.path = absPath

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(filepath.Dir(c.path), "shuffle-data")
	}
	if c.Output.Kind == "" {
		c.Output.Kind = "localDir"
	}
	if c.Output.Kind == "localDir" && c.Output.Dir == "" {
		c.Output.Dir = c.WorkDir
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Prefix == "" {
		c.Log.Prefix = "shufflewriter"
	}
}

func (c *Config) validate() error {
	var errs []string

	if c.JobID == "" {
		errs = append(errs, "jobId is required")
	}
	if c.StageID < 0 {
		errs = append(errs, "stageId must be >= 0")
	}
	if len(c.Input.Files) == 0 {
		errs = append(errs, "input.files must be non-empty")
	}
	switch c.Output.Kind {
	case "localDir":
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required when output.kind is localDir")
		}
	case "executors":
		if len(c.Output.Executors) == 0 {
			errs = append(errs, "output.executors must be non-empty when output.kind is executors")
		}
	default:
		errs = append(errs, fmt.Sprintf("output.kind %q is not localDir or executors", c.Output.Kind))
	}
	if c.Output.MaxPushQPS < 0 {
		errs = append(errs, "output.maxPushQps must be >= 0")
	}
	if c.Partitioning != nil {
		if len(c.Partitioning.Columns) == 0 {
			errs = append(errs, "partitioning.columns must be non-empty when partitioning is set")
		}
		if c.Partitioning.Partitions < 1 {
			errs = append(errs, "partitioning.partitions must be >= 1")
		}
		if c.Output.Kind == "executors" && len(c.Output.Executors) != c.Partitioning.Partitions {
			errs = append(errs, fmt.Sprintf("output.executors has %d entries, partitioning.partitions is %d", len(c.Output.Executors), c.Partitioning.Partitions))
		}
	} else if c.Output.Kind == "executors" && len(c.Output.Executors) != 1 {
		errs = append(errs, fmt.Sprintf("pass-through output requires exactly one executor, got %d", len(c.Output.Executors)))
	}
	switch c.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Sprintf("compression %q is not none, lz4, or zstd", c.Compression))
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Path: c.path, Errors: errs}
}
