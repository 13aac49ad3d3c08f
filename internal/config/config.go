// Package config provides configuration management for the fakturo pipeline
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the FAKTURO_ prefix. It manages the watched input tree, the
// output/archive/error directories, worker pool sizes, render admission
// control, and template selection.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// InputConfig describes the watched input tree and ingestion tuning.
type InputConfig struct {
	// Root is the watched input directory
	Root string `yaml:"root" mapstructure:"root"`
	// MarkerExt is the extension of zero-byte ready markers
	MarkerExt string `yaml:"marker_ext" mapstructure:"marker_ext"`
	// ArchiveExt is the extension of the sibling archive files
	ArchiveExt string `yaml:"archive_ext" mapstructure:"archive_ext"`
	// Debounce is the quiet period before a marker event fires
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// RescanInterval is the period of the fallback directory rescan
	RescanInterval time.Duration `yaml:"rescan_interval" mapstructure:"rescan_interval"`
	// BatchSize caps how many markers one worker drains into a batch
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// QueueCapacity bounds the marker batch queue
	QueueCapacity int `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	// Workers is the number of batch queue consumers
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig describes where rendered documents and processed archives go.
type OutputConfig struct {
	// Root receives one rendered document per debtor
	Root string `yaml:"root" mapstructure:"root"`
	// ArchiveDir receives archives after successful processing
	ArchiveDir string `yaml:"archive_dir" mapstructure:"archive_dir"`
	// ErrorDir receives archives after failed processing
	ErrorDir string `yaml:"error_dir" mapstructure:"error_dir"`
	// Extension is the rendered document extension
	Extension string `yaml:"extension" mapstructure:"extension"`
	// Sidecar enables the per-debtor JSON side-channel record
	Sidecar bool `yaml:"sidecar" mapstructure:"sidecar"`
}

// RenderConfig tunes the bounded-concurrency render orchestrator.
type RenderConfig struct {
	// MaxConcurrent caps simultaneous render operations
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// PermitTimeout bounds the wait for a render permit
	PermitTimeout time.Duration `yaml:"permit_timeout" mapstructure:"permit_timeout"`
	// ReuseBuffers enables per-worker output buffer reuse
	ReuseBuffers bool `yaml:"reuse_buffers" mapstructure:"reuse_buffers"`
	// MaxBufferBytes caps a reused buffer's retained capacity
	MaxBufferBytes int `yaml:"max_buffer_bytes" mapstructure:"max_buffer_bytes"`
	// IdleThreshold is the quiet period that closes a telemetry burst
	IdleThreshold time.Duration `yaml:"idle_threshold" mapstructure:"idle_threshold"`
	// Workers is the size of the CPU-bound render worker pool
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// TemplatesConfig describes template selection per document-type code.
type TemplatesConfig struct {
	// Dir holds one template file per document-type code
	Dir string `yaml:"dir" mapstructure:"dir"`
	// DefaultType is the fallback document-type code
	DefaultType string `yaml:"default_type" mapstructure:"default_type"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// Dir enables a dated log file next to console output when set
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Load builds a Config from viper's merged sources and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Input.Root == "" {
		config.Input.Root = "./input"
	}
	if config.Input.MarkerExt == "" {
		config.Input.MarkerExt = ".rdy"
	}
	if config.Input.ArchiveExt == "" {
		config.Input.ArchiveExt = ".zip"
	}
	if config.Input.Debounce <= 0 {
		config.Input.Debounce = 500 * time.Millisecond
	}
	if config.Input.RescanInterval <= 0 {
		config.Input.RescanInterval = 60 * time.Second
	}
	if config.Input.BatchSize <= 0 {
		config.Input.BatchSize = 8
	}
	if config.Input.QueueCapacity <= 0 {
		config.Input.QueueCapacity = 256
	}
	if config.Input.Workers <= 0 {
		config.Input.Workers = 4
	}

	if config.Output.Root == "" {
		config.Output.Root = "./output"
	}
	if config.Output.ArchiveDir == "" {
		config.Output.ArchiveDir = "./archived"
	}
	if config.Output.ErrorDir == "" {
		config.Output.ErrorDir = "./error"
	}
	if config.Output.Extension == "" {
		config.Output.Extension = ".pdf"
	}
	if !viper.IsSet("output.sidecar") {
		config.Output.Sidecar = true
	}

	if config.Render.MaxConcurrent <= 0 {
		config.Render.MaxConcurrent = 4
	}
	if config.Render.PermitTimeout <= 0 {
		config.Render.PermitTimeout = 30 * time.Second
	}
	if !viper.IsSet("render.reuse_buffers") {
		config.Render.ReuseBuffers = true
	}
	if config.Render.MaxBufferBytes <= 0 {
		config.Render.MaxBufferBytes = 4 * 1024 * 1024
	}
	if config.Render.IdleThreshold <= 0 {
		config.Render.IdleThreshold = 2 * time.Second
	}
	if config.Render.Workers <= 0 {
		config.Render.Workers = runtime.NumCPU()
	}

	if config.Templates.Dir == "" {
		config.Templates.Dir = "./templates"
	}
	if config.Templates.DefaultType == "" {
		config.Templates.DefaultType = "20"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}
