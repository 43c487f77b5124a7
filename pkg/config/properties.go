package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kamikyo/MappedFileQueues/util"
	"gopkg.in/yaml.v3"
)

// Store layout under StorePath.
const (
	CommitLogDirName = "commitlog"
	OffsetDirName    = "offset"

	producerOffsetFile    = "producer.offset"
	consumerOffsetFile    = "consumer.offset"
	producerConfirmedFile = "producer.confirmed"
	recoveryLockFile      = ".recovery.lock"
)

// Config represents the queue configuration including tunable performance options
type Config struct {
	// Store settings
	StorePath   string `yaml:"store_path" json:"store.path"`
	PayloadSize int    `yaml:"payload_size" json:"payload.size"`
	SegmentSize int64  `yaml:"segment_size" json:"segment.size"`

	// Consumer wait behavior
	ConsumerRetryInterval    time.Duration `yaml:"consumer_retry_interval" json:"consumer.retry.interval"`
	ConsumerSpinWaitDuration time.Duration `yaml:"consumer_spin_wait_duration" json:"consumer.spin.wait.duration"`
	UnmatchedCheckCount      int           `yaml:"unmatched_check_count" json:"unmatched.check.count"`

	// Producer durability
	ProducerForceFlushIntervalCount int `yaml:"producer_force_flush_interval_count" json:"producer.force.flush.interval.count"`

	// Retention
	EnableAutoCleanup    bool          `yaml:"enable_auto_cleanup" json:"enable.auto.cleanup"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval" json:"cleanup.interval"`
	MinRetentionSegments int           `yaml:"min_retention_segments" json:"min.retention.segments"`

	// Observability
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`

	// ExceptionObserver receives non-fatal recovery notifications. Set in
	// code; never serialized.
	ExceptionObserver func(error) `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with every tunable at its default value.
// StorePath, PayloadSize and SegmentSize have no defaults and must be set.
func DefaultConfig() *Config {
	return &Config{
		ConsumerRetryInterval:           time.Second,
		ConsumerSpinWaitDuration:        100 * time.Millisecond,
		ProducerForceFlushIntervalCount: 1000,
		UnmatchedCheckCount:             0,
		EnableAutoCleanup:               true,
		CleanupInterval:                 5 * time.Minute,
		MinRetentionSegments:            2,
		LogLevel:                        util.LogLevelInfo,
		ExporterPort:                    9100,
	}
}

// LoadConfigFile reads a YAML or JSON config file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize replaces zero or negative durations, flush count and exporter
// port with their defaults. UnmatchedCheckCount and MinRetentionSegments
// keep a zero value; only negative values are replaced. Booleans are left
// as set. Required fields are left alone; Validate reports them.
func (cfg *Config) Normalize() {
	if cfg.ConsumerRetryInterval <= 0 {
		cfg.ConsumerRetryInterval = time.Second
	}
	if cfg.ConsumerSpinWaitDuration <= 0 {
		cfg.ConsumerSpinWaitDuration = 100 * time.Millisecond
	}
	if cfg.ProducerForceFlushIntervalCount <= 0 {
		cfg.ProducerForceFlushIntervalCount = 1000
	}
	if cfg.UnmatchedCheckCount < 0 {
		cfg.UnmatchedCheckCount = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.MinRetentionSegments < 0 {
		cfg.MinRetentionSegments = 2
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}
}

// Validate reports fatal configuration errors.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.StorePath) == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if cfg.PayloadSize <= 0 {
		return fmt.Errorf("payload_size must be positive, got %d", cfg.PayloadSize)
	}
	if cfg.SegmentSize <= 0 {
		return fmt.Errorf("segment_size must be positive, got %d", cfg.SegmentSize)
	}
	if cfg.SegmentSize < cfg.Stride() {
		return fmt.Errorf("segment_size %d cannot hold a single record of stride %d", cfg.SegmentSize, cfg.Stride())
	}
	return nil
}

// Stride is the on-disk size of one record: payload plus the end marker byte.
func (cfg *Config) Stride() int64 {
	return int64(cfg.PayloadSize) + 1
}

// AdjustedSegmentSize is SegmentSize rounded down to a whole number of records.
func (cfg *Config) AdjustedSegmentSize() int64 {
	return cfg.SegmentSize / cfg.Stride() * cfg.Stride()
}

func (cfg *Config) CommitLogDir() string {
	return filepath.Join(cfg.StorePath, CommitLogDirName)
}

func (cfg *Config) ProducerOffsetPath() string {
	return filepath.Join(cfg.StorePath, OffsetDirName, producerOffsetFile)
}

func (cfg *Config) ConsumerOffsetPath() string {
	return filepath.Join(cfg.StorePath, OffsetDirName, consumerOffsetFile)
}

func (cfg *Config) ProducerConfirmedPath() string {
	return filepath.Join(cfg.StorePath, OffsetDirName, producerConfirmedFile)
}

func (cfg *Config) RecoveryLockPath() string {
	return filepath.Join(cfg.StorePath, recoveryLockFile)
}
