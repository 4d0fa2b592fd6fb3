// Package config loads quids's node configuration: a YAML file
// (gopkg.in/yaml.v2), defaults-then-override just like the teacher's
// cmd/eth2028/config_loader.go, with QUIDS_CONFIG/QUIDS_LOG_LEVEL (and a
// handful of other) environment overrides layered on top of the file.
//
// Durations are expressed in the YAML file as plain integer
// milliseconds rather than embedding the component packages' own Config
// structs (which use time.Duration) directly: yaml.v2 has no built-in
// time.Duration codec, so round-tripping a bare time.Duration field
// through it serializes as an opaque integer nanosecond count that is
// painful for operators to hand-edit. ToRollupConfig/ToExecutorConfig/
// ToConsensusConfig/ToZKProofConfig convert into the component types.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/quids/quids/consensus"
	"github.com/quids/quids/executor"
	"github.com/quids/quids/rollup"
	"github.com/quids/quids/zkproof"
)

// Configuration errors.
var (
	ErrConfigFileNotFound = errors.New("config: file not found")
	ErrInvalidConfig      = errors.New("config: invalid configuration")
)

// Config aggregates the node's ambient settings and every component
// sub-config (§ "Configuration").
type Config struct {
	DataDir        string `yaml:"data_dir"`
	ListenAddr     string `yaml:"listen_addr"`
	LogLevel       string `yaml:"log_level"`
	SigningKeyPath string `yaml:"signing_key_path"`
	SentryDSN      string `yaml:"sentry_dsn"`

	Rollup    RollupConfig    `yaml:"rollup"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Consensus ConsensusConfig `yaml:"consensus"`
	ZKProof   ZKProofConfig   `yaml:"zkproof"`
}

// RollupConfig mirrors rollup.Config with millisecond durations.
type RollupConfig struct {
	MaxBatchSize          int     `yaml:"max_batch_size"`
	MinBatchSize          int     `yaml:"min_batch_size"`
	MaxWaitMillis         int64   `yaml:"max_wait_millis"`
	MaxDataSize           int     `yaml:"max_data_size"`
	RateLimitWindowMillis int64   `yaml:"rate_limit_window_millis"`
	RateLimitMax          int     `yaml:"rate_limit_max"`
	OverloadThreshold     float64 `yaml:"overload_threshold"`
	QueueCapacity         int     `yaml:"queue_capacity"`
}

// ToRollupConfig converts to rollup.Config.
func (c RollupConfig) ToRollupConfig() rollup.Config {
	return rollup.Config{
		MaxBatchSize:      c.MaxBatchSize,
		MinBatchSize:      c.MinBatchSize,
		MaxWaitTime:       time.Duration(c.MaxWaitMillis) * time.Millisecond,
		MaxDataSize:       c.MaxDataSize,
		RateLimitWindow:   time.Duration(c.RateLimitWindowMillis) * time.Millisecond,
		RateLimitMax:      c.RateLimitMax,
		OverloadThreshold: c.OverloadThreshold,
		QueueCapacity:     c.QueueCapacity,
	}
}

func rollupConfigFrom(c rollup.Config) RollupConfig {
	return RollupConfig{
		MaxBatchSize:          c.MaxBatchSize,
		MinBatchSize:          c.MinBatchSize,
		MaxWaitMillis:         c.MaxWaitTime.Milliseconds(),
		MaxDataSize:           c.MaxDataSize,
		RateLimitWindowMillis: c.RateLimitWindow.Milliseconds(),
		RateLimitMax:          c.RateLimitMax,
		OverloadThreshold:     c.OverloadThreshold,
		QueueCapacity:         c.QueueCapacity,
	}
}

// ExecutorConfig mirrors executor.Config.
type ExecutorConfig struct {
	Workers              int   `yaml:"workers"`
	MaxParallelContracts int64 `yaml:"max_parallel_contracts"`
}

// ToExecutorConfig converts to executor.Config.
func (c ExecutorConfig) ToExecutorConfig() executor.Config {
	return executor.Config{Workers: c.Workers, MaxParallelContracts: c.MaxParallelContracts}
}

func executorConfigFrom(c executor.Config) ExecutorConfig {
	return ExecutorConfig{Workers: c.Workers, MaxParallelContracts: c.MaxParallelContracts}
}

// ConsensusConfig mirrors consensus.Config with millisecond durations.
type ConsensusConfig struct {
	MaxTransactions     int     `yaml:"max_transactions"`
	BatchIntervalMillis int64   `yaml:"batch_interval_millis"`
	WitnessCount        int     `yaml:"witness_count"`
	ConsensusThreshold  float64 `yaml:"consensus_threshold"`
	QueueCapacity       int     `yaml:"queue_capacity"`
	CommitmentDimension int     `yaml:"commitment_dimension"`
}

// ToConsensusConfig converts to consensus.Config.
func (c ConsensusConfig) ToConsensusConfig() consensus.Config {
	return consensus.Config{
		MaxTransactions:     c.MaxTransactions,
		BatchInterval:       time.Duration(c.BatchIntervalMillis) * time.Millisecond,
		WitnessCount:        c.WitnessCount,
		ConsensusThreshold:  c.ConsensusThreshold,
		QueueCapacity:       c.QueueCapacity,
		CommitmentDimension: c.CommitmentDimension,
	}
}

func consensusConfigFrom(c consensus.Config) ConsensusConfig {
	return ConsensusConfig{
		MaxTransactions:     c.MaxTransactions,
		BatchIntervalMillis: c.BatchInterval.Milliseconds(),
		WitnessCount:        c.WitnessCount,
		ConsensusThreshold:  c.ConsensusThreshold,
		QueueCapacity:       c.QueueCapacity,
		CommitmentDimension: c.CommitmentDimension,
	}
}

// ZKProofConfig mirrors zkproof.Config.
type ZKProofConfig struct {
	MeasurementTolerance float64 `yaml:"measurement_tolerance"`
	FidelityThreshold    float64 `yaml:"fidelity_threshold"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	NoiseProbability     float64 `yaml:"noise_probability"`
}

// ToZKProofConfig converts to zkproof.Config.
func (c ZKProofConfig) ToZKProofConfig() zkproof.Config {
	return zkproof.Config{
		MeasurementTolerance: c.MeasurementTolerance,
		FidelityThreshold:    c.FidelityThreshold,
		ConfidenceThreshold:  c.ConfidenceThreshold,
		NoiseProbability:     c.NoiseProbability,
	}
}

func zkProofConfigFrom(c zkproof.Config) ZKProofConfig {
	return ZKProofConfig{
		MeasurementTolerance: c.MeasurementTolerance,
		FidelityThreshold:    c.FidelityThreshold,
		ConfidenceThreshold:  c.ConfidenceThreshold,
		NoiseProbability:     c.NoiseProbability,
	}
}

// DefaultConfig returns the node's configuration with every component
// set to its own package's defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:    "./data",
		ListenAddr: ":7545",
		LogLevel:   "info",
		Rollup:     rollupConfigFrom(rollup.DefaultConfig()),
		Executor:   executorConfigFrom(executor.DefaultConfig()),
		Consensus:  consensusConfigFrom(consensus.DefaultConfig()),
		ZKProof:    zkProofConfigFrom(zkproof.DefaultConfig()),
	}
}

// Load reads configuration from a YAML file at path, with defaults
// applied to any field the file leaves unspecified. A non-empty
// QUIDS_CONFIG environment variable takes precedence over path; if both
// are empty, it returns DefaultConfig() with environment overrides applied.
func Load(path string) (*Config, error) {
	if env := os.Getenv("QUIDS_CONFIG"); env != "" {
		path = env
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrConfigFileNotFound
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	ApplyEnvironment(&cfg)
	return &cfg, nil
}

// ApplyEnvironment overrides cfg's ambient fields from the environment,
// taking precedence over both defaults and the config file. Mirrors the
// teacher's ApplyEnvironment, renamed to the QUIDS_ prefix.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv("QUIDS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QUIDS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("QUIDS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUIDS_SIGNING_KEY_PATH"); v != "" {
		cfg.SigningKeyPath = v
	}
	if v := os.Getenv("QUIDS_SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("QUIDS_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rollup.MaxBatchSize = n
		}
	}
}

// Validate checks cfg for internal consistency, returning the first
// problem found wrapped in ErrInvalidConfig.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	if cfg.Rollup.MinBatchSize <= 0 || cfg.Rollup.MaxBatchSize < cfg.Rollup.MinBatchSize {
		return fmt.Errorf("%w: rollup.min_batch_size/max_batch_size out of order", ErrInvalidConfig)
	}
	if cfg.Rollup.OverloadThreshold <= 0 || cfg.Rollup.OverloadThreshold > 1 {
		return fmt.Errorf("%w: rollup.overload_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if cfg.Consensus.ConsensusThreshold <= 0 || cfg.Consensus.ConsensusThreshold > 1 {
		return fmt.Errorf("%w: consensus.consensus_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if cfg.Consensus.WitnessCount <= 0 {
		return fmt.Errorf("%w: consensus.witness_count must be positive", ErrInvalidConfig)
	}
	return nil
}
