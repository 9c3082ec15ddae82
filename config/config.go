// Package config loads lazyload settings from a file, LAZYLOAD_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/azargarov/lazyload/workerpool"
)

// Config is the complete configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (LAZYLOAD_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	Pools    PoolsConfig    `mapstructure:"pools" yaml:"pools"`
	Eviction EvictionConfig `mapstructure:"eviction" yaml:"eviction"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type PoolsConfig struct {
	Normal PoolConfig `mapstructure:"normal" yaml:"normal"`

	// Heavy serves animated content.
	Heavy PoolConfig `mapstructure:"heavy" yaml:"heavy"`
}

type PoolConfig struct {
	Workers       int    `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=256"`
	QueueCapacity int    `mapstructure:"queue_capacity" yaml:"queue_capacity" validate:"gte=1"`
	QueueType     string `mapstructure:"queue_type" yaml:"queue_type" validate:"oneof=priority fifo"`
	PinWorkers    bool   `mapstructure:"pin_workers" yaml:"pin_workers"`
}

type EvictionConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity" validate:"gte=0"`
}

// RetryConfig controls retries of a producing call within one task. One
// attempt disables retrying.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts" validate:"gte=1,lte=20"`
	Initial  time.Duration `mapstructure:"initial" yaml:"initial" validate:"gt=0"`
	Max      time.Duration `mapstructure:"max" yaml:"max" validate:"gtefield=Initial"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configPath (optional) and the environment, applies defaults
// and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LAZYLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnv registers every key so AutomaticEnv also works for values that
// are absent from the file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"pools.normal.workers", "pools.normal.queue_capacity", "pools.normal.queue_type", "pools.normal.pin_workers",
		"pools.heavy.workers", "pools.heavy.queue_capacity", "pools.heavy.queue_type", "pools.heavy.pin_workers",
		"eviction.capacity",
		"retry.attempts", "retry.initial", "retry.max",
		"cache.enabled", "cache.dir",
		"metrics.enabled",
	} {
		_ = v.BindEnv(key)
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	applyPoolDefaults(&cfg.Pools.Normal, workerpool.DefaultWorkers, workerpool.DefaultQueueCapacity)
	applyPoolDefaults(&cfg.Pools.Heavy, workerpool.DefaultHeavyWorkers, workerpool.DefaultHeavyQueueCapacity)

	if cfg.Eviction.Capacity == 0 {
		cfg.Eviction.Capacity = 100
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 1
	}
	if cfg.Retry.Initial == 0 {
		cfg.Retry.Initial = 200 * time.Millisecond
	}
	if cfg.Retry.Max == 0 {
		cfg.Retry.Max = 5 * time.Second
	}
}

func applyPoolDefaults(cfg *PoolConfig, workers, capacity int) {
	if cfg.Workers == 0 {
		cfg.Workers = workers
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = capacity
	}
	if cfg.QueueType == "" {
		cfg.QueueType = "priority"
	}
	cfg.QueueType = strings.ToLower(cfg.QueueType)
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// RegistryOptions converts the pool sections. NewMetrics is left for the
// caller.
func (c *Config) RegistryOptions() (workerpool.RegistryOptions, error) {
	normal, err := c.Pools.Normal.options()
	if err != nil {
		return workerpool.RegistryOptions{}, fmt.Errorf("pools.normal: %w", err)
	}
	heavy, err := c.Pools.Heavy.options()
	if err != nil {
		return workerpool.RegistryOptions{}, fmt.Errorf("pools.heavy: %w", err)
	}
	return workerpool.RegistryOptions{Normal: normal, Heavy: heavy}, nil
}

func (p PoolConfig) options() (workerpool.Options, error) {
	qt, err := workerpool.ParseQueueType(p.QueueType)
	if err != nil {
		return workerpool.Options{}, err
	}
	return workerpool.Options{
		Workers:       p.Workers,
		QueueCapacity: p.QueueCapacity,
		QT:            qt,
		PinWorkers:    p.PinWorkers,
	}, nil
}

// RetryPolicy converts the retry section. A single attempt yields nil.
func (c *Config) RetryPolicy() *workerpool.RetryPolicy {
	if c.Retry.Attempts <= 1 {
		return nil
	}
	return &workerpool.RetryPolicy{
		Attempts: c.Retry.Attempts,
		Initial:  c.Retry.Initial,
		Max:      c.Retry.Max,
	}
}

// durationDecodeHook converts strings like "250ms" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
